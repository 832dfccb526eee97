// Package transition owns the normal/override state and drives both surfaces.
package transition

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/wwld/internal/fsm"
	"github.com/rbright/wwld/internal/surface"
)

// Change is one applied state transition.
type Change struct {
	From  fsm.State
	To    fsm.State
	Event fsm.Event
	At    time.Time
}

// Options tunes controller timing and observation.
type Options struct {
	FadeOut      time.Duration
	FadeInDelay  time.Duration
	StallTimeout time.Duration
	// MaxOverride forces a revert after this long in override; 0 disables.
	MaxOverride time.Duration
	Logger      *slog.Logger
	// OnChange runs on the event loop after each applied transition.
	OnChange func(context.Context, Change)
}

type afterFunc func(time.Duration, func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type message struct {
	event fsm.Event
	// gen tags timer events; a mismatch means the timer is stale.
	gen uint64
	// playback tags completions; 0 means the current playback.
	playback uint64
	fadeIn   bool
	// barrier is closed when the loop reaches it; it carries no event.
	barrier chan struct{}
}

// ErrStopped is returned by Flush once the event loop has exited.
var ErrStopped = errors.New("transition controller stopped")

// Controller serializes all transition events on one goroutine.
type Controller struct {
	primary  surface.Primary
	override surface.Override
	opts     Options
	after    afterFunc
	now      func() time.Time

	mu    sync.RWMutex
	state fsm.State

	events chan message
	done   chan struct{}
	once   sync.Once

	// Owned by the event loop.
	gen      uint64
	playback uint64
	timers   []func() bool
}

// New constructs a controller in the normal state.
func New(primary surface.Primary, override surface.Override, opts Options) *Controller {
	return &Controller{
		primary:  primary,
		override: override,
		opts:     opts,
		after:    realAfterFunc,
		now:      time.Now,
		state:    fsm.StateNormal,
		events:   make(chan message, 64),
		done:     make(chan struct{}),
	}
}

// State returns the current state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Submit enqueues a verdict event (positive, negative or failed).
func (c *Controller) Submit(event fsm.Event) {
	c.post(message{event: event})
}

// PlaybackEnded reports that the current override playback completed.
func (c *Controller) PlaybackEnded() {
	c.post(message{event: fsm.EventPlaybackEnded})
}

// Flush blocks until every event posted before it has been handled, ctx
// ends, or the loop stops.
func (c *Controller) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	select {
	case c.events <- message{barrier: barrier}:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-barrier:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) post(m message) {
	select {
	case c.events <- m:
	case <-c.done:
	}
}

// Run sets up the initial surfaces and processes events until ctx ends.
func (c *Controller) Run(ctx context.Context) {
	defer c.once.Do(func() { close(c.done) })
	defer c.stopTimers()

	c.primary.SetVisible(ctx, true)
	c.primary.SetOpacity(ctx, 1)
	c.override.SetVisible(ctx, false)

	for {
		select {
		case <-ctx.Done():
			if c.State() == fsm.StateOverride {
				c.override.StopPlayback(context.Background())
			}
			return
		case m := <-c.events:
			if m.barrier != nil {
				close(m.barrier)
				continue
			}
			c.handle(ctx, m)
		}
	}
}

func (c *Controller) handle(ctx context.Context, m message) {
	if m.gen != 0 && m.gen != c.gen {
		c.debug("stale timer dropped", "event", string(m.event))
		return
	}
	if m.fadeIn {
		c.primary.SetOpacity(ctx, 1)
		return
	}
	if m.event == fsm.EventPlaybackEnded && m.playback != 0 && m.playback != c.playback {
		c.debug("stale playback completion dropped")
		return
	}

	from := c.State()
	to, err := fsm.Transition(from, m.event)
	if err != nil {
		if errors.Is(err, fsm.ErrIgnored) {
			c.debug("event ignored", "state", string(from), "event", string(m.event))
		} else if c.opts.Logger != nil {
			c.opts.Logger.Error("transition failed", "state", string(from), "event", string(m.event), "error", err.Error())
		}
		return
	}
	if to == from {
		return
	}

	c.mu.Lock()
	c.state = to
	c.mu.Unlock()

	switch to {
	case fsm.StateTransitioning:
		c.resetTimers()
		c.primary.SetOpacity(ctx, 0)
		c.schedule(c.opts.FadeOut, message{event: fsm.EventFadeComplete, gen: c.gen})
	case fsm.StateOverride:
		c.enterOverride(ctx)
	case fsm.StateNormal:
		c.resetTimers()
		if m.event == fsm.EventForceRevert {
			c.override.StopPlayback(ctx)
		}
		c.override.SetVisible(ctx, false)
		c.primary.SetVisible(ctx, true)
		c.schedule(c.opts.FadeInDelay, message{fadeIn: true, gen: c.gen})
	}

	if c.opts.Logger != nil {
		c.opts.Logger.Info("transition", "from", string(from), "to", string(to), "event", string(m.event))
	}
	if c.opts.OnChange != nil {
		c.opts.OnChange(ctx, Change{From: from, To: to, Event: m.event, At: c.now()})
	}
}

func (c *Controller) enterOverride(ctx context.Context) {
	c.resetTimers()
	c.primary.SetVisible(ctx, false)
	c.override.SetVisible(ctx, true)

	c.playback++
	token := c.playback
	err := c.override.StartPlayback(ctx, func() {
		c.post(message{event: fsm.EventPlaybackEnded, playback: token})
	})
	if err != nil {
		if c.opts.Logger != nil {
			c.opts.Logger.Warn("override playback failed to start", "error", err.Error(), "stall_timeout_ms", c.opts.StallTimeout.Milliseconds())
		}
		c.schedule(c.opts.StallTimeout, message{event: fsm.EventForceRevert, gen: c.gen})
	}
	if c.opts.MaxOverride > 0 {
		c.schedule(c.opts.MaxOverride, message{event: fsm.EventForceRevert, gen: c.gen})
	}
}

// resetTimers invalidates every pending timer by bumping the generation.
func (c *Controller) resetTimers() {
	c.stopTimers()
	c.gen++
}

func (c *Controller) stopTimers() {
	for _, stop := range c.timers {
		stop()
	}
	c.timers = c.timers[:0]
}

func (c *Controller) schedule(d time.Duration, m message) {
	c.timers = append(c.timers, c.after(d, func() { c.post(m) }))
}

func (c *Controller) debug(msg string, args ...any) {
	if c.opts.Logger != nil {
		c.opts.Logger.Debug(msg, args...)
	}
}
