// Package scheduler runs the fixed-period capture → classify → submit loop.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/wwld/internal/camera"
	"github.com/rbright/wwld/internal/classify"
	"github.com/rbright/wwld/internal/fsm"
)

// Verdict is the resolution of one cycle.
type Verdict string

const (
	VerdictPending  Verdict = "pending"
	VerdictPositive Verdict = "positive"
	VerdictNegative Verdict = "negative"
	VerdictFailed   Verdict = "failed"
)

// Cycle is the transient state of one capture-and-submit attempt.
type Cycle struct {
	ID        uuid.UUID
	StartedAt time.Time
	Payload   []byte
	Verdict   Verdict
}

// Capability reports camera health.
type Capability interface {
	Healthy() bool
}

// Classifier submits one JPEG payload.
type Classifier interface {
	Classify(ctx context.Context, jpeg []byte) (classify.Verdict, error)
}

// Sink receives the verdict events of resolved cycles.
type Sink interface {
	Submit(fsm.Event)
}

// EncodeFunc captures one frame from the healthy capability.
type EncodeFunc func() (camera.Frame, error)

// Stats are cumulative loop counters.
type Stats struct {
	Ticks    uint64
	Idle     uint64
	Skipped  uint64
	Cycles   uint64
	Failed   uint64
	Positive uint64
}

type counters struct {
	ticks    atomic.Uint64
	idle     atomic.Uint64
	skipped  atomic.Uint64
	cycles   atomic.Uint64
	failed   atomic.Uint64
	positive atomic.Uint64
}

// Scheduler owns the recurring timer. At most one cycle is in flight.
type Scheduler struct {
	interval   time.Duration
	capability Capability
	encode     EncodeFunc
	classifier Classifier
	sink       Sink
	logger     *slog.Logger
	now        func() time.Time

	inFlight atomic.Bool
	wg       sync.WaitGroup
	stats    counters

	// OnCycle observes each resolved cycle; nil disables.
	OnCycle func(Cycle)
}

// New constructs a scheduler ticking every interval.
func New(interval time.Duration, capability Capability, encode EncodeFunc, classifier Classifier, sink Sink, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		interval:   interval,
		capability: capability,
		encode:     encode,
		classifier: classifier,
		sink:       sink,
		logger:     logger,
		now:        time.Now,
	}
}

// Run ticks until ctx is cancelled, then waits for the in-flight cycle.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.stats.ticks.Add(1)

	if s.capability == nil || !s.capability.Healthy() {
		s.stats.idle.Add(1)
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.stats.skipped.Add(1)
		if s.logger != nil {
			s.logger.Debug("tick skipped; cycle in flight")
		}
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)
		s.runCycle(ctx)
	}()
}

func (s *Scheduler) runCycle(ctx context.Context) {
	s.stats.cycles.Add(1)
	cycle := Cycle{ID: uuid.New(), StartedAt: s.now(), Verdict: VerdictPending}
	defer func() {
		if s.OnCycle != nil {
			s.OnCycle(cycle)
		}
	}()

	frame, err := s.encode()
	if err != nil {
		s.fail(&cycle, "frame encode failed", err)
		return
	}
	cycle.Payload = frame.JPEG

	verdict, err := s.classifier.Classify(ctx, cycle.Payload)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			cycle.Verdict = VerdictFailed
			return
		}
		s.fail(&cycle, "classification failed", err)
		return
	}

	switch verdict {
	case classify.VerdictPositive:
		cycle.Verdict = VerdictPositive
		s.stats.positive.Add(1)
		s.sink.Submit(fsm.EventPositive)
	default:
		cycle.Verdict = VerdictNegative
		s.sink.Submit(fsm.EventNegative)
	}

	if s.logger != nil {
		s.logger.Debug("cycle resolved",
			"cycle_id", cycle.ID.String(),
			"verdict", string(cycle.Verdict),
			"width", frame.Width,
			"height", frame.Height,
			"bytes", len(frame.JPEG),
			"elapsed_ms", s.now().Sub(cycle.StartedAt).Milliseconds(),
		)
	}
}

func (s *Scheduler) fail(cycle *Cycle, msg string, err error) {
	cycle.Verdict = VerdictFailed
	s.stats.failed.Add(1)
	if s.logger != nil {
		s.logger.Warn(msg, "cycle_id", cycle.ID.String(), "error", err.Error())
	}
	s.sink.Submit(fsm.EventFailed)
}

// Stats returns a snapshot of the loop counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:    s.stats.ticks.Load(),
		Idle:     s.stats.idle.Load(),
		Skipped:  s.stats.skipped.Load(),
		Cycles:   s.stats.cycles.Load(),
		Failed:   s.stats.failed.Load(),
		Positive: s.stats.positive.Load(),
	}
}

// InFlight reports whether a cycle is currently running.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}
