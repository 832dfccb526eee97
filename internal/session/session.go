// Package session owns one monitoring lifetime: camera capability,
// capture scheduler, transition controller, surfaces, and IPC handling.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/wwld/internal/camera"
	"github.com/rbright/wwld/internal/config"
	"github.com/rbright/wwld/internal/fsm"
	"github.com/rbright/wwld/internal/ipc"
	"github.com/rbright/wwld/internal/scheduler"
	"github.com/rbright/wwld/internal/surface"
	"github.com/rbright/wwld/internal/transition"
	"github.com/rbright/wwld/internal/web"
)

// Result is the lifecycle summary returned by one Run invocation.
type Result struct {
	State         fsm.State
	CameraHealthy bool
	Stats         scheduler.Stats
	Err           error
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Indicator is the runtime-facing subset of indicator behavior.
type Indicator interface {
	SetStatus(context.Context, camera.Status)
	CueOverride(context.Context)
	CueResume(context.Context)
	Hide(context.Context)
}

// EventSink receives every applied transition.
type EventSink interface {
	Publish(context.Context, transition.Change)
}

type noopIndicator struct{}

func (noopIndicator) SetStatus(context.Context, camera.Status) {}
func (noopIndicator) CueOverride(context.Context)              {}
func (noopIndicator) CueResume(context.Context)                {}
func (noopIndicator) Hide(context.Context)                     {}

// Deps are the collaborators a Runtime is built from. Nil surfaces are
// derived from the configured surface backend.
type Deps struct {
	Open       camera.Opener
	Classifier scheduler.Classifier
	Indicator  Indicator
	Events     EventSink
	Web        *web.Server
	Primary    surface.Primary
	Override   surface.Override
}

// Runtime wires the capture loop to the transition controller.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger
	deps   Deps

	controller *transition.Controller

	mu         sync.RWMutex
	capability *camera.Capability
	sched      *scheduler.Scheduler

	stop     chan struct{}
	stopOnce sync.Once
}

// New builds a runtime from validated config.
func New(cfg config.Config, logger *slog.Logger, deps Deps) (*Runtime, error) {
	if deps.Open == nil {
		return nil, errors.New("camera opener is required")
	}
	if deps.Classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if deps.Indicator == nil {
		deps.Indicator = noopIndicator{}
	}

	if deps.Primary == nil || deps.Override == nil {
		primary, override, srv := buildSurfaces(cfg, logger)
		if deps.Primary == nil {
			deps.Primary = primary
		}
		if deps.Override == nil {
			deps.Override = override
		}
		if deps.Web == nil {
			deps.Web = srv
		}
	}

	r := &Runtime{
		cfg:    cfg,
		logger: logger,
		deps:   deps,
		stop:   make(chan struct{}),
	}
	r.controller = transition.New(deps.Primary, deps.Override, transition.Options{
		FadeOut:      cfg.Transition.FadeOut(),
		FadeInDelay:  cfg.Transition.FadeInDelay(),
		StallTimeout: cfg.Transition.StallTimeout(),
		MaxOverride:  cfg.Transition.MaxOverride(),
		Logger:       logger,
		OnChange:     r.onChange,
	})
	return r, nil
}

func buildSurfaces(cfg config.Config, logger *slog.Logger) (surface.Primary, surface.Override, *web.Server) {
	media := config.ExpandUserPath(cfg.Surface.OverrideMedia)
	if cfg.Surface.UsesCommand() {
		return surface.LogPrimary{Logger: logger},
			surface.NewCommandOverride(cfg.Surface.PlayerCmd.Argv, media, logger),
			nil
	}

	srv := web.New(web.Options{
		Listen:    cfg.Surface.Listen,
		MediaPath: media,
		Logger:    logger,
	})
	return srv.Primary(), srv.Override(), srv
}

// Controller exposes the transition controller.
func (r *Runtime) Controller() *transition.Controller {
	return r.controller
}

// Run acquires the camera once and drives the loop until ctx ends or a
// stop is requested over IPC.
func (r *Runtime) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	status := r.statusSink()
	capability := camera.Acquire(runCtx, r.deps.Open, r.cfg.Camera.Device, status, r.logger)
	defer func() { _ = capability.Close() }()

	encoder := camera.NewEncoder(r.cfg.Camera.JPEGQuality)
	sched := scheduler.New(
		r.cfg.Capture.Interval(),
		capability,
		func() (camera.Frame, error) { return encoder.Encode(capability) },
		r.deps.Classifier,
		r.controller,
		r.logger,
	)

	r.mu.Lock()
	r.capability = capability
	r.sched = sched
	r.mu.Unlock()

	var wg sync.WaitGroup
	webErr := make(chan error, 1)
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() { r.controller.Run(runCtx) })
	run(func() { sched.Run(runCtx) })
	if srv := r.deps.Web; srv != nil {
		run(func() {
			if err := srv.Run(runCtx); err != nil {
				webErr <- err
			}
		})
		if capability.Healthy() {
			preview := camera.NewEncoder(min(r.cfg.Camera.JPEGQuality, 70))
			run(func() {
				srv.RunPreview(runCtx, r.cfg.Camera.PreviewFPS, func() ([]byte, error) {
					frame, err := preview.Encode(capability)
					return frame.JPEG, err
				})
			})
		}
	}

	if r.logger != nil {
		r.logger.Info("runtime started",
			"camera_healthy", capability.Healthy(),
			"device", capability.Device(),
			"surface", r.cfg.Surface.Backend,
			"interval_ms", r.cfg.Capture.IntervalMS,
		)
	}

	select {
	case <-ctx.Done():
		result.Err = ctx.Err()
	case <-r.stop:
	case err := <-webErr:
		result.Err = fmt.Errorf("web surface: %w", err)
	}

	cancel()
	wg.Wait()

	hideCtx, hideCancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer hideCancel()
	r.deps.Indicator.Hide(hideCtx)

	result.State = r.controller.State()
	result.CameraHealthy = capability.Healthy()
	result.Stats = sched.Stats()
	result.FinishedAt = time.Now()
	if errors.Is(result.Err, context.Canceled) {
		result.Err = nil
	}
	return result
}

// Handle serves IPC commands for the active runtime.
func (r *Runtime) Handle(_ context.Context, req ipc.Request) ipc.Response {
	state := string(r.controller.State())
	switch req.Command {
	case "status":
		return ipc.Response{OK: true, State: state, Message: "status", Status: r.snapshot()}
	case "stop":
		return r.requestStop(state)
	default:
		return ipc.Response{OK: false, State: state, Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (r *Runtime) requestStop(state string) ipc.Response {
	requested := false
	r.stopOnce.Do(func() {
		close(r.stop)
		requested = true
	})
	if !requested {
		return ipc.Response{OK: true, State: state, Message: "stop already requested"}
	}
	return ipc.Response{OK: true, State: state, Message: "stop requested"}
}

func (r *Runtime) snapshot() *ipc.Status {
	r.mu.RLock()
	capability := r.capability
	sched := r.sched
	r.mu.RUnlock()

	status := &ipc.Status{
		Camera:  "acquiring",
		Device:  r.cfg.Camera.Device,
		Surface: r.cfg.Surface.Backend,
	}
	if capability != nil {
		status.Camera = "unavailable"
		if capability.Healthy() {
			status.Camera = "healthy"
		}
	}
	if sched != nil {
		stats := sched.Stats()
		status.Cycles = stats.Cycles
		status.Skipped = stats.Skipped
		status.Failed = stats.Failed
		status.Positive = stats.Positive
	}
	return status
}

func (r *Runtime) onChange(ctx context.Context, change transition.Change) {
	switch {
	case change.To == fsm.StateOverride:
		r.deps.Indicator.CueOverride(ctx)
	case change.From == fsm.StateOverride && change.To == fsm.StateNormal:
		r.deps.Indicator.CueResume(ctx)
	}
	if r.deps.Events != nil {
		r.deps.Events.Publish(ctx, change)
	}
}

func (r *Runtime) statusSink() camera.StatusSink {
	sinks := statusFanout{r.deps.Indicator}
	if r.deps.Web != nil {
		sinks = append(sinks, r.deps.Web)
	}
	return sinks
}

// statusFanout delivers one status update to every sink.
type statusFanout []camera.StatusSink

func (f statusFanout) SetStatus(ctx context.Context, status camera.Status) {
	for _, sink := range f {
		sink.SetStatus(ctx, status)
	}
}
