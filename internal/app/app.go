// Package app dispatches parsed wwld commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/wwld/internal/camera"
	"github.com/rbright/wwld/internal/classify"
	"github.com/rbright/wwld/internal/cli"
	"github.com/rbright/wwld/internal/config"
	"github.com/rbright/wwld/internal/doctor"
	"github.com/rbright/wwld/internal/events"
	"github.com/rbright/wwld/internal/indicator"
	"github.com/rbright/wwld/internal/ipc"
	"github.com/rbright/wwld/internal/logging"
	"github.com/rbright/wwld/internal/session"
	"github.com/rbright/wwld/internal/version"
)

const probeMaxIndex = 10

// Runner executes one CLI invocation. Open and Devices are the camera
// driver; main wires them to OpenCV.
type Runner struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *slog.Logger
	Open    camera.Opener
	Devices func(maxIndex int) []camera.Device
}

// Execute parses args and returns the process exit code.
func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("wwld"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("wwld"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath, config.Overrides{CameraDevice: parsed.Camera})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded, r.Open)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices()
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.commandStop(ctx)
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices() int {
	if r.Devices == nil {
		fmt.Fprintln(r.Stderr, "error: no camera driver available")
		return 1
	}
	devices := r.Devices(probeMaxIndex)
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no cameras found")
		return 1
	}

	for _, device := range devices {
		fmt.Fprintf(r.Stdout, "id=%s | resolution=%dx%d\n", device.ID, device.Width, device.Height)
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "stopped")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, "status")
	if !handled {
		fmt.Fprintln(r.Stdout, "stopped")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintln(r.Stdout, formatStatus(resp))
	return 0
}

func formatStatus(resp ipc.Response) string {
	state := resp.State
	if state == "" {
		state = "unknown"
	}
	st := resp.Status
	if st == nil {
		return state
	}
	return fmt.Sprintf(
		"%s | camera=%s device=%s surface=%s | cycles=%d skipped=%d failed=%d positive=%d",
		state, st.Camera, st.Device, st.Surface, st.Cycles, st.Skipped, st.Failed, st.Positive,
	)
}

func (r Runner) commandStop(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, "stop")
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no active wwld runtime")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	if r.Open == nil {
		fmt.Fprintln(r.Stderr, "error: no camera driver available")
		return 1
	}

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{CheckTimeout: 180 * time.Millisecond, Attempts: 8})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	deps := session.Deps{
		Open: r.Open,
		Classifier: classify.New(classify.Options{
			URL:        cfg.Classifier.URL,
			HealthURL:  cfg.Classifier.HealthURL,
			Timeout:    cfg.Classifier.Timeout(),
			RetryCount: cfg.Classifier.RetryCount,
			RetryWait:  cfg.Classifier.RetryWait(),
			Logger:     logger,
		}),
	}
	if cfg.Indicator.Enable {
		deps.Indicator = indicator.New(cfg.Indicator, logger)
	}

	publisher, err := events.Connect(cfg.Events, logger)
	if err != nil {
		// Events are optional.
		fmt.Fprintf(r.Stderr, "warning: %v\n", err)
		logger.Warn("events disabled", "error", err.Error())
	}
	if publisher != nil {
		defer publisher.Close()
		deps.Events = publisher
	}

	runtime, err := session.New(cfg, logger, deps)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, runtime)
	}()

	result := runtime.Run(ctx)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logRunResult(logger, result)

	camState := "healthy"
	if !result.CameraHealthy {
		camState = "unavailable"
	}
	fmt.Fprintf(r.Stdout, "stopped | state=%s camera=%s cycles=%d positive=%d\n",
		result.State, camState, result.Stats.Cycles, result.Stats.Positive)

	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
	return 0
}

func logRunResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"camera_healthy", result.CameraHealthy,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"ticks", result.Stats.Ticks,
		"cycles", result.Stats.Cycles,
		"skipped", result.Stats.Skipped,
		"failed", result.Stats.Failed,
		"positive", result.Stats.Positive,
	}

	if result.Err != nil {
		logger.Error("runtime failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("runtime complete", fields...)
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if ipc.Unreachable(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}
