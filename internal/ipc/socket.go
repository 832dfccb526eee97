package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning reports a responsive owner on the runtime socket.
var ErrAlreadyRunning = errors.New("wwld runtime already running")

// RunningError describes the live runtime found on the socket. It
// matches ErrAlreadyRunning with errors.Is.
type RunningError struct {
	State  string
	Status *Status
}

func (e *RunningError) Error() string {
	if e.State == "" {
		return ErrAlreadyRunning.Error()
	}
	detail := "state=" + e.State
	if e.Status != nil {
		detail += fmt.Sprintf(", camera=%s, device=%s", e.Status.Camera, e.Status.Device)
	}
	return fmt.Sprintf("%s (%s)", ErrAlreadyRunning, detail)
}

func (e *RunningError) Is(target error) bool {
	return target == ErrAlreadyRunning
}

// AcquireOptions tune stale-socket recovery.
type AcquireOptions struct {
	// CheckTimeout bounds the status request sent to an existing socket.
	CheckTimeout time.Duration
	// Attempts is how many times to try listening before giving up.
	Attempts int
}

// RuntimeSocketPath returns $XDG_RUNTIME_DIR/wwld.sock.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "wwld.sock"), nil
}

// Acquire makes this process the runtime owner by listening on path.
// An existing socket is asked for its status: a live runtime yields a
// *RunningError, an unreachable one is treated as stale and unlinked.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 200 * time.Millisecond
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 1; ; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		resp, err := Send(ctx, path, Request{Command: "status"}, opts.CheckTimeout)
		switch {
		case err == nil:
			return nil, &RunningError{State: resp.State, Status: resp.Status}
		case !Unreachable(err):
			return nil, fmt.Errorf("check existing socket %s: %w", path, err)
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
		if attempt >= opts.Attempts {
			return nil, fmt.Errorf("acquire socket %s: still in use after %d attempts", path, attempt)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(25*attempt) * time.Millisecond):
		}
	}
}
