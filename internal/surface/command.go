package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// CommandOverride plays the override media with an external player.
// The player exiting on its own counts as playback ended.
type CommandOverride struct {
	argv   []string
	media  string
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
}

// NewCommandOverride appends media to the player argv at start time.
func NewCommandOverride(argv []string, media string, logger *slog.Logger) *CommandOverride {
	return &CommandOverride{
		argv:   append([]string(nil), argv...),
		media:  strings.TrimSpace(media),
		logger: logger,
	}
}

// SetVisible is a no-op; the player owns its window.
func (o *CommandOverride) SetVisible(context.Context, bool) {}

func (o *CommandOverride) StartPlayback(ctx context.Context, ended func()) error {
	if len(o.argv) == 0 {
		return fmt.Errorf("%w: player command is empty", ErrPlaybackStart)
	}
	if o.media == "" {
		return fmt.Errorf("%w: override media is empty", ErrPlaybackStart)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cmd != nil {
		return fmt.Errorf("%w: player already running", ErrPlaybackStart)
	}

	args := append(append([]string(nil), o.argv[1:]...), o.media)
	cmd := exec.CommandContext(ctx, o.argv[0], args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPlaybackStart, o.argv[0], err)
	}
	o.cmd = cmd
	o.stopped = false

	go o.wait(cmd, ended)
	return nil
}

func (o *CommandOverride) wait(cmd *exec.Cmd, ended func()) {
	err := cmd.Wait()

	o.mu.Lock()
	stopped := o.stopped
	if o.cmd == cmd {
		o.cmd = nil
	}
	o.mu.Unlock()

	if stopped {
		return
	}
	if err != nil && o.logger != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			o.logger.Warn("player exited with error", "exit_code", exitErr.ExitCode())
		} else {
			o.logger.Warn("player wait failed", "error", err.Error())
		}
	}
	if ended != nil {
		ended()
	}
}

// StopPlayback terminates a running player without reporting an end.
func (o *CommandOverride) StopPlayback(context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cmd == nil || o.cmd.Process == nil {
		return
	}
	o.stopped = true
	_ = o.cmd.Process.Kill()
}
