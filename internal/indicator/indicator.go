// Package indicator handles status notifications and audio cue playback.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/wwld/internal/camera"
	"github.com/rbright/wwld/internal/config"
	"github.com/rbright/wwld/internal/hypr"
)

// Hyprland notify icon ids.
const (
	iconInfo  = 1
	iconError = 3
)

// Controller is the runtime-facing indicator contract.
type Controller interface {
	SetStatus(context.Context, camera.Status)
	CueOverride(context.Context)
	CueResume(context.Context)
	Hide(context.Context)
}

// Notify routes status through Hyprland or desktop DBus based on config backend.
type Notify struct {
	cfg    config.IndicatorConfig
	logger *slog.Logger

	mu                    sync.Mutex
	desktopNotificationID uint32
	soundMu               sync.Mutex
}

// New creates an indicator controller from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notify {
	return &Notify{cfg: cfg, logger: logger}
}

// SetStatus shows the status text. The camera error status is sticky
// for the configured error timeout; other statuses are brief. A status
// without text is not shown.
func (n *Notify) SetStatus(ctx context.Context, status camera.Status) {
	text := strings.TrimSpace(status.Text)
	if !n.cfg.Enable || text == "" {
		return
	}

	icon, timeout := iconInfo, 1500
	if status == camera.ErrorStatus {
		icon = iconError
		timeout = n.cfg.ErrorTimeoutMS
		if timeout <= 0 {
			timeout = 4000
		}
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, icon, timeout, status.Color, text)
	})
}

// CueOverride emits the cue for entering the override surface.
func (n *Notify) CueOverride(ctx context.Context) {
	n.playCue(ctx, cueOverride)
}

// CueResume emits the cue for returning to the live preview.
func (n *Notify) CueResume(ctx context.Context) {
	n.playCue(ctx, cueResume)
}

// Hide dismisses the active indicator surface.
func (n *Notify) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.dismiss)
}

// notify dispatches indicator output through the configured backend.
func (n *Notify) notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	if n.cfg.UsesDesktop() {
		return n.notifyDesktop(ctx, timeoutMS, text, icon == iconError)
	}
	return hypr.Notify(ctx, icon, timeoutMS, color, text)
}

func (n *Notify) dismiss(ctx context.Context) error {
	if n.cfg.UsesDesktop() {
		return n.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notify) notifyDesktop(ctx context.Context, timeoutMS int, text string, critical bool) error {
	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "wwld"
	}

	n.mu.Lock()
	msg := desktopNotification{
		appName:   appName,
		replaceID: n.desktopNotificationID,
		summary:   text,
		critical:  critical,
		timeoutMS: timeoutMS,
	}
	n.mu.Unlock()

	id, err := msg.send(ctx)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

func (n *Notify) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return closeDesktopNotification(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notify) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notify) playCue(ctx context.Context, kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := emitCue(ctx, kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notify) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
