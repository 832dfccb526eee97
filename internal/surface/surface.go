// Package surface defines the two UI surfaces and the command-player backend.
package surface

import (
	"context"
	"errors"
	"log/slog"
)

// ErrPlaybackStart reports that override playback could not begin.
var ErrPlaybackStart = errors.New("override playback failed to start")

// Primary is the normal live-preview surface.
type Primary interface {
	SetVisible(ctx context.Context, visible bool)
	SetOpacity(ctx context.Context, opacity float64)
}

// Override is the motivational surface with its media playback lifecycle.
//
// StartPlayback must return once playback has begun (or failed to). ended is
// invoked at most once, when playback runs to completion.
type Override interface {
	SetVisible(ctx context.Context, visible bool)
	StartPlayback(ctx context.Context, ended func()) error
	StopPlayback(ctx context.Context)
}

// LogPrimary stands in for the primary surface when no window exists.
type LogPrimary struct {
	Logger *slog.Logger
}

func (p LogPrimary) SetVisible(_ context.Context, visible bool) {
	if p.Logger != nil {
		p.Logger.Debug("primary surface visibility", "visible", visible)
	}
}

func (p LogPrimary) SetOpacity(_ context.Context, opacity float64) {
	if p.Logger != nil {
		p.Logger.Debug("primary surface opacity", "opacity", opacity)
	}
}
