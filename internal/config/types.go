// Package config resolves, parses, validates, and defaults wwld configuration.
package config

import (
	"strings"
	"time"
)

// Config is the fully materialized runtime configuration used by wwld.
type Config struct {
	Camera     CameraConfig
	Capture    CaptureConfig
	Classifier ClassifierConfig
	Transition TransitionConfig
	Surface    SurfaceConfig
	Indicator  IndicatorConfig
	Events     EventsConfig
}

// CameraConfig selects the capture device and still-frame encoding.
type CameraConfig struct {
	// Device is a numeric index ("0") or a device path ("/dev/video2").
	Device      string
	JPEGQuality int
	PreviewFPS  int
}

// CaptureConfig controls the fixed capture cadence.
type CaptureConfig struct {
	IntervalMS int
}

// ClassifierConfig points at the remote eating classifier.
type ClassifierConfig struct {
	URL         string
	HealthURL   string
	TimeoutMS   int
	RetryCount  int
	RetryWaitMS int
}

// TransitionConfig controls fade timing and override safety nets.
type TransitionConfig struct {
	FadeOutMS      int
	FadeInDelayMS  int
	StallTimeoutMS int
	MaxOverrideMS  int
}

// SurfaceConfig selects how the primary and override surfaces are rendered.
type SurfaceConfig struct {
	Backend       string
	Listen        string
	OverrideMedia string
	PlayerCmd     CommandConfig
}

// IndicatorConfig controls the camera status indicator and audio cues.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
	ErrorTimeoutMS int
}

// EventsConfig controls optional transition event publishing.
type EventsConfig struct {
	MQTTBroker string
	Topic      string
	ClientID   string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// Interval returns the capture tick period.
func (c CaptureConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// Timeout returns the per-request classifier timeout.
func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// RetryWait returns the pause between classifier retries.
func (c ClassifierConfig) RetryWait() time.Duration {
	return time.Duration(c.RetryWaitMS) * time.Millisecond
}

// UsesCommand reports whether override playback runs an external player.
func (c SurfaceConfig) UsesCommand() bool {
	return strings.EqualFold(strings.TrimSpace(c.Backend), "command")
}

// UsesDesktop reports whether status goes through freedesktop notifications.
func (c IndicatorConfig) UsesDesktop() bool {
	return strings.EqualFold(strings.TrimSpace(c.Backend), "desktop")
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (c TransitionConfig) FadeOut() time.Duration      { return ms(c.FadeOutMS) }
func (c TransitionConfig) FadeInDelay() time.Duration  { return ms(c.FadeInDelayMS) }
func (c TransitionConfig) StallTimeout() time.Duration { return ms(c.StallTimeoutMS) }
func (c TransitionConfig) MaxOverride() time.Duration  { return ms(c.MaxOverrideMS) }
