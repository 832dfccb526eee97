// Package camera acquires the live video capability once and turns its
// current frame into still JPEG payloads.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var (
	// ErrCapability indicates the camera could not be acquired; it is terminal.
	ErrCapability = errors.New("camera capability unavailable")
	// ErrEncode indicates one frame could not be captured or encoded.
	ErrEncode = errors.New("frame encode failed")
)

// Status is the two-part status indicator signal: a label and a color.
type Status struct {
	Text  string
	Color string
}

// ErrorStatus is the fixed degraded representation shown on acquisition failure.
var ErrorStatus = Status{Text: "Camera Error", Color: "#ef4444"}

// StatusSink receives status indicator updates.
type StatusSink interface {
	SetStatus(context.Context, Status)
}

// Source is an open live video device.
type Source interface {
	// ReadJPEG grabs the current frame at native resolution and encodes it.
	ReadJPEG(quality int) (jpeg []byte, width int, height int, err error)
	Close() error
}

// Opener opens a device by index ("0") or path ("/dev/video2").
type Opener func(device string) (Source, error)

// Device describes one probed video input.
type Device struct {
	ID     string
	Width  int
	Height int
}

// Capability is live access to the camera. It is created once per process
// and never recreated; an unhealthy capability stays unhealthy.
type Capability struct {
	device string
	err    error

	mu     sync.Mutex
	source Source
	closed bool
}

// Acquire opens the device once and verifies a first frame can be read.
// On any failure the status sink receives ErrorStatus and the returned
// capability is permanently unhealthy. There is no retry.
func Acquire(ctx context.Context, open Opener, device string, status StatusSink, logger *slog.Logger) *Capability {
	c := &Capability{device: strings.TrimSpace(device)}

	source, err := openAndVerify(open, c.device)
	if err != nil {
		c.err = fmt.Errorf("%w: %w", ErrCapability, err)
		if logger != nil {
			logger.Error("camera acquisition failed", "device", c.device, "error", c.err.Error())
		}
		if status != nil {
			status.SetStatus(ctx, ErrorStatus)
		}
		return c
	}

	c.source = source
	if logger != nil {
		logger.Info("camera acquired", "device", c.device)
	}
	return c
}

func openAndVerify(open Opener, device string) (Source, error) {
	if open == nil {
		return nil, errors.New("no camera opener configured")
	}
	if device == "" {
		return nil, errors.New("camera device is empty")
	}

	source, err := open(device)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", device, err)
	}
	if source == nil {
		return nil, fmt.Errorf("open %q: no source returned", device)
	}
	if _, _, _, err := source.ReadJPEG(50); err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("read first frame from %q: %w", device, err)
	}
	return source, nil
}

// Healthy reports whether the capability holds a live source.
func (c *Capability) Healthy() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source != nil && !c.closed
}

// Device returns the configured device identifier.
func (c *Capability) Device() string {
	return c.device
}

// Err returns the acquisition failure, if any.
func (c *Capability) Err() error {
	return c.err
}

// Close releases the device. The capability is unhealthy afterwards.
func (c *Capability) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.source == nil {
		c.closed = true
		return nil
	}
	c.closed = true
	return c.source.Close()
}

// read serializes device access between the encoder and preview readers.
func (c *Capability) read(quality int) ([]byte, int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil || c.closed {
		return nil, 0, 0, ErrCapability
	}
	return c.source.ReadJPEG(quality)
}

// Frame is one encoded still image.
type Frame struct {
	JPEG       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Encoder produces fixed-quality JPEG stills from a capability.
type Encoder struct {
	quality int
	now     func() time.Time
}

// NewEncoder returns an encoder using quality in [1,100].
func NewEncoder(quality int) *Encoder {
	if quality < 1 || quality > 100 {
		quality = 92
	}
	return &Encoder{quality: quality, now: time.Now}
}

// Encode captures the current frame of a healthy capability. Dimensions
// are taken from each frame since the device may change resolution.
func (e *Encoder) Encode(c *Capability) (Frame, error) {
	if !c.Healthy() {
		return Frame{}, fmt.Errorf("%w: %w", ErrEncode, ErrCapability)
	}

	jpeg, width, height, err := c.read(e.quality)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if len(jpeg) == 0 {
		return Frame{}, fmt.Errorf("%w: empty payload", ErrEncode)
	}
	if width <= 0 || height <= 0 {
		return Frame{}, fmt.Errorf("%w: invalid dimensions %dx%d", ErrEncode, width, height)
	}

	return Frame{JPEG: jpeg, Width: width, Height: height, CapturedAt: e.now()}, nil
}
