package camera

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	reads   int
	sizes   [][2]int
	failAt  int
	closed  bool
	payload []byte
}

func (f *fakeSource) ReadJPEG(quality int) ([]byte, int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failAt > 0 && f.reads == f.failAt {
		return nil, 0, 0, errors.New("device unplugged")
	}
	size := [2]int{640, 480}
	if len(f.sizes) > 0 {
		size = f.sizes[0]
		if len(f.sizes) > 1 {
			f.sizes = f.sizes[1:]
		}
	}
	payload := f.payload
	if payload == nil {
		payload = []byte{0xff, 0xd8, byte(quality)}
	}
	return payload, size[0], size[1], nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	updates []Status
}

func (r *recordingSink) SetStatus(_ context.Context, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, status)
}

func openerFor(src Source, err error) (Opener, *int) {
	calls := 0
	return func(string) (Source, error) {
		calls++
		return src, err
	}, &calls
}

func TestAcquireHealthy(t *testing.T) {
	src := &fakeSource{}
	open, calls := openerFor(src, nil)
	sink := &recordingSink{}

	c := Acquire(context.Background(), open, "0", sink, nil)
	require.True(t, c.Healthy())
	require.NoError(t, c.Err())
	require.Equal(t, "0", c.Device())
	require.Equal(t, 1, *calls)
	require.Empty(t, sink.updates)
}

func TestAcquireFailureReportsErrorStatusOnce(t *testing.T) {
	open, calls := openerFor(nil, errors.New("permission denied"))
	sink := &recordingSink{}

	c := Acquire(context.Background(), open, "/dev/video9", sink, nil)
	require.False(t, c.Healthy())
	require.ErrorIs(t, c.Err(), ErrCapability)
	require.Contains(t, c.Err().Error(), "permission denied")
	require.Equal(t, 1, *calls)
	require.Equal(t, []Status{{Text: "Camera Error", Color: "#ef4444"}}, sink.updates)
}

func TestAcquireFirstFrameFailureClosesSource(t *testing.T) {
	src := &fakeSource{failAt: 1}
	open, _ := openerFor(src, nil)
	sink := &recordingSink{}

	c := Acquire(context.Background(), open, "0", sink, nil)
	require.False(t, c.Healthy())
	require.True(t, src.closed)
	require.Len(t, sink.updates, 1)
}

func TestAcquireEmptyDevice(t *testing.T) {
	open, calls := openerFor(&fakeSource{}, nil)
	c := Acquire(context.Background(), open, "  ", nil, nil)
	require.False(t, c.Healthy())
	require.Equal(t, 0, *calls)
}

func TestEncoderQueriesDimensionsPerFrame(t *testing.T) {
	src := &fakeSource{sizes: [][2]int{{640, 480}, {640, 480}, {1280, 720}}}
	open, _ := openerFor(src, nil)
	c := Acquire(context.Background(), open, "0", nil, nil)
	require.True(t, c.Healthy())

	enc := NewEncoder(80)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	enc.now = func() time.Time { return fixed }

	first, err := enc.Encode(c)
	require.NoError(t, err)
	require.Equal(t, 640, first.Width)
	require.Equal(t, 480, first.Height)
	require.Equal(t, []byte{0xff, 0xd8, 80}, first.JPEG)
	require.Equal(t, fixed, first.CapturedAt)

	second, err := enc.Encode(c)
	require.NoError(t, err)
	require.Equal(t, 1280, second.Width)
	require.Equal(t, 720, second.Height)
}

func TestEncoderErrors(t *testing.T) {
	enc := NewEncoder(92)

	_, err := enc.Encode(&Capability{})
	require.ErrorIs(t, err, ErrEncode)
	require.ErrorIs(t, err, ErrCapability)

	src := &fakeSource{failAt: 2}
	open, _ := openerFor(src, nil)
	c := Acquire(context.Background(), open, "0", nil, nil)
	_, err = enc.Encode(c)
	require.ErrorIs(t, err, ErrEncode)
	require.Contains(t, err.Error(), "device unplugged")

	empty := &fakeSource{payload: []byte{}}
	open, _ = openerFor(empty, nil)
	c = Acquire(context.Background(), open, "0", nil, nil)
	_, err = enc.Encode(c)
	require.ErrorIs(t, err, ErrEncode)
	require.Contains(t, err.Error(), "empty payload")
}

func TestCloseMakesCapabilityUnhealthy(t *testing.T) {
	src := &fakeSource{}
	open, _ := openerFor(src, nil)
	c := Acquire(context.Background(), open, "0", nil, nil)

	require.NoError(t, c.Close())
	require.True(t, src.closed)
	require.False(t, c.Healthy())
	require.NoError(t, c.Close())

	_, err := NewEncoder(92).Encode(c)
	require.ErrorIs(t, err, ErrEncode)
}

func TestNewEncoderClampsQuality(t *testing.T) {
	require.Equal(t, 92, NewEncoder(0).quality)
	require.Equal(t, 92, NewEncoder(101).quality)
	require.Equal(t, 50, NewEncoder(50).quality)
}
