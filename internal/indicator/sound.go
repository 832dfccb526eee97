package indicator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jfreymuth/pulse"
)

type cueKind int

const (
	cueOverride cueKind = iota + 1
	cueResume
)

const cueSampleRate = 22050

// glide is a sine sweep between two pitches shaped by a Hann window.
type glide struct {
	fromHz   float64
	toHz     float64
	duration time.Duration
	gain     float64
}

var cues = map[cueKind][]int16{
	// Falling pair: attention moves to the override surface.
	cueOverride: render(
		glide{fromHz: 880, toHz: 660, duration: 120 * time.Millisecond, gain: 0.2},
		glide{fromHz: 660, toHz: 440, duration: 160 * time.Millisecond, gain: 0.2},
	),
	// Single rising sweep back to monitoring.
	cueResume: render(
		glide{fromHz: 523, toHz: 784, duration: 140 * time.Millisecond, gain: 0.16},
	),
}

func cueSamples(kind cueKind) []int16 {
	return cues[kind]
}

func emitCue(ctx context.Context, kind cueKind) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("emit cue: %w", err)
	}
	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return playPCM(samples)
}

// playPCM plays mono 16-bit samples on the default pulse sink and blocks
// until the stream drains.
func playPCM(samples []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("wwld"),
		pulse.ClientApplicationIconName("camera-web"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	remaining := samples
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		n := copy(buf, remaining)
		remaining = remaining[n:]
		if len(remaining) == 0 {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.03),
		pulse.PlaybackMediaName("wwld transition cue"),
	)
	if err != nil {
		return fmt.Errorf("open pulse playback: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue: %w", err)
	}
	return nil
}

// render concatenates glides with a short silence between them.
func render(parts ...glide) []int16 {
	gap := sampleCount(18 * time.Millisecond)
	var pcm []int16
	for i, part := range parts {
		if i > 0 {
			pcm = append(pcm, make([]int16, gap)...)
		}
		pcm = append(pcm, part.samples()...)
	}
	return pcm
}

func (g glide) samples() []int16 {
	n := sampleCount(g.duration)
	if n < 2 || g.fromHz <= 0 || g.toHz <= 0 || g.gain <= 0 {
		return nil
	}

	out := make([]int16, n)
	phase := 0.0
	for i := range out {
		progress := float64(i) / float64(n-1)
		freq := g.fromHz + (g.toHz-g.fromHz)*progress
		window := 0.5 - 0.5*math.Cos(2*math.Pi*progress)
		out[i] = int16(math.Round(math.Sin(phase) * window * g.gain * math.MaxInt16))
		phase += 2 * math.Pi * freq / cueSampleRate
	}
	return out
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
