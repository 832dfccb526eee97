package indicator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCueSamplesPresent(t *testing.T) {
	require.NotEmpty(t, cueSamples(cueOverride))
	require.NotEmpty(t, cueSamples(cueResume))
	require.Empty(t, cueSamples(cueKind(99)))
}

func TestOverrideCueIsLongerThanResume(t *testing.T) {
	require.Greater(t, len(cueSamples(cueOverride)), len(cueSamples(cueResume)))
}

func TestGlideLengthAndWindowedEdges(t *testing.T) {
	got := glide{fromHz: 440, toHz: 880, duration: 100 * time.Millisecond, gain: 0.2}.samples()
	require.Len(t, got, sampleCount(100*time.Millisecond))
	require.Equal(t, int16(0), got[0])
	require.Equal(t, int16(0), got[len(got)-1])

	peak := int16(0)
	for _, s := range got {
		if s > peak {
			peak = s
		}
	}
	require.LessOrEqual(t, float64(peak), 0.2*32767)
	require.Greater(t, peak, int16(0))
}

func TestGlideInvalidReturnsEmpty(t *testing.T) {
	require.Empty(t, glide{fromHz: 0, toHz: 440, duration: 100 * time.Millisecond, gain: 0.2}.samples())
	require.Empty(t, glide{fromHz: 440, toHz: 440, duration: 0, gain: 0.2}.samples())
	require.Empty(t, glide{fromHz: 440, toHz: 440, duration: 100 * time.Millisecond}.samples())
}

func TestRenderInsertsGap(t *testing.T) {
	one := glide{fromHz: 440, toHz: 440, duration: 50 * time.Millisecond, gain: 0.1}
	require.Len(t, render(one, one), 2*sampleCount(50*time.Millisecond)+sampleCount(18*time.Millisecond))
}

func TestEmitCueRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := emitCue(ctx, cueOverride)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}
