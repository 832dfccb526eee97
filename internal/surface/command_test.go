package surface

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "player")
	require.NoError(t, os.WriteFile(path, []byte("#!/usr/bin/env bash\nset -euo pipefail\n"+body+"\n"), 0o755))
	return path
}

func TestCommandOverrideReportsEnd(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.log")
	player := writeScript(t, `printf '%s\n' "$*" > "`+argsFile+`"`)

	o := NewCommandOverride([]string{player, "--fs"}, "/tmp/motivation.mp4", nil)
	ended := make(chan struct{})
	require.NoError(t, o.StartPlayback(context.Background(), func() { close(ended) }))

	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for playback end")
	}

	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Equal(t, "--fs /tmp/motivation.mp4", strings.TrimSpace(string(raw)))
}

func TestCommandOverrideStartFailure(t *testing.T) {
	o := NewCommandOverride([]string{filepath.Join(t.TempDir(), "missing-player")}, "/tmp/m.mp4", nil)
	err := o.StartPlayback(context.Background(), func() { t.Fatal("ended must not be called") })
	require.ErrorIs(t, err, ErrPlaybackStart)

	err = NewCommandOverride(nil, "/tmp/m.mp4", nil).StartPlayback(context.Background(), nil)
	require.ErrorIs(t, err, ErrPlaybackStart)

	err = NewCommandOverride([]string{"mpv"}, " ", nil).StartPlayback(context.Background(), nil)
	require.ErrorIs(t, err, ErrPlaybackStart)
}

func TestCommandOverrideStopSuppressesEnd(t *testing.T) {
	player := writeScript(t, "sleep 30")
	o := NewCommandOverride([]string{player}, "/tmp/m.mp4", nil)

	ended := make(chan struct{}, 1)
	require.NoError(t, o.StartPlayback(context.Background(), func() { ended <- struct{}{} }))

	err := o.StartPlayback(context.Background(), nil)
	require.ErrorIs(t, err, ErrPlaybackStart)

	o.StopPlayback(context.Background())
	require.Eventually(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.cmd == nil
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-ended:
		t.Fatal("stopped playback must not report an end")
	default:
	}
}
