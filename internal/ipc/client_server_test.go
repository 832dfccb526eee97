package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// serve starts Serve on a fresh socket and returns its path plus a stop
// func that asserts a clean shutdown.
func serve(t *testing.T, handler HandlerFunc) (string, func()) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "wwld.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, listener, handler) }()

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		require.NoError(t, <-done)
	}
	t.Cleanup(stop)
	return socketPath, stop
}

// rawPeer accepts one connection and hands it to fn.
func rawPeer(t *testing.T, fn func(net.Conn)) string {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "wwld.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}()
	return socketPath
}

func TestSendRoundTripWithSnapshot(t *testing.T) {
	seen := make(chan string, 1)
	socketPath, _ := serve(t, func(_ context.Context, req Request) Response {
		seen <- req.Command
		return Response{OK: true, State: "override", Status: &Status{
			Camera: "healthy", Device: "/dev/video0", Surface: "command", Cycles: 40, Skipped: 3, Positive: 1,
		}}
	})

	resp, err := Send(context.Background(), socketPath, Request{Command: "status"}, 200*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "status", <-seen)
	require.True(t, resp.OK)
	require.Equal(t, "override", resp.State)
	require.Equal(t, &Status{
		Camera: "healthy", Device: "/dev/video0", Surface: "command", Cycles: 40, Skipped: 3, Positive: 1,
	}, resp.Status)
}

func TestSendPeerFailures(t *testing.T) {
	tests := []struct {
		name    string
		peer    func(net.Conn)
		wantErr string
	}{
		{
			name: "garbage reply",
			peer: func(c net.Conn) {
				_, _ = bufio.NewReader(c).ReadBytes('\n')
				_, _ = c.Write([]byte("{oops\n"))
			},
			wantErr: "decode response",
		},
		{
			name: "hang up",
			peer: func(c net.Conn) {
				_, _ = bufio.NewReader(c).ReadBytes('\n')
			},
			wantErr: "read response",
		},
		{
			name: "silent peer",
			peer: func(net.Conn) {
				time.Sleep(300 * time.Millisecond)
			},
			wantErr: "read response",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			socketPath := rawPeer(t, tc.peer)
			_, err := Send(context.Background(), socketPath, Request{Command: "status"}, 100*time.Millisecond)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestServeRejectsMalformedAndIdleRequests(t *testing.T) {
	socketPath, _ := serve(t, func(context.Context, Request) Response {
		return Response{OK: true}
	})

	exchange := func(payload string) Response {
		conn, err := net.Dial("unix", socketPath)
		require.NoError(t, err)
		defer conn.Close()

		if payload != "" {
			_, err = conn.Write([]byte(payload))
			require.NoError(t, err)
		}
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		line, err := bufio.NewReader(conn).ReadBytes('\n')
		require.NoError(t, err)

		var resp Response
		require.NoError(t, json.Unmarshal(line, &resp))
		return resp
	}

	resp := exchange("stop please\n")
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "decode request")

	// No request line at all: the server gives up after requestTimeout.
	resp = exchange("")
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "read request")
}

func TestUnreachable(t *testing.T) {
	require.False(t, Unreachable(nil))
	require.True(t, Unreachable(os.ErrNotExist))
	require.True(t, Unreachable(syscall.ECONNREFUSED))
	require.True(t, Unreachable(errors.New("dial unix /run/user/1000/wwld.sock: connect: no such file or directory")))
	require.False(t, Unreachable(errors.New("i/o timeout")))

	_, err := Send(context.Background(), filepath.Join(t.TempDir(), "missing.sock"), Request{Command: "status"}, 50*time.Millisecond)
	require.True(t, Unreachable(err))
}
