package classify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClassifySendsDataURLAndParsesVerdict(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0}
	var got request
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/process_frame", r.URL.Path)
		require.Contains(t, r.Header.Get("Content-Type"), "application/json")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"eatingDetected": true}`))
	})

	client := New(Options{URL: srv.URL + "/process_frame", Timeout: time.Second})
	verdict, err := client.Classify(context.Background(), jpeg)
	require.NoError(t, err)
	require.Equal(t, VerdictPositive, verdict)

	require.True(t, strings.HasPrefix(got.Image, "data:image/jpeg;base64,"))
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got.Image, "data:image/jpeg;base64,"))
	require.NoError(t, err)
	require.Equal(t, jpeg, decoded)
}

func TestClassifyNegativeVerdicts(t *testing.T) {
	for name, body := range map[string]string{
		"false":  `{"eatingDetected": false}`,
		"absent": `{}`,
		"extra":  `{"eatingDetected": false, "confidence": 0.2}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			verdict, err := New(Options{URL: srv.URL}).Classify(context.Background(), []byte{1})
			require.NoError(t, err)
			require.Equal(t, VerdictNegative, verdict)
		})
	}
}

func TestClassifyFailuresMatchCycleFailed(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: "500",
		},
		{
			name: "bad request",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"No image data"}`, http.StatusBadRequest)
			},
			want: "400",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			want: "decode response",
		},
		{
			name: "null body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`null`))
			},
			want: "null body",
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			want: "decode response",
		},
		{
			name: "wrong type",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"eatingDetected": "yes"}`))
			},
			want: "decode response",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, tc.handler)
			_, err := New(Options{URL: srv.URL}).Classify(context.Background(), []byte{1})
			require.ErrorIs(t, err, ErrCycleFailed)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestClassifyTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Options{URL: url, Timeout: 200 * time.Millisecond}).Classify(context.Background(), []byte{1})
	require.ErrorIs(t, err, ErrCycleFailed)
}

func TestClassifyTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	start := time.Now()
	_, err := New(Options{URL: srv.URL, Timeout: 50 * time.Millisecond}).Classify(context.Background(), []byte{1})
	require.ErrorIs(t, err, ErrCycleFailed)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestClassifyEmptyPayload(t *testing.T) {
	_, err := New(Options{URL: "http://127.0.0.1:1"}).Classify(context.Background(), nil)
	require.ErrorIs(t, err, ErrCycleFailed)
}

func TestClassifyRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"eatingDetected": true}`))
	})

	client := New(Options{URL: srv.URL, RetryCount: 1, RetryWait: 10 * time.Millisecond})
	verdict, err := client.Classify(context.Background(), []byte{1})
	require.NoError(t, err)
	require.Equal(t, VerdictPositive, verdict)
	require.Equal(t, int32(2), calls.Load())
}

func TestClassifyNoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := New(Options{URL: srv.URL}).Classify(context.Background(), []byte{1})
	require.ErrorIs(t, err, ErrCycleFailed)
	require.Equal(t, int32(1), calls.Load())
}

func TestHealth(t *testing.T) {
	require.NoError(t, New(Options{URL: "http://127.0.0.1:1"}).Health(context.Background()))

	ok := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, New(Options{URL: ok.URL, HealthURL: ok.URL + "/health"}).Health(context.Background()))

	down := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	err := New(Options{URL: down.URL, HealthURL: down.URL}).Health(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}
