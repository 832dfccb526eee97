// Package classify submits still frames to the remote eating classifier.
package classify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrCycleFailed is the single failure kind of one classification cycle.
var ErrCycleFailed = errors.New("classification cycle failed")

// Verdict is the classifier outcome for one frame.
type Verdict string

const (
	VerdictPositive Verdict = "positive"
	VerdictNegative Verdict = "negative"
)

const dataURLPrefix = "data:image/jpeg;base64,"

// Options configures the classifier client.
type Options struct {
	URL        string
	HealthURL  string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
	Logger     *slog.Logger
}

// Client posts frames to the classifier endpoint.
type Client struct {
	http      *resty.Client
	url       string
	healthURL string
	logger    *slog.Logger
}

type request struct {
	Image string `json:"image"`
}

type response struct {
	EatingDetected bool `json:"eatingDetected"`
}

// New builds a client. Timeout applies to each attempt.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(max(opts.RetryCount, 0)).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode() >= http.StatusInternalServerError)
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.RetryWait > 0 {
		httpClient.
			SetRetryWaitTime(opts.RetryWait).
			SetRetryMaxWaitTime(max(opts.RetryWait, time.Second))
	}

	return &Client{
		http:      httpClient,
		url:       strings.TrimSpace(opts.URL),
		healthURL: strings.TrimSpace(opts.HealthURL),
		logger:    opts.Logger,
	}
}

// EncodeDataURL wraps a JPEG payload the way the classifier expects it.
func EncodeDataURL(jpeg []byte) string {
	return dataURLPrefix + base64.StdEncoding.EncodeToString(jpeg)
}

// Classify submits one JPEG and returns the verdict. Every failure
// (transport, status, body) matches ErrCycleFailed.
func (c *Client) Classify(ctx context.Context, jpeg []byte) (Verdict, error) {
	if len(jpeg) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrCycleFailed)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request{Image: EncodeDataURL(jpeg)}).
		Post(c.url)
	if err != nil {
		return "", fmt.Errorf("%w: post %s: %w", ErrCycleFailed, c.url, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return "", fmt.Errorf("%w: classifier returned %s", ErrCycleFailed, resp.Status())
	}

	var payload *response
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrCycleFailed, err)
	}
	if payload == nil {
		return "", fmt.Errorf("%w: decode response: null body", ErrCycleFailed)
	}

	if c.logger != nil {
		c.logger.Debug("classifier verdict",
			"eating_detected", payload.EatingDetected,
			"duration_ms", resp.Time().Milliseconds(),
		)
	}
	if payload.EatingDetected {
		return VerdictPositive, nil
	}
	return VerdictNegative, nil
}

// Health probes the optional health URL. An unset URL is not an error.
func (c *Client) Health(ctx context.Context) error {
	if c.healthURL == "" {
		return nil
	}
	resp, err := c.http.R().SetContext(ctx).Get(c.healthURL)
	if err != nil {
		return fmt.Errorf("probe %s: %w", c.healthURL, err)
	}
	if resp.IsError() {
		return fmt.Errorf("probe %s: %s", c.healthURL, resp.Status())
	}
	return nil
}

// URL returns the configured classify endpoint.
func (c *Client) URL() string {
	return c.url
}
