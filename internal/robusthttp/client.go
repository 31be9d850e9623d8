// Package robusthttp builds the retrying HTTP client used for upstream APIs.
package robusthttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// LeveledSlog adapts slog to retryablehttp's leveled logger.
type LeveledSlog struct {
	inner *slog.Logger
}

// Error is logged at WARN since the request is usually retried.
func (l LeveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

func (l LeveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

type Option func(*retryablehttp.Client)

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(n int) Option {
	return func(c *retryablehttp.Client) { c.RetryMax = n }
}

// WithRetryWait sets the backoff bounds.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = min
		c.RetryWaitMax = max
	}
}

// WithLogger sets the logger for intermediate failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *retryablehttp.Client) {
		c.Logger = retryablehttp.LeveledLogger(LeveledSlog{inner: logger})
	}
}

// NewClient returns a stdlib *http.Client that retries connection errors,
// 5xx responses (except 501) and 429 with backoff.
func NewClient(timeout time.Duration, options ...Option) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = cleanhttp.DefaultPooledTransport()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(LeveledSlog{inner: slog.Default().With("subsystem", "robusthttp")})
	retryClient.CheckRetry = RetryPolicy

	for _, option := range options {
		option(retryClient)
	}

	client := retryClient.StandardClient()
	client.Timeout = timeout
	return client
}

// RetryPolicy never retries 401 so callers can refresh credentials first.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
