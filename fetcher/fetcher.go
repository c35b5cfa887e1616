// Package fetcher retrieves feeds from remote sources and merges the
// results of several sources into one feed.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/scipunch/editorhub/feed"
)

var (
	// ErrTransport covers network failures, timeouts and non-2xx responses.
	ErrTransport = errors.New("transport failure")

	// ErrParse covers malformed or semantically invalid feed documents.
	ErrParse = errors.New("invalid feed document")

	// ErrNoSources is returned when no source URL is configured.
	ErrNoSources = errors.New("no sources configured")

	// ErrAllSourcesFailed is returned when not a single source succeeded.
	ErrAllSourcesFailed = errors.New("all sources failed")

	// ErrSourcesRequired is returned when some sources failed and the
	// policy requires every source to succeed.
	ErrSourcesRequired = errors.New("not all required sources succeeded")
)

// Source produces a feed of T.
type Source[T feed.Item[T]] interface {
	// Name identifies the source in logs and errors, usually its URL.
	Name() string
	Fetch(ctx context.Context) (feed.Feed[T], error)
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response %d %s from %s", e.Code, http.StatusText(e.Code), e.URL)
}

// Is makes every StatusError match ErrTransport.
func (e *StatusError) Is(target error) bool {
	return target == ErrTransport
}

// StatusCode extracts the HTTP response code from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Options configures a single-source fetch.
type Options struct {
	// Timeout bounds each attempt.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after the first failure.
	MaxRetries int

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration

	UserAgent string

	// APIKey is sent as a bearer token to JSON endpoints when set.
	APIKey string

	// Client overrides the HTTP client built from Timeout.
	Client *http.Client
}

// DefaultOptions returns the fetch defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		UserAgent:  "editorhub/1.0",
	}
}

func (o Options) httpClient() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return NewHTTPClient(o.Timeout)
}

// NewHTTPClient returns a client with a bounded per-request timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// withRetry runs op until it succeeds or MaxRetries extra attempts have
// failed, waiting RetryDelay between attempts. Context cancellation is
// never retried.
func withRetry[R any](ctx context.Context, name string, opts Options, op func() (R, error)) (R, error) {
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.RetryDelay), uint64(retries)),
		ctx,
	)

	attempt := 0
	return backoff.RetryNotifyWithData[R](func() (R, error) {
		attempt++
		res, err := op()
		if err != nil && ctx.Err() != nil {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, policy, func(err error, next time.Duration) {
		slog.Warn("fetch attempt failed, retrying",
			"source", name,
			"attempt", attempt,
			"max_retries", retries,
			"retry_in", next,
			"error", err)
	})
}
