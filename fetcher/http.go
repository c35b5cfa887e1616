package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/scipunch/editorhub/feed"
)

// maxDocumentSize caps the size of a remote feed document.
const maxDocumentSize = 8 << 20

// HTTPSource fetches a JSON feed document with GET.
type HTTPSource[T feed.Item[T]] struct {
	url    string
	client *http.Client
	opts   Options
}

// NewHTTPSource creates a JSON source for url.
func NewHTTPSource[T feed.Item[T]](url string, opts Options) *HTTPSource[T] {
	return &HTTPSource[T]{
		url:    url,
		client: opts.httpClient(),
		opts:   opts,
	}
}

func (s *HTTPSource[T]) Name() string {
	return s.url
}

// Fetch retrieves and validates the document, retrying failed attempts.
func (s *HTTPSource[T]) Fetch(ctx context.Context) (feed.Feed[T], error) {
	f, err := withRetry(ctx, s.url, s.opts, func() (feed.Feed[T], error) {
		return s.fetchOnce(ctx)
	})
	if err != nil {
		return f, err
	}
	slog.Debug("fetched source", "source", s.url, "kind", feed.KindOf[T](), "items", len(f.Items))
	return f, nil
}

func (s *HTTPSource[T]) fetchOnce(ctx context.Context) (feed.Feed[T], error) {
	var f feed.Feed[T]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return f, fmt.Errorf("failed to build request for %s with %w", s.url, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.opts.UserAgent != "" {
		req.Header.Set("User-Agent", s.opts.UserAgent)
	}
	if s.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.opts.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return f, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return f, &StatusError{URL: s.url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return f, fmt.Errorf("%w: failed to read body with %w", ErrTransport, err)
	}

	f, err = feed.Decode[T](body)
	if err != nil {
		return f, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if !f.IsValid() {
		return f, fmt.Errorf("%w: %s has no lastUpdated or no valid %s", ErrParse, s.url, feed.KindOf[T]())
	}
	applyDefaults(f.Items)
	return f, nil
}

// applyDefaults fills unset fields on item types that define defaults.
func applyDefaults[T any](items []T) {
	for i, item := range items {
		if d, ok := any(item).(interface{ WithDefaults() T }); ok {
			items[i] = d.WithDefaults()
		}
	}
}
