// Package content serves announcements and changelogs, preferring a fresh
// cache over the network.
package content

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/scipunch/editorhub/cache"
	"github.com/scipunch/editorhub/event"
	"github.com/scipunch/editorhub/feed"
	"github.com/scipunch/editorhub/fetcher"
)

// ErrNotInitialized is returned when a service has no fetcher.
var ErrNotInitialized = errors.New("content service is not initialized")

// State is the fetch state of a service.
type State int32

const (
	Idle State = iota
	Fetching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	default:
		return "unknown"
	}
}

// Fetcher produces a merged feed; *fetcher.Multi implements it.
type Fetcher[T feed.Item[T]] interface {
	Fetch(ctx context.Context) (feed.Feed[T], []fetcher.SourceResult[T], error)
}

// Response is what callers receive.
type Response[T feed.Item[T]] struct {
	Feed      feed.Feed[T]
	FromCache bool

	// Results holds per-source outcomes of a remote fetch.
	Results []fetcher.SourceResult[T]
}

// Callback receives the result of GetContentAsync.
type Callback[T feed.Item[T]] func(Response[T], error)

// Options wires optional collaborators into a Service.
type Options[T feed.Item[T]] struct {
	// Cache is consulted before the network and updated after it.
	Cache *cache.Manager[T]

	// Events receives content.* events.
	Events *event.Aggregator

	// Loop runs GetContentAsync callbacks.
	Loop *event.Loop

	// Filter narrows served items.
	Filter func([]T) []T
}

// Service serves one content kind.
type Service[T feed.Item[T]] struct {
	kind    string
	fetcher Fetcher[T]
	cache   *cache.Manager[T]
	events  *event.Aggregator
	loop    *event.Loop
	filter  func([]T) []T

	group    singleflight.Group
	inflight atomic.Int32
}

// NewService creates a service for the kind of T.
func NewService[T feed.Item[T]](f Fetcher[T], opts Options[T]) *Service[T] {
	return &Service[T]{
		kind:    feed.KindOf[T](),
		fetcher: f,
		cache:   opts.Cache,
		events:  opts.Events,
		loop:    opts.Loop,
		filter:  opts.Filter,
	}
}

// Kind returns the served content kind.
func (s *Service[T]) Kind() string {
	return s.kind
}

// State reports whether a remote fetch is in flight.
func (s *Service[T]) State() State {
	if s.inflight.Load() > 0 {
		return Fetching
	}
	return Idle
}

// GetContent returns cached content when fresh, otherwise fetches it.
// forceRefresh drops the memory entry and always fetches. Concurrent
// remote fetches share one request, which keeps running when a caller
// gives up. A failed fetch leaves the cache as it was.
func (s *Service[T]) GetContent(ctx context.Context, forceRefresh bool) (Response[T], error) {
	if s.fetcher == nil {
		return Response[T]{}, ErrNotInitialized
	}

	if s.cache != nil {
		if forceRefresh {
			s.cache.Invalidate()
		} else if f, ok := s.cache.Lookup(); ok {
			slog.Debug("serving from cache", "kind", s.kind, "items", len(f.Items))
			resp := Response[T]{Feed: f, FromCache: true}
			s.publish(event.ContentUpdated{Content: s.kind, Items: len(f.Items), FromCache: true})
			return s.narrow(resp), nil
		}
	}

	// The shared fetch outlives any one caller; each caller only stops
	// waiting when its own ctx is done.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(s.kind, func() (any, error) {
		return s.refresh(fetchCtx, forceRefresh)
	})
	select {
	case <-ctx.Done():
		return Response[T]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Response[T]{}, res.Err
		}
		if res.Shared {
			slog.Debug("joined in-flight fetch", "kind", s.kind)
		}
		return s.narrow(res.Val.(Response[T])), nil
	}
}

// GetContentAsync runs GetContent in the background and hands the result
// to cb on the loop, or on the background goroutine when no loop is set.
func (s *Service[T]) GetContentAsync(ctx context.Context, forceRefresh bool, cb Callback[T]) {
	go func() {
		resp, err := s.GetContent(ctx, forceRefresh)
		if cb == nil {
			return
		}
		if s.loop != nil && s.loop.Post(func() { cb(resp, err) }) {
			return
		}
		cb(resp, err)
	}()
}

// Invalidate drops the in-memory cache entry.
func (s *Service[T]) Invalidate() {
	if s.cache != nil {
		s.cache.Invalidate()
	}
}

// Cached returns the last stored feed regardless of its age, narrowed
// like a normal response. Used to show something after a failed refresh.
func (s *Service[T]) Cached() (feed.Feed[T], bool) {
	if s.cache == nil {
		return feed.Feed[T]{}, false
	}
	entry, ok := s.cache.Peek()
	if !ok {
		return feed.Feed[T]{}, false
	}
	return s.narrow(Response[T]{Feed: entry.Feed}).Feed, true
}

func (s *Service[T]) refresh(ctx context.Context, forced bool) (Response[T], error) {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	s.publish(event.FetchStarted{Content: s.kind, Forced: forced})

	f, results, err := s.fetcher.Fetch(ctx)
	if err != nil {
		slog.Error("content fetch failed", "kind", s.kind, "error", err)
		s.publish(event.FetchFailed{Content: s.kind, Err: err})
		return Response[T]{}, err
	}

	if s.cache != nil {
		if err := s.cache.Save(f); err != nil {
			slog.Warn("failed to persist content", "kind", s.kind, "error", err)
		}
	}

	slog.Info("content refreshed", "kind", s.kind, "items", len(f.Items), "sources", len(results))
	s.publish(event.ContentUpdated{Content: s.kind, Items: len(f.Items)})
	return Response[T]{Feed: f, Results: results}, nil
}

func (s *Service[T]) narrow(resp Response[T]) Response[T] {
	if s.filter == nil {
		return resp
	}
	// Copy so the cached slice is never modified.
	resp.Feed.Items = s.filter(append([]T(nil), resp.Feed.Items...))
	return resp
}

func (s *Service[T]) publish(e event.Event) {
	if s.events != nil {
		s.events.Publish(e)
	}
}
