package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/scipunch/editorhub/feed"
)

// Policy controls how per-source results are combined.
type Policy struct {
	// RequireAllSources fails the whole fetch when any source fails.
	RequireAllSources bool

	// Deduplicate collapses items sharing an id.
	Deduplicate bool
}

// SourceResult is the outcome of a single source.
type SourceResult[T feed.Item[T]] struct {
	Source     string
	Feed       feed.Feed[T]
	Err        error
	StatusCode int
}

// Outcome is the merged result of a multi-source fetch.
type Outcome[T feed.Item[T]] struct {
	Feed    feed.Feed[T]
	Results []SourceResult[T]
	Err     error
}

// Multi fetches several sources concurrently and merges their feeds.
type Multi[T feed.Item[T]] struct {
	sources []Source[T]
	policy  Policy
	now     func() time.Time
}

// NewMulti creates a multi-source fetcher. Sources keep their order, which
// decides dedup ties.
func NewMulti[T feed.Item[T]](sources []Source[T], policy Policy) *Multi[T] {
	return &Multi[T]{
		sources: sources,
		policy:  policy,
		now:     time.Now,
	}
}

// Sources returns the number of configured sources.
func (m *Multi[T]) Sources() int {
	return len(m.sources)
}

// FetchAsync starts one goroutine per source and returns a channel that
// receives exactly one Outcome once every source has reported.
func (m *Multi[T]) FetchAsync(ctx context.Context) <-chan Outcome[T] {
	out := make(chan Outcome[T], 1)

	if len(m.sources) == 0 {
		out <- Outcome[T]{Err: ErrNoSources}
		close(out)
		return out
	}

	results := make([]SourceResult[T], len(m.sources))
	var remaining atomic.Int32
	remaining.Store(int32(len(m.sources)))

	for i, src := range m.sources {
		go func() {
			f, err := src.Fetch(ctx)
			results[i] = SourceResult[T]{
				Source:     src.Name(),
				Feed:       f,
				Err:        err,
				StatusCode: StatusCode(err),
			}
			if err != nil {
				slog.Warn("source failed", "source", src.Name(), "error", err)
			}
			// The last source to finish merges.
			if remaining.Add(-1) == 0 {
				out <- m.merge(results)
				close(out)
			}
		}()
	}
	return out
}

// Fetch waits for FetchAsync.
func (m *Multi[T]) Fetch(ctx context.Context) (feed.Feed[T], []SourceResult[T], error) {
	o := <-m.FetchAsync(ctx)
	return o.Feed, o.Results, o.Err
}

func (m *Multi[T]) merge(results []SourceResult[T]) Outcome[T] {
	var (
		feeds  []feed.Feed[T]
		errs   []error
		failed []string
	)
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Source, r.Err))
			failed = append(failed, r.Source)
			continue
		}
		feeds = append(feeds, r.Feed)
	}

	kind := feed.KindOf[T]()
	outcome := Outcome[T]{Results: results}

	switch {
	case len(feeds) == 0:
		outcome.Err = errors.Join(append([]error{ErrAllSourcesFailed}, errs...)...)
		return outcome
	case len(errs) > 0 && m.policy.RequireAllSources:
		outcome.Err = errors.Join(append([]error{ErrSourcesRequired}, errs...)...)
		return outcome
	case len(errs) > 0:
		slog.Warn("partial fetch, merging successful sources",
			"kind", kind,
			"succeeded", len(feeds),
			"failed", failed)
	}

	outcome.Feed = feed.Merge(feeds, feed.MergeOptions{
		Deduplicate: m.policy.Deduplicate,
		Now:         m.now,
	})
	slog.Info("merged sources", "kind", kind, "sources", len(feeds), "items", len(outcome.Feed.Items))
	return outcome
}
