package feed

import (
	"slices"
	"time"
)

// MergeOptions controls Merge.
type MergeOptions struct {
	// Deduplicate collapses items sharing an ID using T.Supersedes.
	Deduplicate bool

	// Version is stamped on the result; MergedVersion when empty.
	Version string

	// Now stamps LastUpdated; time.Now when nil.
	Now func() time.Time
}

// Merge combines feeds in the given order into a single sorted feed.
// Duplicate IDs with equal precedence keep the first one encountered, so
// callers control tie-breaks through the order of feeds.
func Merge[T Item[T]](feeds []Feed[T], opts MergeOptions) Feed[T] {
	var items []T
	for _, f := range feeds {
		items = append(items, f.Items...)
	}
	if opts.Deduplicate {
		items = Dedup(items)
	}
	Sort(items)

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	version := opts.Version
	if version == "" {
		version = MergedVersion
	}
	return Feed[T]{
		Version:     version,
		LastUpdated: NewTime(now()),
		Items:       items,
	}
}

// Dedup keeps one item per ID. Items without an ID are kept as-is.
func Dedup[T Item[T]](items []T) []T {
	out := make([]T, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		key := item.Key()
		if key == "" {
			out = append(out, item)
			continue
		}
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, item)
			continue
		}
		if item.Supersedes(out[i]) {
			out[i] = item
		}
	}
	return out
}

// Sort orders items in place with a stable sort on T.Before.
func Sort[T Item[T]](items []T) {
	slices.SortStableFunc(items, func(a, b T) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		default:
			return 0
		}
	})
}
