// Package feed defines announcement and changelog feeds and the merge
// rules used when several sources contribute to one feed.
package feed

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind names a content type. It doubles as the JSON collection key and
// the cache file name.
type Kind = string

const (
	Announcements Kind = "announcements"
	Changelogs    Kind = "changelogs"
)

// MergedVersion is stamped on every feed produced by Merge.
const MergedVersion = "1.0"

// Entry is the kind-independent view of a feed item used by filters and
// renderers.
type Entry interface {
	Key() string
	Valid() bool
	Text() string
	Labels() []string
	Published() time.Time
	Targets() Targeting
}

// Item is implemented by Announcement and Changelog. T is the implementing
// type itself, which lets merge rules compare two items without type
// assertions.
type Item[T any] interface {
	Entry

	// Collection returns the feed's JSON key for this item type.
	Collection() Kind

	// Supersedes reports whether the receiver should replace other when
	// both share an ID.
	Supersedes(other T) bool

	// Before reports whether the receiver sorts ahead of other.
	Before(other T) bool
}

// Feed is a versioned, timestamped collection of items.
type Feed[T Item[T]] struct {
	Version     string
	LastUpdated Time
	Items       []T
}

// KindOf returns the collection key of T.
func KindOf[T Item[T]]() Kind {
	var zero T
	return zero.Collection()
}

// IsValid reports whether the feed carries a LastUpdated timestamp and at
// least one individually valid item.
func (f Feed[T]) IsValid() bool {
	if f.LastUpdated.IsZero() {
		return false
	}
	for _, item := range f.Items {
		if item.Valid() {
			return true
		}
	}
	return false
}

// FirstInvalid returns the index of the first invalid item, or -1.
func (f Feed[T]) FirstInvalid() int {
	for i, item := range f.Items {
		if !item.Valid() {
			return i
		}
	}
	return -1
}

// MarshalJSON writes {version, lastUpdated, <kind>[]}.
func (f Feed[T]) MarshalJSON() ([]byte, error) {
	items := f.Items
	if items == nil {
		items = []T{}
	}
	return json.Marshal(map[string]any{
		"version":     f.Version,
		"lastUpdated": f.LastUpdated,
		KindOf[T]():   items,
	})
}

func (f *Feed[T]) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var decoded Feed[T]
	if v, ok := raw["version"]; ok {
		if err := json.Unmarshal(v, &decoded.Version); err != nil {
			return fmt.Errorf("failed to decode version with %w", err)
		}
	}
	if v, ok := raw["lastUpdated"]; ok {
		if err := json.Unmarshal(v, &decoded.LastUpdated); err != nil {
			return fmt.Errorf("failed to decode lastUpdated with %w", err)
		}
	}
	kind := KindOf[T]()
	if v, ok := raw[kind]; ok {
		if err := json.Unmarshal(v, &decoded.Items); err != nil {
			return fmt.Errorf("failed to decode %s with %w", kind, err)
		}
	}

	*f = decoded
	return nil
}

// Decode parses a feed document.
func Decode[T Item[T]](data []byte) (Feed[T], error) {
	var f Feed[T]
	if err := json.Unmarshal(data, &f); err != nil {
		return f, err
	}
	return f, nil
}
