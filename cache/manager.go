package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/scipunch/editorhub/feed"
)

// DefaultTTL is how long a stored feed counts as fresh.
const DefaultTTL = time.Hour

const previewLength = 200

// Options configures a Manager.
type Options struct {
	// TTL is the freshness window; DefaultTTL when zero.
	TTL time.Duration

	// Store mirrors the memory entry; nil keeps the cache in memory only.
	Store Store

	// Now is the clock; time.Now when nil.
	Now func() time.Time

	// OnCorrupt is called after a corrupt stored entry was deleted.
	OnCorrupt func(kind string, err error)
}

// Entry is a cached feed and the time it was stored.
type Entry[T feed.Item[T]] struct {
	Feed     feed.Feed[T]
	StoredAt time.Time
}

// Manager caches the merged feed of one kind.
type Manager[T feed.Item[T]] struct {
	kind      string
	ttl       time.Duration
	store     Store
	now       func() time.Time
	onCorrupt func(string, error)

	mu    sync.Mutex
	entry *Entry[T]
	dirty bool
}

// NewManager creates a manager for the feed kind of T.
func NewManager[T feed.Item[T]](opts Options) *Manager[T] {
	m := &Manager[T]{
		kind:      feed.KindOf[T](),
		ttl:       opts.TTL,
		store:     opts.Store,
		now:       opts.Now,
		onCorrupt: opts.OnCorrupt,
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Kind returns the feed kind the manager caches.
func (m *Manager[T]) Kind() string {
	return m.kind
}

// TTL returns the freshness window.
func (m *Manager[T]) TTL() time.Duration {
	return m.ttl
}

// Get returns the in-memory feed when it is fresh.
func (m *Manager[T]) Get() (feed.Feed[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.freshLocked() {
		return feed.Feed[T]{}, false
	}
	return m.entry.Feed, true
}

// Load reads the stored feed into memory regardless of its age. Corrupt
// data is deleted and reported as a miss.
func (m *Manager[T]) Load() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return m.entry != nil
	}

	data, storedAt, err := m.store.Read(m.kind)
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if err != nil {
		slog.Warn("cache read failed", "kind", m.kind, "error", err)
		return false
	}

	f, err := feed.Decode[T](data)
	if err == nil && !f.IsValid() {
		err = errors.New("feed has no lastUpdated or no valid items")
	}
	if err != nil {
		m.discardLocked(data, err)
		return false
	}

	m.entry = &Entry[T]{Feed: f, StoredAt: storedAt}
	m.dirty = false
	slog.Debug("cache loaded", "kind", m.kind, "items", len(f.Items), "stored_at", storedAt)
	return true
}

// Lookup returns a fresh feed from memory, falling back to the store.
func (m *Manager[T]) Lookup() (feed.Feed[T], bool) {
	if f, ok := m.Get(); ok {
		return f, true
	}
	if !m.Load() {
		return feed.Feed[T]{}, false
	}
	return m.Get()
}

// Peek returns the cached entry regardless of its age, loading it from
// the store when memory is empty.
func (m *Manager[T]) Peek() (Entry[T], bool) {
	m.mu.Lock()
	entry := m.entry
	m.mu.Unlock()

	if entry == nil && m.Load() {
		m.mu.Lock()
		entry = m.entry
		m.mu.Unlock()
	}
	if entry == nil {
		return Entry[T]{}, false
	}
	return *entry, true
}

// Save replaces the cached feed and writes it to the store. A failed write
// keeps the memory entry and is retried by Close.
func (m *Manager[T]) Save(f feed.Feed[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entry = &Entry[T]{Feed: f, StoredAt: m.now()}
	m.dirty = true
	return m.flushLocked()
}

// IsFresh reports whether the memory entry is within the TTL.
func (m *Manager[T]) IsFresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freshLocked()
}

// Age returns how long ago the memory entry was stored.
func (m *Manager[T]) Age() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry == nil {
		return 0, false
	}
	return m.now().Sub(m.entry.StoredAt), true
}

// Invalidate drops the memory entry. The store is left untouched.
func (m *Manager[T]) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = nil
	m.dirty = false
}

// Clear drops the memory entry and deletes the stored one.
func (m *Manager[T]) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = nil
	m.dirty = false
	if m.store == nil {
		return nil
	}
	return m.store.Delete(m.kind)
}

// Close flushes an entry whose last write failed.
func (m *Manager[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *Manager[T]) freshLocked() bool {
	if m.entry == nil {
		return false
	}
	return m.now().Sub(m.entry.StoredAt) <= m.ttl
}

func (m *Manager[T]) flushLocked() error {
	if !m.dirty || m.entry == nil || m.store == nil {
		m.dirty = false
		return nil
	}
	data, err := json.Marshal(m.entry.Feed)
	if err != nil {
		return fmt.Errorf("failed to encode %s for cache: %w", m.kind, err)
	}
	if err := m.store.Write(m.kind, data, m.entry.StoredAt); err != nil {
		slog.Warn("cache write failed, will retry on close", "kind", m.kind, "error", err)
		return err
	}
	m.dirty = false
	return nil
}

func (m *Manager[T]) discardLocked(data []byte, cause error) {
	attrs := []any{
		"kind", m.kind,
		"error", cause,
		"bytes", len(data),
		"preview", truncate(string(data), previewLength),
	}
	attrs = append(attrs, diagnose[T](m.kind, data)...)
	slog.Warn("corrupt cache entry, deleting", attrs...)

	if err := m.store.Delete(m.kind); err != nil {
		slog.Error("failed to delete corrupt cache entry", "kind", m.kind, "error", err)
	}
	m.entry = nil
	m.dirty = false

	if m.onCorrupt != nil {
		m.onCorrupt(m.kind, fmt.Errorf("%w: %w", ErrCorrupt, cause))
	}
}

// diagnose describes what is wrong with stored feed data as log attributes.
func diagnose[T feed.Item[T]](kind string, data []byte) []any {
	if !gjson.ValidBytes(data) {
		return []any{"valid_json", false}
	}
	doc := gjson.ParseBytes(data)
	attrs := []any{
		"valid_json", true,
		"version", doc.Get("version").String(),
		"last_updated", doc.Get("lastUpdated").String(),
		"items", doc.Get(kind + ".#").Int(),
	}

	// Find the first item that does not decode into a valid T.
	firstInvalid := -1
	doc.Get(kind).ForEach(func(key, value gjson.Result) bool {
		var item T
		if err := json.Unmarshal([]byte(value.Raw), &item); err != nil || !item.Valid() {
			firstInvalid = int(key.Int())
			attrs = append(attrs, "first_invalid_item", truncate(value.Raw, previewLength))
			return false
		}
		return true
	})
	attrs = append(attrs, "first_invalid_index", firstInvalid)
	return attrs
}
