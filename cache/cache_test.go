package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scipunch/editorhub/feed"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func sampleFeed() feed.Feed[feed.Announcement] {
	return feed.Feed[feed.Announcement]{
		Version:     "1.0",
		LastUpdated: feed.NewTime(epoch),
		Items: []feed.Announcement{
			{ID: "a1", Title: "Spring update", URL: "https://example.com/a1", Priority: 10},
		},
	}
}

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return store
}

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"file":   func(t *testing.T) Store { return newFileStore(t) },
		"sqlite": func(t *testing.T) Store { return newSQLiteStore(t) },
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			store := open(t)

			if _, _, err := store.Read("announcements"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			data := []byte(`{"lastUpdated":"2024-05-01T12:00:00Z"}`)
			if err := store.Write("announcements", data, epoch); err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			got, storedAt, err := store.Read("announcements")
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if string(got) != string(data) {
				t.Errorf("data mismatch: got %s", got)
			}
			if !storedAt.Equal(epoch) {
				t.Errorf("expected stored time %v, got %v", epoch, storedAt)
			}

			stats, err := store.Stats()
			if err != nil {
				t.Fatalf("Stats failed: %v", err)
			}
			if stats.Entries != 1 || stats.Bytes == 0 {
				t.Errorf("unexpected stats %+v", stats)
			}

			if err := store.Delete("announcements"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if err := store.Delete("announcements"); err != nil {
				t.Errorf("deleting a missing entry should succeed, got %v", err)
			}

			store.Write("announcements", data, epoch)
			store.Write("changelogs", data, epoch)
			if err := store.Clear(); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			if stats, _ := store.Stats(); stats.Entries != 0 {
				t.Errorf("expected empty store after Clear, got %d entries", stats.Entries)
			}
		})
	}
}

func TestFileStore_RejectsPathKinds(t *testing.T) {
	store := newFileStore(t)
	if err := store.Write("../escape", []byte("{}"), epoch); err == nil {
		t.Error("expected an error for a kind with a path separator")
	}
}

func TestSQLiteStore_EnvelopeKindMismatch(t *testing.T) {
	if _, err := decodeEnvelope("changelogs", []byte(`{"kind":"announcements","data":{}}`)); err == nil {
		t.Error("expected kind mismatch error")
	}
	if _, err := encodeEnvelope("changelogs", []byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestManager_TTLBoundary(t *testing.T) {
	clk := &clock{t: epoch}
	m := NewManager[feed.Announcement](Options{TTL: time.Hour, Now: clk.now})

	if err := m.Save(sampleFeed()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	clk.t = epoch.Add(3599 * time.Second)
	if !m.IsFresh() {
		t.Error("expected entry to be fresh after 3599s")
	}
	if _, ok := m.Get(); !ok {
		t.Error("expected Get to return the fresh entry")
	}

	clk.t = epoch.Add(3600 * time.Second)
	if !m.IsFresh() {
		t.Error("expected entry to be fresh at exactly the TTL")
	}

	clk.t = epoch.Add(3601 * time.Second)
	if m.IsFresh() {
		t.Error("expected entry to be stale after 3601s")
	}
	if _, ok := m.Get(); ok {
		t.Error("expected Get to miss a stale entry")
	}
}

func TestManager_SaveMirrorsToStoreAndLoads(t *testing.T) {
	store := newFileStore(t)
	clk := &clock{t: epoch}

	m := NewManager[feed.Announcement](Options{Store: store, Now: clk.now})
	if err := m.Save(sampleFeed()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// A fresh manager over the same store sees the entry.
	other := NewManager[feed.Announcement](Options{Store: store, Now: clk.now})
	clk.t = epoch.Add(10 * time.Minute)
	f, ok := other.Lookup()
	if !ok {
		t.Fatal("expected Lookup to load the stored entry")
	}
	if len(f.Items) != 1 || f.Items[0].ID != "a1" {
		t.Errorf("unexpected items %+v", f.Items)
	}
	if age, _ := other.Age(); age != 10*time.Minute {
		t.Errorf("expected age from stored time, got %v", age)
	}
}

func TestManager_LookupStaleStore(t *testing.T) {
	store := newSQLiteStore(t)
	clk := &clock{t: epoch}

	NewManager[feed.Announcement](Options{Store: store, Now: clk.now}).Save(sampleFeed())

	clk.t = epoch.Add(2 * time.Hour)
	m := NewManager[feed.Announcement](Options{Store: store, Now: clk.now})
	if _, ok := m.Lookup(); ok {
		t.Error("expected a stale stored entry to miss")
	}
	if !m.Load() {
		t.Error("expected Load to succeed regardless of age")
	}
}

func TestManager_PeekIgnoresAge(t *testing.T) {
	store := newFileStore(t)
	clk := &clock{t: epoch}

	m := NewManager[feed.Announcement](Options{Store: store, Now: clk.now})
	if _, ok := m.Peek(); ok {
		t.Error("expected miss on an empty cache")
	}
	m.Save(sampleFeed())

	clk.t = epoch.Add(3 * time.Hour)
	m.Invalidate()
	entry, ok := m.Peek()
	if !ok {
		t.Fatal("expected Peek to load the stale stored entry")
	}
	if len(entry.Feed.Items) != 1 || entry.Feed.Items[0].ID != "a1" {
		t.Errorf("unexpected entry %+v", entry.Feed)
	}
	if m.IsFresh() {
		t.Error("expected the peeked entry to stay stale")
	}
}

func TestManager_InvalidateKeepsStore(t *testing.T) {
	store := newFileStore(t)
	m := NewManager[feed.Announcement](Options{Store: store})
	m.Save(sampleFeed())

	m.Invalidate()
	if _, ok := m.Get(); ok {
		t.Error("expected memory miss after Invalidate")
	}
	if _, _, err := store.Read("announcements"); err != nil {
		t.Errorf("expected stored entry to survive Invalidate, got %v", err)
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, _, err := store.Read("announcements"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected stored entry to be deleted by Clear, got %v", err)
	}
}

func TestManager_CorruptEntryIsDeleted(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", `{"announcements": [`},
		{"no lastUpdated", `{"announcements": [{"id": "a", "title": "t", "url": "u"}]}`},
		{"no valid items", `{"lastUpdated": "2024-05-01T12:00:00Z", "announcements": [{"id": "a"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFileStore(t)
			if err := os.WriteFile(filepath.Join(store.Dir(), "announcements.json"), []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}

			var reported error
			m := NewManager[feed.Announcement](Options{
				Store:     store,
				OnCorrupt: func(kind string, err error) { reported = err },
			})

			if m.Load() {
				t.Fatal("expected corrupt entry to be a miss")
			}
			if !errors.Is(reported, ErrCorrupt) {
				t.Errorf("expected ErrCorrupt to be reported, got %v", reported)
			}
			if _, _, err := store.Read("announcements"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected corrupt file to be deleted, got %v", err)
			}
		})
	}
}

type failingStore struct {
	Store
	fail   bool
	writes int
}

func (s *failingStore) Write(kind string, data []byte, storedAt time.Time) error {
	s.writes++
	if s.fail {
		return errors.New("disk full")
	}
	return s.Store.Write(kind, data, storedAt)
}

func TestManager_CloseFlushesDirtyEntry(t *testing.T) {
	store := &failingStore{Store: newFileStore(t), fail: true}
	m := NewManager[feed.Announcement](Options{Store: store})

	if err := m.Save(sampleFeed()); err == nil {
		t.Fatal("expected Save to report the failed write")
	}
	if _, ok := m.Get(); !ok {
		t.Error("expected memory entry to survive a failed write")
	}

	store.fail = false
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, _, err := store.Read("announcements"); err != nil {
		t.Errorf("expected Close to flush the entry, got %v", err)
	}

	writes := store.writes
	m.Close()
	if store.writes != writes {
		t.Error("expected a clean manager not to write on Close")
	}
}

func TestDiagnose(t *testing.T) {
	data := []byte(`{"version":"1","lastUpdated":"","announcements":[{"id":"a","title":"t","url":"u"},{"id":"b"}]}`)
	attrs := diagnose[feed.Announcement]("announcements", data)

	got := map[string]any{}
	for i := 0; i+1 < len(attrs); i += 2 {
		got[attrs[i].(string)] = attrs[i+1]
	}
	if got["items"] != int64(2) {
		t.Errorf("expected 2 items, got %v", got["items"])
	}
	if got["first_invalid_index"] != 1 {
		t.Errorf("expected first invalid index 1, got %v", got["first_invalid_index"])
	}

	if attrs := diagnose[feed.Announcement]("announcements", []byte("{")); attrs[1] != false {
		t.Errorf("expected invalid JSON to be flagged, got %v", attrs)
	}
}
