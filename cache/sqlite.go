package cache

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps feeds in a single SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore initializes the cache database at the given path
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Read returns the feed bytes stored for kind
func (s *SQLiteStore) Read(kind string) ([]byte, time.Time, error) {
	var (
		blob     []byte
		storedAt int64
	)
	err := s.db.QueryRow(
		"SELECT output_data, stored_at FROM feed_cache WHERE kind = ?",
		kind,
	).Scan(&blob, &storedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read %s from cache database: %w", kind, err)
	}

	_, _ = s.db.Exec(
		"UPDATE feed_cache SET accessed_at = ? WHERE kind = ?",
		time.Now().Unix(), kind,
	)

	data, err := decodeEnvelope(kind, blob)
	if err != nil {
		// Surfaced as corrupt data so the manager deletes the row.
		slog.Warn("cache envelope unreadable", "kind", kind, "error", err)
		return blob, time.Unix(0, storedAt), nil
	}
	return data, time.Unix(0, storedAt), nil
}

// Write stores data for kind, replacing any previous row
func (s *SQLiteStore) Write(kind string, data []byte, storedAt time.Time) error {
	blob, err := encodeEnvelope(kind, data)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO feed_cache
		(kind, output_data, stored_at, accessed_at)
		VALUES (?, ?, ?, ?)
	`, kind, blob, storedAt.UnixNano(), time.Now().Unix())

	if err != nil {
		slog.Warn("feed cache write error", "error", err, "kind", kind)
		return fmt.Errorf("failed to write %s to cache database: %w", kind, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(kind string) error {
	if _, err := s.db.Exec("DELETE FROM feed_cache WHERE kind = ?", kind); err != nil {
		return fmt.Errorf("failed to delete %s from cache database: %w", kind, err)
	}
	return nil
}

// Clear removes all cache entries
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM feed_cache"); err != nil {
		return fmt.Errorf("failed to clear feed cache: %w", err)
	}
	return nil
}

// Stats returns cache statistics
func (s *SQLiteStore) Stats() (Stats, error) {
	var (
		stats  Stats
		bytes  sql.NullInt64
		oldest sql.NullInt64
	)

	err := s.db.QueryRow(
		"SELECT COUNT(*), SUM(LENGTH(output_data)), MIN(stored_at) FROM feed_cache",
	).Scan(&stats.Entries, &bytes, &oldest)
	if err != nil {
		return stats, err
	}
	stats.Bytes = bytes.Int64
	if oldest.Valid && oldest.Int64 > 0 {
		stats.OldestEntry = time.Unix(0, oldest.Int64)
	}
	return stats, nil
}

// Close closes the cache database
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DefaultDatabasePath returns the default cache database path
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDirectory(), "cache.db")
}
