// Package cache keeps the last merged feed of each content kind in memory
// and mirrors it to a persistent store.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var (
	// ErrNotFound is returned by Store.Read when nothing is stored.
	ErrNotFound = errors.New("cache entry not found")

	// ErrCorrupt marks stored data that could not be decoded or validated.
	ErrCorrupt = errors.New("corrupt cache entry")
)

var kindRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Store persists one serialized feed per kind.
type Store interface {
	// Read returns the stored bytes and the time they were written.
	Read(kind string) ([]byte, time.Time, error)
	Write(kind string, data []byte, storedAt time.Time) error
	// Delete removes the entry; deleting a missing entry is not an error.
	Delete(kind string) error
	Stats() (Stats, error)
	Clear() error
	Close() error
}

// Stats contains cache statistics
type Stats struct {
	Entries     int
	Bytes       int64
	OldestEntry time.Time
}

func validKind(kind string) error {
	if !kindRe.MatchString(kind) {
		return fmt.Errorf("invalid cache kind %q", kind)
	}
	return nil
}

// DefaultDirectory returns the default cache directory
func DefaultDirectory() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "cache" // Fallback to current directory
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "editorhub")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
