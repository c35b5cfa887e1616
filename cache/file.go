package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileStore keeps each kind in <dir>/<kind>.json. The file modification
// time is the stored-at time.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(kind string) string {
	return filepath.Join(s.dir, kind+".json")
}

func (s *FileStore) Read(kind string) ([]byte, time.Time, error) {
	if err := validKind(kind); err != nil {
		return nil, time.Time{}, err
	}
	path := s.path(kind)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return data, info.ModTime(), nil
}

// Write replaces the file atomically and sets its modification time to
// storedAt.
func (s *FileStore) Write(kind string, data []byte, storedAt time.Time) error {
	if err := validKind(kind); err != nil {
		return err
	}
	path := s.path(kind)

	tmp, err := os.CreateTemp(s.dir, kind+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Chtimes(tmp.Name(), storedAt, storedAt); err != nil {
		return fmt.Errorf("failed to set stored time: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) Delete(kind string) error {
	if err := validKind(kind); err != nil {
		return err
	}
	err := os.Remove(s.path(kind))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	return nil
}

func (s *FileStore) entries() ([]string, error) {
	return filepath.Glob(filepath.Join(s.dir, "*.json"))
}

func (s *FileStore) Stats() (Stats, error) {
	var stats Stats
	paths, err := s.entries()
	if err != nil {
		return stats, err
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		stats.Entries++
		stats.Bytes += info.Size()
		if stats.OldestEntry.IsZero() || info.ModTime().Before(stats.OldestEntry) {
			stats.OldestEntry = info.ModTime()
		}
	}
	return stats, nil
}

// Clear removes all cache files
func (s *FileStore) Clear() error {
	paths, err := s.entries()
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to clear cache directory: %w", errors.Join(errs...))
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
