package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// DiskStore keeps one JSON file per key under a directory. Files persist across runs.
//
// Writes go to a temporary file that is renamed into place, so concurrent writers of
// the same key never leave a torn file behind and readers see either the old or the
// new entry.
type DiskStore struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewDiskStore creates the cache directory if needed.
func NewDiskStore(dir string, ttl time.Duration) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &DiskStore{dir: dir, ttl: ttl, now: time.Now}, nil
}

func (s *DiskStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *DiskStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if key == "" {
		return Entry{}, false, ErrEmptyKey
	}

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read cache entry: %w", err)
	}

	entry, err := decode(data)
	if err != nil {
		// A corrupt entry behaves like a miss; the next Put overwrites it.
		return Entry{}, false, nil
	}
	if Expired(entry.FetchedAt, s.ttl, s.now()) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (s *DiskStore) Put(ctx context.Context, key string, entry Entry) error {
	if key == "" {
		return ErrEmptyKey
	}

	data, err := encode(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := renameio.WriteFile(s.path(key), data, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}
