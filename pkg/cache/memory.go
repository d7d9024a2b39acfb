package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. Useful for tests and one-shot runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if key == "" {
		return Entry{}, false, ErrEmptyKey
	}
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || Expired(entry.FetchedAt, s.ttl, s.now()) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, entry Entry) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
