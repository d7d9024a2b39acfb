// Package cache stores fetched page payloads keyed by a stable hash of the request URL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// ErrEmptyKey is returned when a store is asked for an empty key.
var ErrEmptyKey = errors.New("cache key is empty")

// Entry is what the fetcher persists for a URL.
type Entry struct {
	FinalURL    string    `json:"final_url"`
	Body        []byte    `json:"body"`
	ContentType string    `json:"content_type,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Store gets and puts entries by key. Get reports ok=false for a miss; an error means
// the backend itself failed.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, entry Entry) error
}

// Key returns the cache key for a requested URL.
func Key(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// Expired reports whether an entry fetched at fetchedAt is older than ttl.
// A zero or negative ttl never expires.
func Expired(fetchedAt time.Time, ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(fetchedAt) > ttl
}

func encode(entry Entry) ([]byte, error) {
	return json.Marshal(entry)
}

func decode(data []byte) (Entry, error) {
	var entry Entry
	err := json.Unmarshal(data, &entry)
	return entry, err
}
