// Package store defines persistence interfaces consumed by the
// application core. Concrete implementations live under
// internal/platform.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a cache entry does not exist.
var ErrNotFound = errors.New("cache entry not found")

// CacheEntry is one persisted response record. Entries are immutable:
// they are inserted and evicted, never updated in place.
type CacheEntry struct {
	Key       string
	Response  string
	CreatedAt time.Time
}

// CacheStore is the durable key/value backing of the response cache.
// Implementations must treat Get on a missing key as ErrNotFound, not a
// failure. The caller treats any store error as a cache miss, so
// implementations should not retry internally.
type CacheStore interface {
	// Get retrieves the entry for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Put inserts or replaces the entry for key.
	Put(ctx context.Context, entry *CacheEntry) error

	// DeleteExpired removes entries older than the TTL and reports how
	// many were removed. A zero TTL is a no-op.
	DeleteExpired(ctx context.Context, ttl time.Duration) (int64, error)
}
