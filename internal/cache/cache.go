// Package cache implements the response cache of the generation
// pipeline: a content-addressed, coalescing get-or-compute layer with an
// in-process LRU tier over an optional durable store.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/tomhalloin/cardgen/internal/platform/logger"
	"github.com/tomhalloin/cardgen/internal/store"
)

// DefaultMemoryEntries is the LRU tier size used when the caller does
// not configure one.
const DefaultMemoryEntries = 512

// ComputeFunc produces the value for a cache miss.
type ComputeFunc func(ctx context.Context) (string, error)

// ResponseCache is the coalescing response cache. For any key, at most
// one compute runs at a time: concurrent callers for the same key wait
// for the single in-flight computation instead of issuing duplicates.
//
// Store failures are never fatal: a failed read is a miss, a failed
// write is a no-op, both logged.
type ResponseCache struct {
	memory *lru.Cache[string, string]
	store  store.CacheStore
	group  singleflight.Group
	logger *slog.Logger
}

// New creates a ResponseCache. durable may be nil, in which case entries
// live only in process memory and do not survive restarts.
func New(durable store.CacheStore, memoryEntries int, log *slog.Logger) (*ResponseCache, error) {
	if memoryEntries <= 0 {
		memoryEntries = DefaultMemoryEntries
	}
	memory, err := lru.New[string, string](memoryEntries)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &ResponseCache{
		memory: memory,
		store:  durable,
		logger: log,
	}, nil
}

// GetOrCompute returns the cached response for key, computing and
// storing it on a miss. hit reports whether the value came from the
// cache. Concurrent calls with the same key coalesce onto one compute;
// the coalesced callers receive the same value with hit=false, since no
// cached entry served them.
func (c *ResponseCache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (value string, hit bool, err error) {
	if v, ok := c.memory.Get(key); ok {
		return v, true, nil
	}

	if entry := c.durableGet(ctx, key); entry != nil {
		c.memory.Add(key, entry.Response)
		return entry.Response, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A sibling caller may have populated the cache while this call
		// waited on the singleflight lock.
		if v, ok := c.memory.Get(key); ok {
			return v, nil
		}

		value, err := compute(ctx)
		if err != nil {
			return "", err
		}

		c.memory.Add(key, value)
		c.durablePut(ctx, key, value)
		return value, nil
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), false, nil
}

// Sweep removes durable entries older than ttl. Intended to run at
// startup or on a timer; failures are logged and swallowed.
func (c *ResponseCache) Sweep(ctx context.Context, ttl time.Duration) {
	if c.store == nil || ttl <= 0 {
		return
	}
	removed, err := c.store.DeleteExpired(ctx, ttl)
	if err != nil {
		c.logger.WarnContext(ctx, "cache sweep failed", "error", err)
		return
	}
	if removed > 0 {
		c.logger.InfoContext(ctx, "cache sweep removed expired entries", "removed", removed)
	}
}

func (c *ResponseCache) durableGet(ctx context.Context, key string) *store.CacheEntry {
	if c.store == nil {
		return nil
	}
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log := logger.FromContextOrDefault(ctx, c.logger)
			log.WarnContext(ctx, "cache read failed, treating as miss",
				"key", shortKey(key),
				"error", err)
		}
		return nil
	}
	return entry
}

func (c *ResponseCache) durablePut(ctx context.Context, key, value string) {
	if c.store == nil {
		return
	}
	entry := &store.CacheEntry{
		Key:       key,
		Response:  value,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.Put(ctx, entry); err != nil {
		log := logger.FromContextOrDefault(ctx, c.logger)
		log.WarnContext(ctx, "cache write failed",
			"key", shortKey(key),
			"error", err)
	}
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
