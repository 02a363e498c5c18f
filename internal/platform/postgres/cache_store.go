package postgres

import (
	"context"
	"time"

	"github.com/tomhalloin/cardgen/internal/platform/logger"
	"github.com/tomhalloin/cardgen/internal/store"
)

// PostgresCacheStore implements the store.CacheStore interface using
// PostgreSQL.
type PostgresCacheStore struct {
	db store.DBTX
}

// NewPostgresCacheStore creates a new PostgresCacheStore.
func NewPostgresCacheStore(db store.DBTX) *PostgresCacheStore {
	return &PostgresCacheStore{
		db: db,
	}
}

// Get retrieves the cache entry for key, or store.ErrNotFound.
func (s *PostgresCacheStore) Get(ctx context.Context, key string) (*store.CacheEntry, error) {
	query := `
		SELECT key, response, created_at
		FROM cache_entries
		WHERE key = $1
	`

	entry := &store.CacheEntry{}
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&entry.Key,
		&entry.Response,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, MapError(err)
	}

	return entry, nil
}

// Put inserts or replaces the entry for key. Replacement refreshes
// created_at, which resets the entry's TTL clock.
func (s *PostgresCacheStore) Put(ctx context.Context, entry *store.CacheEntry) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO cache_entries (key, response, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET response = EXCLUDED.response, created_at = EXCLUDED.created_at
	`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query, entry.Key, entry.Response, createdAt)
	if err != nil {
		log.Error("failed to save cache entry",
			"key", entry.Key,
			"error", err)
		return MapError(err)
	}

	return nil
}

// DeleteExpired removes entries whose created_at is older than the TTL.
func (s *PostgresCacheStore) DeleteExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	log := logger.FromContext(ctx)

	if ttl <= 0 {
		return 0, nil
	}

	query := `
		DELETE FROM cache_entries
		WHERE created_at < $1
	`

	cutoff := time.Now().UTC().Add(-ttl)
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		log.Error("failed to delete expired cache entries",
			"cutoff", cutoff,
			"error", err)
		return 0, MapError(err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, MapError(err)
	}

	return removed, nil
}
