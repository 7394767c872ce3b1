package fdc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheEntry is one stored lookup payload.
type CacheEntry struct {
	Key       string
	Payload   []byte
	FetchedAt time.Time
}

// CacheRepository persists FoodData Central lookups in SQLite.
type CacheRepository struct {
	db *sql.DB
}

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

// Get returns the entry for key, or nil when absent.
func (r *CacheRepository) Get(ctx context.Context, key string) (*CacheEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT cache_key, payload, fetched_at FROM fdc_lookup_cache WHERE cache_key = ?`, key)

	var e CacheEntry
	if err := row.Scan(&e.Key, &e.Payload, &e.FetchedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return &e, nil
}

// Put inserts or replaces the entry for key.
func (r *CacheRepository) Put(ctx context.Context, key string, payload []byte, fetchedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fdc_lookup_cache (cache_key, payload, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		key, payload, fetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return nil
}

// DeleteOlderThan removes entries fetched before threshold.
func (r *CacheRepository) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM fdc_lookup_cache WHERE fetched_at < ?`, threshold.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up lookup cache: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of cached entries.
func (r *CacheRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fdc_lookup_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}
