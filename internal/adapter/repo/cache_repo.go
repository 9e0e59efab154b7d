// Package repo holds the PostgreSQL adapters behind the domain store
// interfaces. All SQL lives in internal/sqlinline.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/sqlinline"
)

// CacheBackupPG implements domain.CacheBackup on the sprite_cache table.
// It is the durable tier behind the Redis primary: entries here survive
// Redis restarts and carry the hit bookkeeping.
type CacheBackupPG struct {
	db infra.SQLExecutor
}

func NewCacheBackup(db infra.SQLExecutor) *CacheBackupPG {
	return &CacheBackupPG{db: db}
}

var _ domain.CacheBackup = (*CacheBackupPG)(nil)

func (r *CacheBackupPG) Persist(ctx context.Context, entry *domain.CacheEntry) error {
	promptJSON, err := json.Marshal(entry.Prompt)
	if err != nil {
		return fmt.Errorf("marshal prompt: %w", err)
	}
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = r.db.Exec(ctx, sqlinline.QUpsertCacheEntry,
		entry.CacheKey,
		entry.UserID,
		promptJSON,
		resultJSON,
		entry.CreatedAt,
		entry.ExpiresAt,
		entry.Hits,
		entry.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("persist cache entry %s: %w", entry.CacheKey, err)
	}
	return nil
}

func (r *CacheBackupPG) Fetch(ctx context.Context, key string) (*domain.CacheEntry, error) {
	var (
		entry      domain.CacheEntry
		promptJSON []byte
		resultJSON []byte
	)
	err := r.db.QueryRow(ctx, sqlinline.QFetchCacheEntry, key).Scan(
		&entry.CacheKey,
		&entry.UserID,
		&promptJSON,
		&resultJSON,
		&entry.CreatedAt,
		&entry.ExpiresAt,
		&entry.Hits,
		&entry.LastAccessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("cache entry %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch cache entry %s: %w", key, err)
	}
	if err := json.Unmarshal(promptJSON, &entry.Prompt); err != nil {
		return nil, fmt.Errorf("decode cached prompt: %w", err)
	}
	if err := json.Unmarshal(resultJSON, &entry.Result); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &entry, nil
}

func (r *CacheBackupPG) Touch(ctx context.Context, key string, at time.Time) error {
	if _, err := r.db.Exec(ctx, sqlinline.QTouchCacheEntry, key, at); err != nil {
		return fmt.Errorf("touch cache entry %s: %w", key, err)
	}
	return nil
}

// DeleteExpired reclaims rows whose TTL has lapsed. Reads already treat
// them as misses; this just keeps the table from growing forever.
func (r *CacheBackupPG) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, sqlinline.QDeleteExpiredCacheEntries)
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
