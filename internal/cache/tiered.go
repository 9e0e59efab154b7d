package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
)

// bookkeepingTimeout bounds the async hit updates and backup mirrors,
// which run on background contexts because the originating request may
// already be gone.
const bookkeepingTimeout = 5 * time.Second

// Tiered is the two-tier cache store. Reads hit the primary first and
// fall through to the durable backup, repopulating the primary on the
// way back. Writes land in the primary synchronously and mirror to the
// backup asynchronously.
type Tiered struct {
	primary Primary
	backup  domain.CacheBackup
	ttl     time.Duration
	logger  infra.Logger

	wg sync.WaitGroup
}

func NewTiered(primary Primary, backup domain.CacheBackup, ttl time.Duration, logger infra.Logger) *Tiered {
	return &Tiered{primary: primary, backup: backup, ttl: ttl, logger: logger}
}

// Get returns the cached entry for the key. The second return value
// distinguishes a miss from a hit; a miss is never an error. Expired
// entries count as misses even while still physically present.
func (c *Tiered) Get(ctx context.Context, key string) (*domain.CacheEntry, bool, error) {
	now := time.Now()

	raw, ok, err := c.primary.Get(ctx, key)
	if err != nil {
		// A primary outage degrades to the durable tier instead of
		// failing the read.
		c.logger.Warn().Err(err).Str("cache_key", key).Msg("cache: primary read failed")
	}
	if ok {
		var entry domain.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			c.logger.Warn().Err(err).Str("cache_key", key).Msg("cache: dropping undecodable primary entry")
			c.deleteAsync(key)
		} else if entry.Expired(now) {
			c.deleteAsync(key)
		} else {
			c.recordHit(entry, now)
			return &entry, true, nil
		}
	}

	entry, err := c.backup.Fetch(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache backup read: %w", err)
	}
	if entry.Expired(now) {
		return nil, false, nil
	}

	c.repopulate(*entry, now)
	c.recordHit(*entry, now)
	return entry, true, nil
}

// Put stores a fresh result under the key with the configured TTL. The
// primary write is synchronous; the durable mirror happens in the
// background so generation latency never waits on Postgres.
func (c *Tiered) Put(ctx context.Context, key string, userID string, prompt domain.StructuredPrompt, result *domain.GenerationResult) (*domain.CacheEntry, error) {
	now := time.Now()
	entry := &domain.CacheEntry{
		CacheKey:       key,
		UserID:         userID,
		Prompt:         prompt,
		Result:         result,
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.ttl),
		LastAccessedAt: now,
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.primary.Set(ctx, key, raw, c.ttl); err != nil {
		return nil, fmt.Errorf("cache primary write: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
		defer cancel()
		if err := c.backup.Persist(bgCtx, entry); err != nil {
			c.logger.Error().Err(err).Str("cache_key", key).Msg("cache: backup mirror failed")
		}
	}()

	return entry, nil
}

// Close waits for in-flight background mirrors and hit updates.
func (c *Tiered) Close() {
	c.wg.Wait()
}

// recordHit bumps hits and last-access on both tiers without blocking
// or failing the read.
func (c *Tiered) recordHit(entry domain.CacheEntry, now time.Time) {
	entry.Hits++
	entry.LastAccessedAt = now

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
		defer cancel()

		raw, err := json.Marshal(&entry)
		if err == nil {
			if remaining := time.Until(entry.ExpiresAt); remaining > 0 {
				if err := c.primary.Set(bgCtx, entry.CacheKey, raw, remaining); err != nil {
					c.logger.Debug().Err(err).Str("cache_key", entry.CacheKey).Msg("cache: hit update skipped")
				}
			}
		}
		if err := c.backup.Touch(bgCtx, entry.CacheKey, now); err != nil {
			c.logger.Debug().Err(err).Str("cache_key", entry.CacheKey).Msg("cache: backup touch skipped")
		}
	}()
}

// repopulate writes a backup hit into the primary with whatever TTL the
// entry has left.
func (c *Tiered) repopulate(entry domain.CacheEntry, now time.Time) {
	remaining := entry.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
		defer cancel()

		raw, err := json.Marshal(&entry)
		if err != nil {
			return
		}
		if err := c.primary.Set(bgCtx, entry.CacheKey, raw, remaining); err != nil {
			c.logger.Warn().Err(err).Str("cache_key", entry.CacheKey).Msg("cache: repopulate failed")
		}
	}()
}

func (c *Tiered) deleteAsync(key string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
		defer cancel()
		if err := c.primary.Delete(bgCtx, key); err != nil {
			c.logger.Debug().Err(err).Str("cache_key", key).Msg("cache: expired entry cleanup skipped")
		}
	}()
}
