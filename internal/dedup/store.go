// Package dedup guarantees at most one in-flight generation per cache
// key across every submitter and worker process. The registry lives in a
// shared store with set-if-not-exists semantics, so two callers racing
// on the same key cannot both observe "not in flight".
package dedup

import (
	"context"
	"time"
)

// Store is the in-flight marker registry.
type Store interface {
	// SetNX registers value under key only if the key is absent.
	// Returns whether this call claimed the key.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the registered value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
}
