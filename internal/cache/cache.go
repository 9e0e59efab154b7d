// Package cache implements the two-tier sprite result cache: a TTL'd
// primary store in Redis in front of a durable Postgres backup. Keys are
// the sha256 of the normalized prompt, so identical requests land on the
// same entry regardless of field order, case, or whitespace.
package cache

import (
	"context"
	"time"
)

// Primary is the fast tier. Implemented by Redis in production and by an
// in-process map for tests and local runs.
type Primary interface {
	// Get returns the raw entry and whether the key was present. A miss
	// is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
