// Package admission gates submissions before they reach the queue: a
// system-wide depth check and an atomic per-user concurrency counter.
package admission

import "context"

// Counter tracks live jobs per user. Incr must be atomic with respect to
// concurrent submitters; the limit check happens on its return value, so
// two racing submissions can never both observe the last free slot.
type Counter interface {
	// Incr adds one and returns the post-increment count.
	Incr(ctx context.Context, userID string) (int64, error)
	// Decr subtracts one, clamped at zero, and returns the new count.
	Decr(ctx context.Context, userID string) (int64, error)
	// Current returns the count without modifying it.
	Current(ctx context.Context, userID string) (int64, error)
}
