package domain

import (
	"context"
	"time"
)

// Queue is the durable job store. At-least-once delivery: a claimed job
// whose lease lapses without Complete/Fail/RetryLater becomes claimable
// again. FIFO within the queue by arrival time.
type Queue interface {
	// Enqueue inserts the job in the waiting state. The caller assigns
	// the job ID so it can register the in-flight marker first.
	Enqueue(ctx context.Context, job *Job) error
	// Claim leases the oldest runnable job (waiting, delayed past its
	// run-at time, or active with an expired lease) and marks it active.
	// A nil job with nil error means the queue is empty.
	Claim(ctx context.Context, lease time.Duration) (*Job, error)
	// Complete finishes the job with its result.
	Complete(ctx context.Context, jobID string, result *GenerationResult) error
	// Fail terminally fails the job, recording the final attempt.
	Fail(ctx context.Context, jobID string, reason string, attempt AttemptRecord) error
	// RetryLater reschedules the job to run again at runAt and appends
	// the failed attempt to its history.
	RetryLater(ctx context.Context, jobID string, runAt time.Time, attempt AttemptRecord) error
	// Get returns the job or ErrNotFound.
	Get(ctx context.Context, jobID string) (*Job, error)
	// Depth counts jobs in waiting, active, or delayed.
	Depth(ctx context.Context) (int, error)
	// CountByState breaks the queue population down per state.
	CountByState(ctx context.Context) (map[JobState]int, error)
}

// CacheBackup is the durable second tier behind the primary cache.
type CacheBackup interface {
	Persist(ctx context.Context, entry *CacheEntry) error
	// Fetch returns the stored entry or ErrNotFound. Expiry is the
	// caller's read-time concern, not the store's.
	Fetch(ctx context.Context, key string) (*CacheEntry, error)
	// Touch bumps hit bookkeeping; best-effort by contract.
	Touch(ctx context.Context, key string, at time.Time) error
}

// DeadLetterStore keeps terminally failed jobs for inspection.
type DeadLetterStore interface {
	Record(ctx context.Context, job *DeadLetterJob) error
	List(ctx context.Context, limit int) ([]*DeadLetterJob, error)
}
