package domain

import "time"

// JobState enumerates the lifecycle states of a generation job.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateDelayed   JobState = "delayed"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether the state ends the job's life. Delayed jobs
// re-enter waiting when their run-at time arrives, so only completed and
// failed are terminal.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// FailureKind labels a classified failure on a job attempt.
type FailureKind string

const (
	FailureKindTransient FailureKind = "transient"
	FailureKindFatal     FailureKind = "fatal"
)

// AttemptRecord captures one failed attempt. The full sequence rides
// along on the job and is copied into the dead-letter row so operators
// can reconstruct what happened without the original logs.
type AttemptRecord struct {
	Attempt int         `json:"attempt"`
	Kind    FailureKind `json:"kind"`
	Error   string      `json:"error"`
	At      time.Time   `json:"at"`
}

// Job is the queue's unit of work. The record is owned by the queue for
// its whole life; only the worker and retry paths mutate it, and only
// through queue operations.
type Job struct {
	ID             string
	UserID         string
	CacheKey       string
	Prompt         StructuredPrompt
	State          JobState
	AttemptsMade   int
	MaxAttempts    int
	RunAt          time.Time
	LeaseExpiresAt *time.Time
	Result         *GenerationResult
	FailureReason  string
	Attempts       []AttemptRecord
	CreatedAt      time.Time
	UpdatedAt      time.Time
	FinishedAt     *time.Time
}

// DeadLetterJob is the terminal record of a job that exhausted its
// retries or failed fatally. Never dropped silently: every entry keeps
// the prompt and the complete attempt history for inspection.
type DeadLetterJob struct {
	ID            string
	JobID         string
	UserID        string
	CacheKey      string
	Prompt        StructuredPrompt
	FailureReason string
	AttemptsMade  int
	Attempts      []AttemptRecord
	FailedAt      time.Time
}
