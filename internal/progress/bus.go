// Package progress moves generation progress from the worker to waiting
// clients. Live subscribers get a stream; the latest event per job is
// kept as a snapshot so late joiners and pollers see current state.
package progress

import (
	"context"
	"time"
)

// Event is one progress update for a job.
type Event struct {
	JobID     string    `json:"jobId"`
	Percent   int       `json:"percent"`
	Stage     string    `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus fans events out to subscribers. Publish never blocks on a slow
// subscriber; a receiver that stops draining its channel loses updates
// and still sees the final state through Latest.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe returns a receive channel for the job's events and a
	// cancel func that must be called when done. The channel is closed
	// after cancel.
	Subscribe(ctx context.Context, jobID string) (<-chan Event, func(), error)
	// Latest returns the most recent event for the job, if any.
	Latest(ctx context.Context, jobID string) (*Event, bool, error)
}

const (
	// subscriberBuffer absorbs bursts between client flushes.
	subscriberBuffer = 16
	// snapshotTTL bounds how long a finished job's last event lingers.
	snapshotTTL = 10 * time.Minute
)
