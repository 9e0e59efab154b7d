package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
)

// markerTTL bounds how long an in-flight marker can outlive its job if
// every release path is lost, for example a crash after enqueue with the
// queue row already gone. Live jobs release their marker on the terminal
// transition long before this.
const markerTTL = time.Hour

// acquireAttempts bounds the SETNX/GET race when an incumbent releases
// between our failed claim and the follow-up read.
const acquireAttempts = 3

// Manager coalesces concurrent submissions for the same cache key onto a
// single job.
type Manager struct {
	store  Store
	logger infra.Logger
}

func NewManager(store Store, logger infra.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// RunExclusive runs start at most once per in-flight key. The winning
// caller has start invoked with its own jobID registered as the marker;
// when start fails the marker is released so the key is not poisoned.
// Losing callers get the incumbent's job id back with coalesced=true and
// await that job's outcome instead of submitting their own.
func (m *Manager) RunExclusive(ctx context.Context, key, jobID string, start func(context.Context) error) (string, bool, error) {
	for attempt := 0; attempt < acquireAttempts; attempt++ {
		won, err := m.store.SetNX(ctx, key, jobID, markerTTL)
		if err != nil {
			return "", false, fmt.Errorf("dedup acquire: %w", err)
		}
		if won {
			if err := start(ctx); err != nil {
				m.release(key, jobID)
				return "", false, err
			}
			return jobID, false, nil
		}

		incumbent, found, err := m.store.Get(ctx, key)
		if err != nil {
			return "", false, fmt.Errorf("dedup read: %w", err)
		}
		if found {
			return incumbent, true, nil
		}
		// Marker vanished between the claim and the read; try again.
	}
	return "", false, fmt.Errorf("dedup registry contention on key %s", key)
}

// Release clears the in-flight marker once the job holding it reaches a
// terminal state. Unconditional by contract: it runs on success, failure
// and dead-letter paths alike.
func (m *Manager) Release(ctx context.Context, key, jobID string) {
	incumbent, found, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn().Err(err).Str("cache_key", key).Msg("dedup: release read failed")
		return
	}
	if !found {
		return
	}
	if incumbent != jobID {
		// The marker expired and a newer job re-claimed the key. Leave
		// the newer registration alone.
		return
	}
	if err := m.store.Del(ctx, key); err != nil {
		m.logger.Warn().Err(err).Str("cache_key", key).Str("job_id", jobID).Msg("dedup: release failed")
	}
}

func (m *Manager) release(key, jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.Release(ctx, key, jobID)
}
