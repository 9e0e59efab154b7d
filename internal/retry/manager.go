package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
)

// Manager decides what happens to a job whose generation attempt failed.
type Manager struct {
	queue      domain.Queue
	deadLetter domain.DeadLetterStore
	delay      time.Duration
	multiplier float64
	logger     infra.Logger
}

func NewManager(queue domain.Queue, deadLetter domain.DeadLetterStore, delay time.Duration, multiplier float64, logger infra.Logger) *Manager {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	if multiplier < 1 {
		multiplier = 2
	}
	return &Manager{
		queue:      queue,
		deadLetter: deadLetter,
		delay:      delay,
		multiplier: multiplier,
		logger:     logger,
	}
}

// BackoffFor returns the wait before the next try given how many
// attempts the job has already made. The first retry waits the base
// delay; each later one multiplies it.
func (m *Manager) BackoffFor(attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}
	return time.Duration(float64(m.delay) * math.Pow(m.multiplier, float64(attemptsMade-1)))
}

// HandleFailure records the failed attempt and routes the job: transient
// failures with budget left are rescheduled with backoff, everything
// else is terminally failed and copied to the dead-letter store. The
// returned bool reports whether the job will run again.
//
// The queue row is failed before the dead-letter insert. If this worker
// lost its lease and another finished the job meanwhile, Fail reports
// the job gone and the dead-letter copy is skipped.
func (m *Manager) HandleFailure(ctx context.Context, job *domain.Job, genErr error) (bool, error) {
	kind := Classify(genErr)
	attempt := domain.AttemptRecord{
		Attempt: job.AttemptsMade,
		Kind:    kind,
		Error:   genErr.Error(),
		At:      time.Now().UTC(),
	}

	if kind == domain.FailureKindTransient && job.AttemptsMade < job.MaxAttempts {
		backoff := m.BackoffFor(job.AttemptsMade)
		runAt := time.Now().UTC().Add(backoff)
		if err := m.queue.RetryLater(ctx, job.ID, runAt, attempt); err != nil {
			return false, fmt.Errorf("retry: reschedule job %s: %w", job.ID, err)
		}
		m.logger.Warn().
			Str("job_id", job.ID).
			Int("attempt", job.AttemptsMade).
			Int("max_attempts", job.MaxAttempts).
			Dur("backoff", backoff).
			Str("error", genErr.Error()).
			Msg("retry: attempt failed, rescheduled")
		return true, nil
	}

	reason := genErr.Error()
	if kind == domain.FailureKindTransient {
		reason = fmt.Sprintf("retries exhausted after %d attempts: %s", job.AttemptsMade, genErr.Error())
	}

	if err := m.queue.Fail(ctx, job.ID, reason, attempt); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			m.logger.Debug().Str("job_id", job.ID).Msg("retry: job already finished elsewhere, skipping dead letter")
			return false, nil
		}
		return false, fmt.Errorf("retry: fail job %s: %w", job.ID, err)
	}

	dead := &domain.DeadLetterJob{
		ID:            uuid.NewString(),
		JobID:         job.ID,
		UserID:        job.UserID,
		CacheKey:      job.CacheKey,
		Prompt:        job.Prompt,
		FailureReason: reason,
		AttemptsMade:  job.AttemptsMade,
		Attempts:      append(append([]domain.AttemptRecord{}, job.Attempts...), attempt),
		FailedAt:      time.Now().UTC(),
	}
	if err := m.deadLetter.Record(ctx, dead); err != nil {
		return false, fmt.Errorf("retry: dead-letter job %s: %w", job.ID, err)
	}
	m.logger.Error().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("kind", string(kind)).
		Int("attempts", job.AttemptsMade).
		Str("reason", reason).
		Msg("retry: job dead-lettered")
	return false, nil
}
