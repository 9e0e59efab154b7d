// Package submit is the front door of the pipeline: it normalizes the
// prompt, answers from cache when possible, coalesces duplicate work,
// and admits what remains into the queue.
package submit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/admission"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/cache"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/dedup"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/progress"
)

// Submission is the outcome of a submit call. Exactly one of the three
// shapes comes back: a cache hit carrying the result, a coalesced
// reference to an in-flight job, or a newly enqueued job.
type Submission struct {
	JobID     string
	CacheKey  string
	CacheHit  bool
	Coalesced bool
	Result    *domain.GenerationResult
}

// JobStatus merges the queue row with the latest progress event.
type JobStatus struct {
	JobID         string
	State         domain.JobState
	Percent       int
	Stage         string
	AttemptsMade  int
	MaxAttempts   int
	Result        *domain.GenerationResult
	FailureReason string
	CreatedAt     time.Time
	FinishedAt    *time.Time
}

type Submitter struct {
	queue       domain.Queue
	cache       *cache.Tiered
	dedup       *dedup.Manager
	admission   *admission.Control
	bus         progress.Bus
	maxAttempts int
	logger      infra.Logger
}

// NewSubmitter wires the submission path. maxRetries counts retries
// after the first attempt, so a job gets maxRetries+1 attempts total.
func NewSubmitter(queue domain.Queue, tiered *cache.Tiered, dedupMgr *dedup.Manager, control *admission.Control, bus progress.Bus, maxRetries int, logger infra.Logger) *Submitter {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Submitter{
		queue:       queue,
		cache:       tiered,
		dedup:       dedupMgr,
		admission:   control,
		bus:         bus,
		maxAttempts: maxRetries + 1,
		logger:      logger,
	}
}

// Submit runs the request through cache, dedup and admission in that
// order. Duplicates of an in-flight prompt coalesce before admission is
// consulted, so joining an existing job never costs the user a slot.
func (s *Submitter) Submit(ctx context.Context, userID string, prompt domain.StructuredPrompt) (*Submission, error) {
	if userID == "" {
		return nil, fmt.Errorf("submit: user id is required")
	}
	if err := prompt.Validate(); err != nil {
		return nil, err
	}

	normalized := prompt.Normalized()
	key := normalized.CacheKey()

	entry, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key).Msg("submit: cache read failed, treating as miss")
	} else if hit {
		s.logger.Info().Str("cache_key", key).Str("user_id", userID).Msg("submit: served from cache")
		return &Submission{CacheKey: key, CacheHit: true, Result: entry.Result}, nil
	}

	jobID := uuid.NewString()
	start := func(startCtx context.Context) error {
		if err := s.admission.Admit(startCtx, userID); err != nil {
			return err
		}
		job := &domain.Job{
			ID:          jobID,
			UserID:      userID,
			CacheKey:    key,
			Prompt:      normalized,
			MaxAttempts: s.maxAttempts,
		}
		if err := s.queue.Enqueue(startCtx, job); err != nil {
			s.admission.Finish(startCtx, userID)
			return fmt.Errorf("submit: enqueue: %w", err)
		}
		return nil
	}

	winnerID, coalesced, err := s.dedup.RunExclusive(ctx, key, jobID, start)
	if err != nil {
		return nil, err
	}
	if coalesced {
		s.logger.Info().Str("job_id", winnerID).Str("cache_key", key).Str("user_id", userID).Msg("submit: coalesced onto in-flight job")
		return &Submission{JobID: winnerID, CacheKey: key, Coalesced: true}, nil
	}
	s.logger.Info().Str("job_id", jobID).Str("cache_key", key).Str("user_id", userID).Msg("submit: job enqueued")
	return &Submission{JobID: jobID, CacheKey: key}, nil
}

// Status reports where the job is. Terminal states come straight from
// the queue row; live states pick up the latest progress event when one
// exists.
func (s *Submitter) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	job, err := s.queue.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	status := &JobStatus{
		JobID:         job.ID,
		State:         job.State,
		AttemptsMade:  job.AttemptsMade,
		MaxAttempts:   job.MaxAttempts,
		Result:        job.Result,
		FailureReason: job.FailureReason,
		CreatedAt:     job.CreatedAt,
		FinishedAt:    job.FinishedAt,
	}
	status.Percent, status.Stage = baselineProgress(job)
	if !job.State.Terminal() {
		if event, ok, err := s.bus.Latest(ctx, jobID); err == nil && ok {
			status.Percent, status.Stage = event.Percent, event.Stage
		}
	}
	return status, nil
}

func baselineProgress(job *domain.Job) (int, string) {
	switch job.State {
	case domain.JobStateWaiting:
		return 0, "queued"
	case domain.JobStateDelayed:
		return 0, "retry scheduled"
	case domain.JobStateActive:
		return 0, "processing"
	case domain.JobStateCompleted:
		return 100, "complete"
	case domain.JobStateFailed:
		return 100, "failed"
	}
	return 0, string(job.State)
}
