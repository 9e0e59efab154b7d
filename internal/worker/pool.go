// Package worker drains the generation queue. Each slot claims a job,
// runs the generator under the generation timeout, and settles the job
// through the cache, retry, dedup and admission layers.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/admission"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/cache"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/dedup"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/progress"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/providers/sprite"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/retry"
)

const (
	claimPollInterval = 2 * time.Second
	publishTimeout    = 2 * time.Second
)

// Options wires the pool's collaborators.
type Options struct {
	Queue            domain.Queue
	Cache            *cache.Tiered
	Generator        sprite.Generator
	Retry            *retry.Manager
	Dedup            *dedup.Manager
	Admission        *admission.Control
	Bus              progress.Bus
	Concurrency      int
	Lease            time.Duration
	GenerateTimeout  time.Duration
	ProgressInterval time.Duration
	Logger           infra.Logger
}

type Pool struct {
	queue            domain.Queue
	cache            *cache.Tiered
	generator        sprite.Generator
	retry            *retry.Manager
	dedup            *dedup.Manager
	admission        *admission.Control
	bus              progress.Bus
	concurrency      int
	lease            time.Duration
	generateTimeout  time.Duration
	progressInterval time.Duration
	logger           infra.Logger
}

func NewPool(opts Options) *Pool {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = 3 * time.Minute
	}
	generateTimeout := opts.GenerateTimeout
	if generateTimeout <= 0 {
		generateTimeout = 2 * time.Minute
	}
	return &Pool{
		queue:            opts.Queue,
		cache:            opts.Cache,
		generator:        opts.Generator,
		retry:            opts.Retry,
		dedup:            opts.Dedup,
		admission:        opts.Admission,
		bus:              opts.Bus,
		concurrency:      concurrency,
		lease:            lease,
		generateTimeout:  generateTimeout,
		progressInterval: opts.ProgressInterval,
		logger:           opts.Logger,
	}
}

// Run blocks until ctx is cancelled, keeping concurrency claim loops
// going. Returns the context error on shutdown.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info().Int("concurrency", p.concurrency).Msg("worker: started")
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		slot := i
		g.Go(func() error {
			return p.runSlot(ctx, slot)
		})
	}
	return g.Wait()
}

func (p *Pool) runSlot(ctx context.Context, slot int) error {
	logger := p.logger.With().Int("slot", slot).Logger()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := p.queue.Claim(ctx, p.lease)
		if err != nil {
			logger.Error().Err(err).Msg("worker: claim failed")
			waitFor(ctx, claimPollInterval)
			continue
		}
		if job == nil {
			waitFor(ctx, claimPollInterval)
			continue
		}
		p.process(ctx, logger, job)
	}
}

// process runs one claimed job to a settled point. The job leaves here
// either terminal (completed, failed), rescheduled (delayed), or still
// active so its lease can lapse and another claim can pick it up.
func (p *Pool) process(ctx context.Context, logger infra.Logger, job *domain.Job) {
	logger.Info().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Int("attempt", job.AttemptsMade).
		Int("max_attempts", job.MaxAttempts).
		Msg("worker: picked job")

	genCtx, cancel := context.WithTimeout(ctx, p.generateTimeout)
	result, genErr := p.generator.Generate(genCtx, job.Prompt, p.progressFunc(job.ID))
	cancel()

	if genErr != nil {
		retried, err := p.retry.HandleFailure(ctx, job, genErr)
		if err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: failure handling failed, leaving job to lease expiry")
			return
		}
		if retried {
			p.publish(job.ID, 0, "retrying")
			return
		}
		p.publish(job.ID, 100, "failed")
		p.settle(job)
		return
	}

	if _, err := p.cache.Put(ctx, job.CacheKey, job.UserID, job.Prompt, result); err != nil {
		logger.Warn().Err(err).Str("job_id", job.ID).Msg("worker: cache store failed")
	}

	if err := p.queue.Complete(ctx, job.ID, result); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: complete failed, leaving job to lease expiry")
			return
		}
		logger.Debug().Str("job_id", job.ID).Msg("worker: job already finished elsewhere")
	}
	logger.Info().
		Str("job_id", job.ID).
		Int64("duration_ms", result.DurationMS).
		Str("provider", result.Provider).
		Msg("worker: job completed")
	p.publish(job.ID, 100, "complete")
	p.settle(job)
}

// settle runs once per terminal job: the in-flight marker and the
// user's admission slot are held for the job's whole life, including
// retries, and released only here. Runs on its own context; a shutdown
// that interrupts the claim loop must still release the slot.
func (p *Pool) settle(job *domain.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	p.dedup.Release(ctx, job.CacheKey, job.ID)
	p.admission.Finish(ctx, job.UserID)
}

// progressFunc throttles generator callbacks to the configured interval
// so a chatty provider does not flood the bus. Terminal updates always
// pass through.
func (p *Pool) progressFunc(jobID string) sprite.ProgressFunc {
	var mu sync.Mutex
	var last time.Time
	return func(percent int, stage string) {
		mu.Lock()
		now := time.Now()
		if percent < 100 && p.progressInterval > 0 && now.Sub(last) < p.progressInterval {
			mu.Unlock()
			return
		}
		last = now
		mu.Unlock()
		p.publish(jobID, percent, stage)
	}
}

// publish is fire-and-forget: delivery is bounded by publishTimeout and
// a failed publish never changes how the job settles.
func (p *Pool) publish(jobID string, percent int, stage string) {
	pubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	event := progress.Event{JobID: jobID, Percent: percent, Stage: stage, Timestamp: time.Now().UTC()}
	if err := p.bus.Publish(pubCtx, event); err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("worker: progress publish failed")
	}
}

func waitFor(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
