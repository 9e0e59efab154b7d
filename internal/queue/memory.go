package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
)

// Memory is an in-process queue with the same lease and ordering
// semantics as Postgres. It backs tests and local runs without a
// database.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	seq  map[string]int
	next int
}

func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*domain.Job),
		seq:  make(map[string]int),
	}
}

var _ domain.Queue = (*Memory)(nil)

func (q *Memory) Enqueue(ctx context.Context, job *domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.jobs[job.ID]; ok {
		return fmt.Errorf("enqueue job %s: duplicate id", job.ID)
	}

	now := time.Now()
	stored := copyJob(job)
	stored.State = domain.JobStateWaiting
	stored.AttemptsMade = 0
	stored.RunAt = now
	stored.CreatedAt = now
	stored.UpdatedAt = now
	q.jobs[job.ID] = stored
	q.seq[job.ID] = q.next
	q.next++
	return nil
}

func (q *Memory) Claim(ctx context.Context, lease time.Duration) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var pick *domain.Job
	for _, job := range q.jobs {
		if !claimable(job, now) {
			continue
		}
		if pick == nil || earlier(q, job, pick) {
			pick = job
		}
	}
	if pick == nil {
		return nil, nil
	}

	expires := now.Add(lease)
	pick.State = domain.JobStateActive
	pick.AttemptsMade++
	pick.LeaseExpiresAt = &expires
	pick.UpdatedAt = now
	return copyJob(pick), nil
}

func claimable(job *domain.Job, now time.Time) bool {
	switch job.State {
	case domain.JobStateWaiting, domain.JobStateDelayed:
		return !job.RunAt.After(now)
	case domain.JobStateActive:
		return job.LeaseExpiresAt != nil && !job.LeaseExpiresAt.After(now)
	default:
		return false
	}
}

func earlier(q *Memory, a, b *domain.Job) bool {
	if !a.RunAt.Equal(b.RunAt) {
		return a.RunAt.Before(b.RunAt)
	}
	return q.seq[a.ID] < q.seq[b.ID]
}

func (q *Memory) Complete(ctx context.Context, jobID string, result *domain.GenerationResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok || job.State != domain.JobStateActive {
		return fmt.Errorf("complete job %s: not active: %w", jobID, domain.ErrNotFound)
	}

	now := time.Now()
	job.State = domain.JobStateCompleted
	job.Result = result
	job.LeaseExpiresAt = nil
	job.FinishedAt = &now
	job.UpdatedAt = now
	return nil
}

func (q *Memory) Fail(ctx context.Context, jobID string, reason string, attempt domain.AttemptRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok || job.State != domain.JobStateActive {
		return fmt.Errorf("fail job %s: not active: %w", jobID, domain.ErrNotFound)
	}

	now := time.Now()
	job.State = domain.JobStateFailed
	job.FailureReason = reason
	job.Attempts = append(job.Attempts, attempt)
	job.LeaseExpiresAt = nil
	job.FinishedAt = &now
	job.UpdatedAt = now
	return nil
}

func (q *Memory) RetryLater(ctx context.Context, jobID string, runAt time.Time, attempt domain.AttemptRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok || job.State != domain.JobStateActive {
		return fmt.Errorf("retry job %s: not active: %w", jobID, domain.ErrNotFound)
	}

	job.State = domain.JobStateDelayed
	job.RunAt = runAt
	job.Attempts = append(job.Attempts, attempt)
	job.LeaseExpiresAt = nil
	job.UpdatedAt = time.Now()
	return nil
}

func (q *Memory) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return copyJob(job), nil
}

func (q *Memory) Depth(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	depth := 0
	for _, job := range q.jobs {
		switch job.State {
		case domain.JobStateWaiting, domain.JobStateActive, domain.JobStateDelayed:
			depth++
		}
	}
	return depth, nil
}

func (q *Memory) CountByState(ctx context.Context) (map[domain.JobState]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[domain.JobState]int)
	for _, job := range q.jobs {
		counts[job.State]++
	}
	return counts, nil
}

func copyJob(job *domain.Job) *domain.Job {
	out := *job
	if job.LeaseExpiresAt != nil {
		t := *job.LeaseExpiresAt
		out.LeaseExpiresAt = &t
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		out.FinishedAt = &t
	}
	if job.Result != nil {
		r := *job.Result
		out.Result = &r
	}
	if len(job.Attempts) > 0 {
		out.Attempts = append([]domain.AttemptRecord(nil), job.Attempts...)
	}
	if job.Prompt.Options != nil {
		o := *job.Prompt.Options
		out.Prompt.Options = &o
	}
	return &out
}
