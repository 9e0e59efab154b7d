// Package queue implements the durable generation job store. Claims use
// FOR UPDATE SKIP LOCKED so any number of worker slots can pull from the
// same table without coordination, and every claim carries a lease: a
// worker that dies mid-attempt leaves a row whose lease lapses and the
// job becomes claimable again.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/sqlinline"
)

// Postgres is the production queue, one row per job in generation_jobs.
type Postgres struct {
	db infra.SQLExecutor
}

func NewPostgres(db infra.SQLExecutor) *Postgres {
	return &Postgres{db: db}
}

var _ domain.Queue = (*Postgres)(nil)

func (q *Postgres) Enqueue(ctx context.Context, job *domain.Job) error {
	promptJSON, err := json.Marshal(job.Prompt)
	if err != nil {
		return fmt.Errorf("marshal prompt: %w", err)
	}
	if _, err := q.db.Exec(ctx, sqlinline.QEnqueueJob, job.ID, job.UserID, job.CacheKey, promptJSON, job.MaxAttempts); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

func (q *Postgres) Claim(ctx context.Context, lease time.Duration) (*domain.Job, error) {
	row := q.db.QueryRow(ctx, sqlinline.QClaimJob, int(lease.Seconds()))
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (q *Postgres) Complete(ctx context.Context, jobID string, result *domain.GenerationResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	tag, err := q.db.Exec(ctx, sqlinline.QCompleteJob, jobID, resultJSON)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete job %s: not active: %w", jobID, domain.ErrNotFound)
	}
	return nil
}

func (q *Postgres) Fail(ctx context.Context, jobID string, reason string, attempt domain.AttemptRecord) error {
	attemptJSON, err := json.Marshal([]domain.AttemptRecord{attempt})
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	tag, err := q.db.Exec(ctx, sqlinline.QFailJob, jobID, reason, attemptJSON)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fail job %s: not active: %w", jobID, domain.ErrNotFound)
	}
	return nil
}

func (q *Postgres) RetryLater(ctx context.Context, jobID string, runAt time.Time, attempt domain.AttemptRecord) error {
	attemptJSON, err := json.Marshal([]domain.AttemptRecord{attempt})
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	tag, err := q.db.Exec(ctx, sqlinline.QRetryJobLater, jobID, runAt, attemptJSON)
	if err != nil {
		return fmt.Errorf("retry job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("retry job %s: not active: %w", jobID, domain.ErrNotFound)
	}
	return nil
}

func (q *Postgres) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	row := q.db.QueryRow(ctx, sqlinline.QGetJob, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

func (q *Postgres) Depth(ctx context.Context) (int, error) {
	var depth int
	if err := q.db.QueryRow(ctx, sqlinline.QQueueDepth).Scan(&depth); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}

func (q *Postgres) CountByState(ctx context.Context) (map[domain.JobState]int, error) {
	rows, err := q.db.Query(ctx, sqlinline.QCountJobsByState)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[domain.JobState(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	return counts, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job          domain.Job
		state        string
		promptJSON   []byte
		resultJSON   []byte
		attemptsJSON []byte
	)
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.CacheKey,
		&promptJSON,
		&state,
		&job.AttemptsMade,
		&job.MaxAttempts,
		&job.RunAt,
		&job.LeaseExpiresAt,
		&resultJSON,
		&job.FailureReason,
		&attemptsJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	job.State = domain.JobState(state)
	if err := json.Unmarshal(promptJSON, &job.Prompt); err != nil {
		return nil, fmt.Errorf("decode prompt: %w", err)
	}
	if len(attemptsJSON) > 0 {
		if err := json.Unmarshal(attemptsJSON, &job.Attempts); err != nil {
			return nil, fmt.Errorf("decode attempts: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &job.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &job, nil
}
