package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/sqlinline"
)

// DeadLetterPG implements domain.DeadLetterStore on the dead_letter_jobs
// table.
type DeadLetterPG struct {
	db infra.SQLExecutor
}

func NewDeadLetterStore(db infra.SQLExecutor) *DeadLetterPG {
	return &DeadLetterPG{db: db}
}

var _ domain.DeadLetterStore = (*DeadLetterPG)(nil)

func (r *DeadLetterPG) Record(ctx context.Context, job *domain.DeadLetterJob) error {
	promptJSON, err := json.Marshal(job.Prompt)
	if err != nil {
		return fmt.Errorf("marshal prompt: %w", err)
	}
	attemptsJSON, err := json.Marshal(job.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}
	_, err = r.db.Exec(ctx, sqlinline.QInsertDeadLetter,
		job.ID,
		job.JobID,
		job.UserID,
		job.CacheKey,
		promptJSON,
		job.FailureReason,
		job.AttemptsMade,
		attemptsJSON,
		job.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("record dead letter for job %s: %w", job.JobID, err)
	}
	return nil
}

func (r *DeadLetterPG) List(ctx context.Context, limit int) ([]*domain.DeadLetterJob, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListDeadLetters, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []*domain.DeadLetterJob
	for rows.Next() {
		var (
			job          domain.DeadLetterJob
			promptJSON   []byte
			attemptsJSON []byte
		)
		if err := rows.Scan(
			&job.ID,
			&job.JobID,
			&job.UserID,
			&job.CacheKey,
			&promptJSON,
			&job.FailureReason,
			&job.AttemptsMade,
			&attemptsJSON,
			&job.FailedAt,
		); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		if err := json.Unmarshal(promptJSON, &job.Prompt); err != nil {
			return nil, fmt.Errorf("decode dead letter prompt: %w", err)
		}
		if len(attemptsJSON) > 0 {
			if err := json.Unmarshal(attemptsJSON, &job.Attempts); err != nil {
				return nil, fmt.Errorf("decode dead letter attempts: %w", err)
			}
		}
		out = append(out, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return out, nil
}
