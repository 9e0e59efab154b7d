package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/providers/sprite"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/queue"
)

type recordingDLQ struct {
	mu      sync.Mutex
	entries []*domain.DeadLetterJob
}

func (d *recordingDLQ) Record(_ context.Context, job *domain.DeadLetterJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, job)
	return nil
}

func (d *recordingDLQ) List(_ context.Context, _ int) ([]*domain.DeadLetterJob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries, nil
}

func claimedJob(t *testing.T, q *queue.Memory, maxAttempts int) *domain.Job {
	t.Helper()
	job := &domain.Job{
		ID:          "job-1",
		UserID:      "user-1",
		CacheKey:    "key-1",
		Prompt:      domain.StructuredPrompt{Type: "unit", Description: "knight", Size: domain.SpriteSize{Width: 64, Height: 64}},
		MaxAttempts: maxAttempts,
	}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := q.Claim(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil {
		t.Fatalf("claim returned no job")
	}
	return claimed
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.FailureKind
	}{
		{"unauthorized", &sprite.UpstreamError{Status: http.StatusUnauthorized}, domain.FailureKindFatal},
		{"forbidden", &sprite.UpstreamError{Status: http.StatusForbidden}, domain.FailureKindFatal},
		{"bad request", &sprite.UpstreamError{Status: http.StatusBadRequest}, domain.FailureKindFatal},
		{"unprocessable", &sprite.UpstreamError{Status: http.StatusUnprocessableEntity}, domain.FailureKindFatal},
		{"rate limited", &sprite.UpstreamError{Status: http.StatusTooManyRequests}, domain.FailureKindTransient},
		{"server error", &sprite.UpstreamError{Status: http.StatusInternalServerError}, domain.FailureKindTransient},
		{"bad gateway", &sprite.UpstreamError{Status: http.StatusBadGateway}, domain.FailureKindTransient},
		{"no status", &sprite.UpstreamError{Message: "connection reset"}, domain.FailureKindTransient},
		{"wrapped fatal", fmt.Errorf("generate: %w", &sprite.UpstreamError{Status: http.StatusUnauthorized}), domain.FailureKindFatal},
		{"deadline", context.DeadlineExceeded, domain.FailureKindTransient},
		{"unknown", errors.New("something odd"), domain.FailureKindTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestBackoffDoubles(t *testing.T) {
	m := NewManager(queue.NewMemory(), &recordingDLQ{}, 2*time.Second, 2, zerolog.Nop())

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{0, 2 * time.Second},
	}
	for _, tc := range cases {
		if got := m.BackoffFor(tc.attempts); got != tc.want {
			t.Fatalf("BackoffFor(%d) = %s, want %s", tc.attempts, got, tc.want)
		}
	}
}

func TestTransientFailureReschedules(t *testing.T) {
	q := queue.NewMemory()
	dlq := &recordingDLQ{}
	m := NewManager(q, dlq, 2*time.Second, 2, zerolog.Nop())
	job := claimedJob(t, q, 4)

	before := time.Now()
	retried, err := m.HandleFailure(context.Background(), job, &sprite.UpstreamError{Status: http.StatusServiceUnavailable, Message: "overloaded"})
	if err != nil {
		t.Fatalf("HandleFailure: %v", err)
	}
	if !retried {
		t.Fatalf("expected job to be rescheduled")
	}

	stored, err := q.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State != domain.JobStateDelayed {
		t.Fatalf("state = %s, want delayed", stored.State)
	}
	minRunAt := before.Add(2 * time.Second)
	if stored.RunAt.Before(minRunAt) {
		t.Fatalf("run at %s earlier than backoff floor %s", stored.RunAt, minRunAt)
	}
	if len(stored.Attempts) != 1 {
		t.Fatalf("attempts recorded = %d, want 1", len(stored.Attempts))
	}
	if stored.Attempts[0].Kind != domain.FailureKindTransient || stored.Attempts[0].Attempt != 1 {
		t.Fatalf("unexpected attempt record: %+v", stored.Attempts[0])
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("dead letters = %d, want 0", len(dlq.entries))
	}
}

func TestFatalFailureDeadLetters(t *testing.T) {
	q := queue.NewMemory()
	dlq := &recordingDLQ{}
	m := NewManager(q, dlq, 2*time.Second, 2, zerolog.Nop())
	job := claimedJob(t, q, 4)

	genErr := &sprite.UpstreamError{Status: http.StatusUnauthorized, Message: "invalid api key"}
	retried, err := m.HandleFailure(context.Background(), job, genErr)
	if err != nil {
		t.Fatalf("HandleFailure: %v", err)
	}
	if retried {
		t.Fatalf("fatal failure must not retry")
	}

	stored, err := q.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State != domain.JobStateFailed {
		t.Fatalf("state = %s, want failed", stored.State)
	}
	if stored.FailureReason != genErr.Error() {
		t.Fatalf("reason = %q", stored.FailureReason)
	}

	if len(dlq.entries) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dlq.entries))
	}
	dead := dlq.entries[0]
	if dead.JobID != job.ID || dead.UserID != "user-1" || dead.CacheKey != "key-1" {
		t.Fatalf("dead letter identity mismatch: %+v", dead)
	}
	if dead.ID == "" || dead.ID == dead.JobID {
		t.Fatalf("dead letter needs its own id, got %q", dead.ID)
	}
	if len(dead.Attempts) != 1 || dead.Attempts[0].Kind != domain.FailureKindFatal {
		t.Fatalf("unexpected attempt history: %+v", dead.Attempts)
	}
	if dead.Prompt.Description != "knight" {
		t.Fatalf("prompt not carried: %+v", dead.Prompt)
	}
}

func TestExhaustedRetriesDeadLetter(t *testing.T) {
	q := queue.NewMemory()
	dlq := &recordingDLQ{}
	m := NewManager(q, dlq, time.Millisecond, 2, zerolog.Nop())
	job := claimedJob(t, q, 2)

	genErr := &sprite.UpstreamError{Status: http.StatusInternalServerError, Message: "boom"}
	retried, err := m.HandleFailure(context.Background(), job, genErr)
	if err != nil || !retried {
		t.Fatalf("first failure: retried=%v err=%v", retried, err)
	}

	time.Sleep(5 * time.Millisecond)
	job, err = q.Claim(context.Background(), time.Minute)
	if err != nil || job == nil {
		t.Fatalf("reclaim: job=%v err=%v", job, err)
	}
	if job.AttemptsMade != 2 {
		t.Fatalf("attempts made = %d, want 2", job.AttemptsMade)
	}

	retried, err = m.HandleFailure(context.Background(), job, genErr)
	if err != nil {
		t.Fatalf("second failure: %v", err)
	}
	if retried {
		t.Fatalf("budget exhausted, must not retry")
	}

	if len(dlq.entries) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dlq.entries))
	}
	dead := dlq.entries[0]
	if !strings.Contains(dead.FailureReason, "retries exhausted after 2 attempts") {
		t.Fatalf("reason = %q", dead.FailureReason)
	}
	if len(dead.Attempts) != 2 {
		t.Fatalf("attempt history = %d, want both attempts", len(dead.Attempts))
	}
	if dead.Attempts[0].Attempt != 1 || dead.Attempts[1].Attempt != 2 {
		t.Fatalf("attempt numbering wrong: %+v", dead.Attempts)
	}
}

func TestJobFinishedElsewhereSkipsDeadLetter(t *testing.T) {
	q := queue.NewMemory()
	dlq := &recordingDLQ{}
	m := NewManager(q, dlq, 2*time.Second, 2, zerolog.Nop())
	job := claimedJob(t, q, 4)

	if err := q.Complete(context.Background(), job.ID, &domain.GenerationResult{Provider: "pixellab"}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	retried, err := m.HandleFailure(context.Background(), job, &sprite.UpstreamError{Status: http.StatusUnauthorized})
	if err != nil {
		t.Fatalf("HandleFailure: %v", err)
	}
	if retried {
		t.Fatalf("finished job must not be retried")
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("dead letters = %d, want 0 for finished job", len(dlq.entries))
	}

	stored, err := q.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State != domain.JobStateCompleted {
		t.Fatalf("state = %s, completed result must stand", stored.State)
	}
}
