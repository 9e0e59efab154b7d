package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
)

func enqueueN(t *testing.T, q *Memory, ids ...string) {
	t.Helper()
	for _, id := range ids {
		job := &domain.Job{
			ID:          id,
			UserID:      "u1",
			CacheKey:    "key-" + id,
			Prompt:      domain.StructuredPrompt{Type: "creature", Description: "d"},
			MaxAttempts: 4,
		}
		if err := q.Enqueue(context.Background(), job); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
}

func TestMemoryClaimFIFO(t *testing.T) {
	q := NewMemory()
	enqueueN(t, q, "a", "b", "c")

	for _, want := range []string{"a", "b", "c"} {
		job, err := q.Claim(context.Background(), time.Minute)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if job == nil || job.ID != want {
			t.Fatalf("claim order broken: got %+v want %s", job, want)
		}
		if job.State != domain.JobStateActive || job.AttemptsMade != 1 {
			t.Fatalf("claimed job not active with one attempt: %+v", job)
		}
		if job.LeaseExpiresAt == nil {
			t.Fatal("claimed job has no lease")
		}
	}

	job, err := q.Claim(context.Background(), time.Minute)
	if err != nil || job != nil {
		t.Fatalf("expected empty queue, got job=%v err=%v", job, err)
	}
}

func TestMemoryCompleteIsTerminal(t *testing.T) {
	q := NewMemory()
	enqueueN(t, q, "a")

	job, _ := q.Claim(context.Background(), time.Minute)
	result := &domain.GenerationResult{Provider: "synthetic"}
	if err := q.Complete(context.Background(), job.ID, result); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := q.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != domain.JobStateCompleted || got.Result == nil || got.FinishedAt == nil {
		t.Fatalf("completed job malformed: %+v", got)
	}

	if err := q.Complete(context.Background(), "a", result); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("double complete should be ErrNotFound, got %v", err)
	}
}

func TestMemoryFailRecordsReasonAndAttempt(t *testing.T) {
	q := NewMemory()
	enqueueN(t, q, "a")

	job, _ := q.Claim(context.Background(), time.Minute)
	attempt := domain.AttemptRecord{Attempt: 1, Kind: domain.FailureKindFatal, Error: "bad request", At: time.Now()}
	if err := q.Fail(context.Background(), job.ID, "bad request", attempt); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, _ := q.Get(context.Background(), "a")
	if got.State != domain.JobStateFailed || got.FailureReason != "bad request" {
		t.Fatalf("failed job malformed: %+v", got)
	}
	if len(got.Attempts) != 1 || got.Attempts[0].Kind != domain.FailureKindFatal {
		t.Fatalf("attempt history missing: %+v", got.Attempts)
	}
}

func TestMemoryRetryLaterDelaysJob(t *testing.T) {
	q := NewMemory()
	enqueueN(t, q, "a")

	job, _ := q.Claim(context.Background(), time.Minute)
	attempt := domain.AttemptRecord{Attempt: 1, Kind: domain.FailureKindTransient, Error: "timeout", At: time.Now()}

	future := time.Now().Add(time.Hour)
	if err := q.RetryLater(context.Background(), job.ID, future, attempt); err != nil {
		t.Fatalf("retry later: %v", err)
	}

	if got, err := q.Claim(context.Background(), time.Minute); err != nil || got != nil {
		t.Fatalf("delayed job claimed early: job=%v err=%v", got, err)
	}

	got, _ := q.Get(context.Background(), "a")
	if got.State != domain.JobStateDelayed {
		t.Fatalf("job not delayed: %+v", got)
	}
}

func TestMemoryRetryLaterPastDueIsClaimable(t *testing.T) {
	q := NewMemory()
	enqueueN(t, q, "a")

	job, _ := q.Claim(context.Background(), time.Minute)
	attempt := domain.AttemptRecord{Attempt: 1, Kind: domain.FailureKindTransient, Error: "timeout", At: time.Now()}
	if err := q.RetryLater(context.Background(), job.ID, time.Now().Add(-time.Second), attempt); err != nil {
		t.Fatalf("retry later: %v", err)
	}

	got, err := q.Claim(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got == nil || got.ID != "a" || got.AttemptsMade != 2 {
		t.Fatalf("retried job not reclaimed: %+v", got)
	}
}

func TestMemoryExpiredLeaseIsReclaimable(t *testing.T) {
	q := NewMemory()
	enqueueN(t, q, "a")

	if job, _ := q.Claim(context.Background(), time.Millisecond); job == nil {
		t.Fatal("first claim failed")
	}
	time.Sleep(5 * time.Millisecond)

	got, err := q.Claim(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got == nil || got.ID != "a" {
		t.Fatalf("expired lease not reclaimed: %+v", got)
	}
	if got.AttemptsMade != 2 {
		t.Fatalf("reclaim should count as a new attempt: %+v", got)
	}
}

func TestMemoryHeldLeaseBlocksReclaim(t *testing.T) {
	q := NewMemory()
	enqueueN(t, q, "a")

	if job, _ := q.Claim(context.Background(), time.Minute); job == nil {
		t.Fatal("first claim failed")
	}

	got, err := q.Claim(context.Background(), time.Minute)
	if err != nil || got != nil {
		t.Fatalf("active job with live lease must not be reclaimed: job=%v err=%v", got, err)
	}
}

func TestMemoryDepthCountsLiveStatesOnly(t *testing.T) {
	q := NewMemory()
	enqueueN(t, q, "a", "b", "c")

	job, _ := q.Claim(context.Background(), time.Minute)
	if err := q.Complete(context.Background(), job.ID, &domain.GenerationResult{}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	depth, err := q.Depth(context.Background())
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 2 {
		t.Fatalf("depth should exclude terminal jobs: got %d", depth)
	}

	counts, err := q.CountByState(context.Background())
	if err != nil {
		t.Fatalf("count by state: %v", err)
	}
	if counts[domain.JobStateCompleted] != 1 || counts[domain.JobStateWaiting] != 2 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestMemoryClaimReturnsCopy(t *testing.T) {
	q := NewMemory()
	enqueueN(t, q, "a")

	job, _ := q.Claim(context.Background(), time.Minute)
	job.UserID = "mutated"

	got, _ := q.Get(context.Background(), "a")
	if got.UserID != "u1" {
		t.Fatalf("claim leaked internal state: %+v", got)
	}
}
