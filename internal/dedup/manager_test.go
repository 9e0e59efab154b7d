package dedup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestRunExclusiveWinnerStarts(t *testing.T) {
	m := NewManager(NewMemoryStore(), zerolog.Nop())

	started := false
	jobID, coalesced, err := m.RunExclusive(context.Background(), "k1", "job-a", func(context.Context) error {
		started = true
		return nil
	})
	if err != nil {
		t.Fatalf("run exclusive: %v", err)
	}
	if !started {
		t.Fatal("winner must run the start function")
	}
	if coalesced || jobID != "job-a" {
		t.Fatalf("winner result mismatch: id=%s coalesced=%v", jobID, coalesced)
	}
}

func TestRunExclusiveLoserCoalesces(t *testing.T) {
	m := NewManager(NewMemoryStore(), zerolog.Nop())

	if _, _, err := m.RunExclusive(context.Background(), "k1", "job-a", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	jobID, coalesced, err := m.RunExclusive(context.Background(), "k1", "job-b", func(context.Context) error {
		t.Fatal("loser must not start a second generation")
		return nil
	})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !coalesced || jobID != "job-a" {
		t.Fatalf("loser should receive incumbent id: id=%s coalesced=%v", jobID, coalesced)
	}
}

func TestRunExclusiveConcurrentCallersOneWinner(t *testing.T) {
	m := NewManager(NewMemoryStore(), zerolog.Nop())

	const callers = 16
	var starts atomic.Int32
	ids := make([]string, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jobID := "job-" + string(rune('a'+i))
			got, _, err := m.RunExclusive(context.Background(), "shared", jobID, func(context.Context) error {
				starts.Add(1)
				return nil
			})
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			ids[i] = got
		}(i)
	}
	wg.Wait()

	if got := starts.Load(); got != 1 {
		t.Fatalf("expected exactly one start, got %d", got)
	}
	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got different job id: %s vs %s", i, ids[i], ids[0])
		}
	}
}

func TestRunExclusiveFailedStartReleasesKey(t *testing.T) {
	m := NewManager(NewMemoryStore(), zerolog.Nop())

	boom := errors.New("admission rejected")
	if _, _, err := m.RunExclusive(context.Background(), "k1", "job-a", func(context.Context) error {
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}

	// The failed submission must not poison the key for the next caller.
	jobID, coalesced, err := m.RunExclusive(context.Background(), "k1", "job-b", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("follow-up submit: %v", err)
	}
	if coalesced || jobID != "job-b" {
		t.Fatalf("key still held after failed start: id=%s coalesced=%v", jobID, coalesced)
	}
}

func TestReleaseClearsMarker(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, zerolog.Nop())

	if _, _, err := m.RunExclusive(context.Background(), "k1", "job-a", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	m.Release(context.Background(), "k1", "job-a")

	jobID, coalesced, err := m.RunExclusive(context.Background(), "k1", "job-b", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if coalesced || jobID != "job-b" {
		t.Fatalf("marker survived release: id=%s coalesced=%v", jobID, coalesced)
	}
}

func TestReleaseLeavesNewerRegistration(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, zerolog.Nop())

	if ok, err := store.SetNX(context.Background(), "k1", "job-b", markerTTL); err != nil || !ok {
		t.Fatalf("seed marker: ok=%v err=%v", ok, err)
	}

	// job-a's marker is long gone; its release must not evict job-b.
	m.Release(context.Background(), "k1", "job-a")

	value, found, err := store.Get(context.Background(), "k1")
	if err != nil || !found || value != "job-b" {
		t.Fatalf("newer registration evicted: value=%q found=%v err=%v", value, found, err)
	}
}
