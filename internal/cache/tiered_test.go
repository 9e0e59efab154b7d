package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
)

type stubBackup struct {
	mu       sync.Mutex
	entries  map[string]*domain.CacheEntry
	touches  int
	persists int
	fetchErr error
}

func newStubBackup() *stubBackup {
	return &stubBackup{entries: make(map[string]*domain.CacheEntry)}
}

func (s *stubBackup) Persist(_ context.Context, entry *domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *entry
	s.entries[entry.CacheKey] = &copied
	s.persists++
	return nil
}

func (s *stubBackup) Fetch(_ context.Context, key string) (*domain.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, fmt.Errorf("cache entry %s: %w", key, domain.ErrNotFound)
	}
	copied := *entry
	return &copied, nil
}

func (s *stubBackup) Touch(_ context.Context, key string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches++
	return nil
}

func (s *stubBackup) stats() (persists, touches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persists, s.touches
}

type failingPrimary struct{}

func (failingPrimary) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("primary down")
}
func (failingPrimary) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("primary down")
}
func (failingPrimary) Delete(context.Context, string) error {
	return errors.New("primary down")
}

func testPrompt() domain.StructuredPrompt {
	return domain.StructuredPrompt{Type: "creature", Description: "a moth", Size: domain.SpriteSize{Width: 32, Height: 32}}
}

func testResult() *domain.GenerationResult {
	return &domain.GenerationResult{Provider: "synthetic", Frames: []domain.SpriteFrame{{Width: 32, Height: 32}}}
}

func TestTieredPutThenGet(t *testing.T) {
	backup := newStubBackup()
	c := NewTiered(NewMemoryPrimary(), backup, time.Hour, zerolog.Nop())

	if _, err := c.Put(context.Background(), "k1", "u1", testPrompt(), testResult()); err != nil {
		t.Fatalf("put: %v", err)
	}

	entry, ok, err := c.Get(context.Background(), "k1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if entry.Result == nil || entry.Result.Provider != "synthetic" {
		t.Fatalf("cached result malformed: %+v", entry.Result)
	}

	c.Close()
	persists, _ := backup.stats()
	if persists != 1 {
		t.Fatalf("expected 1 backup mirror, got %d", persists)
	}
}

func TestTieredMissIsNotError(t *testing.T) {
	c := NewTiered(NewMemoryPrimary(), newStubBackup(), time.Hour, zerolog.Nop())

	entry, ok, err := c.Get(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("miss must not be an error: %v", err)
	}
	if ok || entry != nil {
		t.Fatalf("expected miss, got %+v", entry)
	}
}

func TestTieredBackupFallthroughRepopulatesPrimary(t *testing.T) {
	backup := newStubBackup()
	now := time.Now()
	backup.entries["k1"] = &domain.CacheEntry{
		CacheKey:       "k1",
		UserID:         "u1",
		Prompt:         testPrompt(),
		Result:         testResult(),
		CreatedAt:      now.Add(-time.Hour),
		ExpiresAt:      now.Add(time.Hour),
		LastAccessedAt: now.Add(-time.Hour),
	}

	primary := NewMemoryPrimary()
	c := NewTiered(primary, backup, time.Hour, zerolog.Nop())

	_, ok, err := c.Get(context.Background(), "k1")
	if err != nil || !ok {
		t.Fatalf("expected backup hit, got ok=%v err=%v", ok, err)
	}
	c.Close()

	// The entry must now be answerable from the primary alone.
	backup.mu.Lock()
	backup.fetchErr = errors.New("backup down")
	backup.mu.Unlock()

	_, ok, err = c.Get(context.Background(), "k1")
	if err != nil || !ok {
		t.Fatalf("primary not repopulated: ok=%v err=%v", ok, err)
	}
	c.Close()
}

func TestTieredExpiredEntryIsMiss(t *testing.T) {
	backup := newStubBackup()
	now := time.Now()
	backup.entries["stale"] = &domain.CacheEntry{
		CacheKey:  "stale",
		Result:    testResult(),
		CreatedAt: now.Add(-48 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}

	c := NewTiered(NewMemoryPrimary(), backup, time.Hour, zerolog.Nop())

	_, ok, err := c.Get(context.Background(), "stale")
	if err != nil {
		t.Fatalf("expired read errored: %v", err)
	}
	if ok {
		t.Fatal("entry past expiresAt must read as a miss")
	}
}

func TestTieredExpiredPrimaryEntryIsMiss(t *testing.T) {
	primary := NewMemoryPrimary()
	now := time.Now()
	stale := &domain.CacheEntry{
		CacheKey:  "stale",
		Result:    testResult(),
		CreatedAt: now.Add(-48 * time.Hour),
		ExpiresAt: now.Add(-time.Minute),
	}
	raw, _ := json.Marshal(stale)
	if err := primary.Set(context.Background(), "stale", raw, time.Hour); err != nil {
		t.Fatalf("seed primary: %v", err)
	}

	c := NewTiered(primary, newStubBackup(), time.Hour, zerolog.Nop())

	_, ok, err := c.Get(context.Background(), "stale")
	if err != nil || ok {
		t.Fatalf("physically present but logically expired entry must miss: ok=%v err=%v", ok, err)
	}
	c.Close()
}

func TestTieredHitBookkeepingReachesBackup(t *testing.T) {
	backup := newStubBackup()
	c := NewTiered(NewMemoryPrimary(), backup, time.Hour, zerolog.Nop())

	if _, err := c.Put(context.Background(), "k1", "u1", testPrompt(), testResult()); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := c.Get(context.Background(), "k1"); !ok {
		t.Fatal("expected hit")
	}
	c.Close()

	_, touches := backup.stats()
	if touches == 0 {
		t.Fatal("hit did not touch the backup")
	}
}

func TestTieredPrimaryOutageDegradesToBackup(t *testing.T) {
	backup := newStubBackup()
	now := time.Now()
	backup.entries["k1"] = &domain.CacheEntry{
		CacheKey:  "k1",
		Result:    testResult(),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}

	c := NewTiered(failingPrimary{}, backup, time.Hour, zerolog.Nop())

	_, ok, err := c.Get(context.Background(), "k1")
	if err != nil || !ok {
		t.Fatalf("backup should answer when primary is down: ok=%v err=%v", ok, err)
	}
	c.Close()
}
