package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used by tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryMarker
}

type memoryMarker struct {
	value     string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryMarker)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if marker, ok := s.entries[key]; ok && !s.expired(marker) {
		return false, nil
	}
	marker := memoryMarker{value: value}
	if ttl > 0 {
		marker.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = marker
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	marker, ok := s.entries[key]
	if !ok || s.expired(marker) {
		return "", false, nil
	}
	return marker.value, true, nil
}

func (s *MemoryStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) expired(marker memoryMarker) bool {
	return !marker.expiresAt.IsZero() && time.Now().After(marker.expiresAt)
}
