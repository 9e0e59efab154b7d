package admission

import (
	"context"
	"sync"
)

// MemoryCounter is the in-process Counter used by tests and local runs.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

var _ Counter = (*MemoryCounter)(nil)

func (c *MemoryCounter) Incr(ctx context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts[userID]++
	return c.counts[userID], nil
}

func (c *MemoryCounter) Decr(ctx context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counts[userID] > 0 {
		c.counts[userID]--
	}
	return c.counts[userID], nil
}

func (c *MemoryCounter) Current(ctx context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counts[userID], nil
}
