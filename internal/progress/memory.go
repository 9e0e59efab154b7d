package progress

import (
	"context"
	"sync"
	"time"
)

type snapshot struct {
	event   Event
	expires time.Time
}

// MemoryBus is the in-process bus used by tests and single-node runs.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[string]map[chan Event]bool
	latest map[string]snapshot
	ttl    time.Duration
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs:   make(map[string]map[chan Event]bool),
		latest: make(map[string]snapshot),
		ttl:    snapshotTTL,
	}
}

var _ Bus = (*MemoryBus)(nil)

func (b *MemoryBus) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for jobID, snap := range b.latest {
		if snap.expires.Before(now) {
			delete(b.latest, jobID)
		}
	}
	b.latest[event.JobID] = snapshot{event: event, expires: now.Add(b.ttl)}

	for ch := range b.subs[event.JobID] {
		select {
		case ch <- event:
		default:
			// subscriber not draining, drop
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, jobID string) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[jobID]
	if !ok {
		set = make(map[chan Event]bool)
		b.subs[jobID] = set
	}
	set[ch] = true
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[jobID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(b.subs, jobID)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (b *MemoryBus) Latest(_ context.Context, jobID string) (*Event, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, ok := b.latest[jobID]
	if !ok || snap.expires.Before(time.Now()) {
		return nil, false, nil
	}
	event := snap.event
	return &event, true, nil
}
