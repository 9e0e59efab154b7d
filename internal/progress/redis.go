package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
)

// redisKeyPrefix names both the pub/sub channel and the snapshot key for
// a job. Channels and keys live in separate Redis namespaces.
const redisKeyPrefix = "sprites:progress:"

// RedisBus carries progress across processes: the worker publishes, API
// instances subscribe. Every publish also writes the snapshot key so
// Latest works from any instance.
type RedisBus struct {
	client *redis.Client
	logger infra.Logger
}

func NewRedisBus(client *redis.Client, logger infra.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

var _ Bus = (*RedisBus)(nil)

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("progress: encode event: %w", err)
	}
	key := redisKeyPrefix + event.JobID
	if err := b.client.Set(ctx, key, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("progress: store snapshot %s: %w", event.JobID, err)
	}
	if err := b.client.Publish(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("progress: publish %s: %w", event.JobID, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, jobID string) (<-chan Event, func(), error) {
	sub := b.client.Subscribe(ctx, redisKeyPrefix+jobID)
	out := make(chan Event, subscriberBuffer)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn().Err(err).Str("job_id", jobID).Msg("progress: dropping undecodable event")
				continue
			}
			select {
			case out <- event:
			default:
				// subscriber not draining, drop
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

func (b *RedisBus) Latest(ctx context.Context, jobID string) (*Event, bool, error) {
	raw, err := b.client.Get(ctx, redisKeyPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("progress: load snapshot %s: %w", jobID, err)
	}
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, false, fmt.Errorf("progress: decode snapshot %s: %w", jobID, err)
	}
	return &event, true, nil
}
