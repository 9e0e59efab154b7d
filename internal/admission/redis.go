package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "sprites:active:"

// RedisCounter implements Counter on Redis INCR/DECR.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

var _ Counter = (*RedisCounter)(nil)

func (c *RedisCounter) Incr(ctx context.Context, userID string) (int64, error) {
	n, err := c.client.Incr(ctx, redisKeyPrefix+userID).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", userID, err)
	}
	return n, nil
}

func (c *RedisCounter) Decr(ctx context.Context, userID string) (int64, error) {
	n, err := c.client.Decr(ctx, redisKeyPrefix+userID).Result()
	if err != nil {
		return 0, fmt.Errorf("redis decr %s: %w", userID, err)
	}
	if n < 0 {
		// A lost decrement paired with this one drove the count below
		// zero. Restore the floor; the counter must never stay negative.
		if err := c.client.Incr(ctx, redisKeyPrefix+userID).Err(); err != nil {
			return 0, fmt.Errorf("redis restore floor %s: %w", userID, err)
		}
		return 0, nil
	}
	return n, nil
}

func (c *RedisCounter) Current(ctx context.Context, userID string) (int64, error) {
	n, err := c.client.Get(ctx, redisKeyPrefix+userID).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get %s: %w", userID, err)
	}
	return n, nil
}
