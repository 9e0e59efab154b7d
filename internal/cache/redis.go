package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// redisKeyPrefix namespaces cache entries away from the counter, dedup
// and progress keys sharing the same Redis instance.
const redisKeyPrefix = "sprites:cache:"

// RedisPrimary implements Primary on a Redis client.
type RedisPrimary struct {
	client *redis.Client
}

func NewRedisPrimary(client *redis.Client) *RedisPrimary {
	return &RedisPrimary{client: client}
}

var _ Primary = (*RedisPrimary)(nil)

func (r *RedisPrimary) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return raw, true, nil
}

func (r *RedisPrimary) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisPrimary) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
