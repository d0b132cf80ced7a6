package store

import (
	"context"
	"encoding/json"
	"time"

	"raggate/internal/domain/entity"

	"github.com/redis/go-redis/v9"
)

// RedisCache holds first-phase (non-streaming, tool-detection)
// completions keyed by exact request hash. Streamed answers never pass
// through here.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) (*entity.Completion, error) {
	val, err := r.client.Get(ctx, "detect:"+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var resp entity.Completion
	if err := json.Unmarshal(val, &resp); err != nil {
		// Stale or corrupt entry; treat as a miss.
		return nil, nil
	}
	return &resp, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, resp *entity.Completion, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, "detect:"+key, data, ttl).Err()
}
