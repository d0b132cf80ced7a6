package store

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisUsage accumulates winning-attempt token usage per user. Counters
// are shared across concurrent chat requests; Redis serialises the
// increments.
type RedisUsage struct {
	client *redis.Client
}

func NewRedisUsage(client *redis.Client) *RedisUsage {
	return &RedisUsage{client: client}
}

func (r *RedisUsage) Record(ctx context.Context, user string, tokens int) error {
	return r.client.IncrBy(ctx, "usage:"+user, int64(tokens)).Err()
}

func (r *RedisUsage) Total(ctx context.Context, user string) (int, error) {
	val, err := r.client.Get(ctx, "usage:"+user).Result()
	if err == redis.Nil {
		return 0, nil // no usage yet
	}
	if err != nil {
		return 0, err
	}
	usage, _ := strconv.Atoi(val)
	return usage, nil
}
