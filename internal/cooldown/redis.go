package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "modmail:cooldown:"

// RedisLimiter shares cooldown windows between bot replicas. A window is a
// key set with NX and a PX expiry equal to the window.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, keyPrefix+key, 1, l.window).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown setnx: %w", err)
	}
	return ok, nil
}
