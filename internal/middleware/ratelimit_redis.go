package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter shared by every replica.
// Each key may make capacity requests per window.
type RedisLimiter struct {
	client   *redis.Client
	capacity int64
	window   time.Duration
	prefix   string
	now      func() time.Time
}

// NewRedisLimiter sizes the window so the long-run rate matches refillPerSecond.
func NewRedisLimiter(client *redis.Client, capacity, refillPerSecond int) *RedisLimiter {
	window := time.Second
	if refillPerSecond > 0 && capacity > refillPerSecond {
		window = time.Duration(capacity/refillPerSecond) * time.Second
	}
	return &RedisLimiter{
		client:   client,
		capacity: int64(capacity),
		window:   window,
		prefix:   "cowhealth:ratelimit:",
		now:      time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := l.now().UnixNano() / int64(l.window)
	k := fmt.Sprintf("%s%s:%d", l.prefix, key, slot)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= l.capacity, nil
}
