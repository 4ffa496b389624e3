package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter shared across processes. Each
// identity gets one counter key per window bucket; the key expires shortly
// after the window so Redis cleans up after itself.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter creates a Redis-backed fixed-window limiter.
func NewRedisLimiter(client *redis.Client, prefix string, cfg Config) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  cfg.Limit,
		window: cfg.Window,
		now:    time.Now,
	}
}

// Consume charges cost against the identity's current window bucket.
func (l *RedisLimiter) Consume(ctx context.Context, identity string, cost int64) (Result, error) {
	now := l.now()
	bucket := now.Truncate(l.window)
	resetAt := bucket.Add(l.window)
	key := fmt.Sprintf("%s:%s:%d", l.prefix, identity, bucket.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, cost)
	pipe.ExpireNX(ctx, key, l.window+time.Second)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to consume rate limit budget: %w", err)
	}

	used := incr.Val()

	if used > l.limit {
		// Refund so a rejected call does not eat into the budget.
		if err := l.client.DecrBy(ctx, key, cost).Err(); err != nil {
			return Result{}, fmt.Errorf("failed to refund rate limit budget: %w", err)
		}

		return Result{
			Allowed:   false,
			Remaining: max(l.limit-(used-cost), 0),
			ResetAt:   resetAt,
		}, nil
	}

	return Result{
		Allowed:   true,
		Remaining: l.limit - used,
		ResetAt:   resetAt,
	}, nil
}
