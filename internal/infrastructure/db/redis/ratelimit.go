package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window request counter.
// Key format: ratelimit:<scope>:<subject>:<window_start_unix>
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{client: client, limit: int64(limit), window: window, now: time.Now}
}

// Allow counts one hit for subject in scope and reports whether it is within
// the limit, plus how long until the current window resets.
func (l *RateLimiter) Allow(ctx context.Context, scope, subject string) (bool, time.Duration, error) {
	now := l.now()
	start := now.Truncate(l.window)
	key := l.key(scope, subject, start)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("rate limit: %w", err)
	}

	retryAfter := start.Add(l.window).Sub(now)
	return incr.Val() <= l.limit, retryAfter, nil
}

func (l *RateLimiter) key(scope, subject string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, subject, windowStart.Unix())
}
