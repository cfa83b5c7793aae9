package redis

import (
	"context"
	"fmt"
	"time"

	"social-export/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// RateLimitKey is the counter key for subject within scope.
func RateLimitKey(scope, subject string) string {
	return fmt.Sprintf("rate_limit:%s:%s", scope, subject)
}

// RateLimiter keeps one fixed-window counter per key. The window starts at the
// first hit; later hits inside it do not extend it.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow records a hit and reports whether it fits in the window. limit <= 0 never refuses.
func (r *RateLimiter) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	key := RateLimitKey(scope, subject)
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window); err != nil {
			// a counter without a TTL would refuse the subject forever
			_ = r.client.Del(ctx, key)
			return false, fmt.Errorf("rate limit window %s: %w", key, err)
		}
	}
	return count <= int64(limit), nil
}
