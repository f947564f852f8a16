package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy is one fixed-window budget. Prefix namespaces its Redis keys.
type Policy struct {
	Prefix      string
	MaxAttempts int
	Window      time.Duration
}

// Enabled reports whether the policy limits anything.
func (p Policy) Enabled() bool {
	return p.MaxAttempts > 0 && p.Window > 0
}

// Limiter enforces fixed-window budgets using Redis counters. Each call
// takes one or more subjects (an email, an IP, a user id); every non-empty
// subject gets its own counter.
type Limiter struct {
	redis redis.UniversalClient
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient}
}

// Check returns ErrRateLimited when any subject has already used up its
// budget. It does not consume an attempt.
func (l *Limiter) Check(ctx context.Context, p Policy, subjects ...string) error {
	if l == nil || !p.Enabled() {
		return nil
	}

	for _, subject := range subjects {
		if subject == "" {
			continue
		}
		count, err := l.redis.Get(ctx, p.key(subject)).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count >= int64(p.MaxAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// Hit consumes one attempt for every subject and returns ErrRateLimited when
// any counter went over budget.
func (l *Limiter) Hit(ctx context.Context, p Policy, subjects ...string) error {
	if l == nil || !p.Enabled() {
		return nil
	}

	limited := false
	for _, subject := range subjects {
		if subject == "" {
			continue
		}
		count, err := l.incrementWithTTL(ctx, p.key(subject), p.Window)
		if err != nil {
			return err
		}
		if count > int64(p.MaxAttempts) {
			limited = true
		}
	}

	if limited {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counters for subjects, typically after a success.
func (l *Limiter) Reset(ctx context.Context, p Policy, subjects ...string) error {
	if l == nil || !p.Enabled() {
		return nil
	}

	keys := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		if subject != "" {
			keys = append(keys, p.key(subject))
		}
	}
	if len(keys) == 0 {
		return nil
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (p Policy) key(subject string) string {
	return p.Prefix + ":" + strings.ToLower(strings.TrimSpace(subject))
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
