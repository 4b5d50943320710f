package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/shiftdeck/shiftdeck/pkg/httputil"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

// DistributedRateLimiter enforces the same per-minute budgets as
// RateLimiter but shares counters across instances through Redis.
// If Redis is unreachable the limiter fails open.
type DistributedRateLimiter struct {
	client *redis.Client
	config RateLimitConfig
	log    *observability.Logger
	window time.Duration
}

// NewDistributedRateLimiter creates a Redis-backed rate limiter
func NewDistributedRateLimiter(client *redis.Client, config RateLimitConfig, log *observability.Logger) *DistributedRateLimiter {
	return &DistributedRateLimiter{
		client: client,
		config: config,
		log:    log,
		window: time.Minute,
	}
}

// Handler wraps next with distributed rate limiting
func (rl *DistributedRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, limit := rl.clientKey(r)

		count, reset, err := rl.increment(r.Context(), key)
		if err != nil {
			// Availability beats strictness here.
			rl.log.WithError(err).Warn("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		remaining := limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))

		if int(count) > limit {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(reset).Seconds())+1))
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// increment bumps the counter for key in the current window and returns the
// new count and when the window resets
func (rl *DistributedRateLimiter) increment(ctx context.Context, key string) (int64, time.Time, error) {
	redisKey := "ratelimit:" + key

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	ttl, err := rl.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = rl.window
	}
	return incr.Val(), time.Now().Add(ttl), nil
}

func (rl *DistributedRateLimiter) clientKey(r *http.Request) (string, int) {
	if actor, ok := identity.ActorFromContext(r.Context()); ok {
		return fmt.Sprintf("user:%d", actor.ID), rl.config.UserLimit
	}
	return "ip:" + clientIP(r), rl.config.AnonymousLimit
}

// HealthCheck reports whether the Redis backend is reachable
func (rl *DistributedRateLimiter) HealthCheck(ctx context.Context) error {
	if err := rl.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("rate limiter redis unavailable: %w", err)
	}
	return nil
}
