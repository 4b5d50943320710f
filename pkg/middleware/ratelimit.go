package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shiftdeck/shiftdeck/pkg/httputil"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
)

// RateLimitConfig sets per-minute request budgets. Authenticated requests
// are keyed by user ID, anonymous ones by client IP.
type RateLimitConfig struct {
	UserLimit      int
	AnonymousLimit int
	// MaxBuckets bounds the number of tracked clients; least recently
	// seen clients are evicted and start a fresh window.
	MaxBuckets int
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		UserLimit:      300,
		AnonymousLimit: 60,
		MaxBuckets:     10000,
	}
}

type bucket struct {
	mu        sync.Mutex
	tokens    float64
	lastSeen  time.Time
	limit     int
	refillPer time.Duration
}

func (b *bucket) take(now time.Time) (allowed bool, remaining int, reset time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastSeen)
	b.tokens += elapsed.Seconds() * float64(b.limit) / b.refillPer.Seconds()
	if b.tokens > float64(b.limit) {
		b.tokens = float64(b.limit)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		deficit := 1 - b.tokens
		wait := time.Duration(deficit * float64(b.refillPer) / float64(b.limit))
		return false, 0, now.Add(wait)
	}
	b.tokens--
	return true, int(b.tokens), now.Add(b.refillPer)
}

// RateLimiter is an in-process token bucket limiter. The bucket map is an
// LRU so memory stays bounded no matter how many distinct clients appear.
type RateLimiter struct {
	config  RateLimitConfig
	buckets *lru.Cache[string, *bucket]
	now     func() time.Time
}

// NewRateLimiter creates an in-memory rate limiter
func NewRateLimiter(config RateLimitConfig) (*RateLimiter, error) {
	if config.MaxBuckets <= 0 {
		config.MaxBuckets = DefaultRateLimitConfig().MaxBuckets
	}
	buckets, err := lru.New[string, *bucket](config.MaxBuckets)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket cache: %w", err)
	}
	return &RateLimiter{
		config:  config,
		buckets: buckets,
		now:     time.Now,
	}, nil
}

// Handler wraps next with rate limiting
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, limit := rl.clientKey(r)

		b, ok := rl.buckets.Get(key)
		if !ok {
			b = &bucket{
				tokens:    float64(limit),
				lastSeen:  rl.now(),
				limit:     limit,
				refillPer: time.Minute,
			}
			rl.buckets.Add(key, b)
		}

		allowed, remaining, reset := b.take(rl.now())
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))

		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(reset).Seconds())+1))
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) clientKey(r *http.Request) (string, int) {
	if actor, ok := identity.ActorFromContext(r.Context()); ok {
		return fmt.Sprintf("user:%d", actor.ID), rl.config.UserLimit
	}
	return "ip:" + clientIP(r), rl.config.AnonymousLimit
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
