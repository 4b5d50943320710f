package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestDistributedRateLimiterEnforcesLimit(t *testing.T) {
	_, client := setupRedis(t)
	rl := NewDistributedRateLimiter(client, RateLimitConfig{UserLimit: 100, AnonymousLimit: 3}, testLogger())
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, anonymousRequest("10.0.0.1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, anonymousRequest("10.0.0.1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("fourth request should be limited, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, anonymousRequest("10.0.0.2"))
	if rec.Code != http.StatusOK {
		t.Errorf("other client should not be limited, got %d", rec.Code)
	}
}

func TestDistributedRateLimiterWindowExpiry(t *testing.T) {
	mr, client := setupRedis(t)
	rl := NewDistributedRateLimiter(client, RateLimitConfig{UserLimit: 100, AnonymousLimit: 1}, testLogger())
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, anonymousRequest("10.0.0.1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, anonymousRequest("10.0.0.1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", rec.Code)
	}

	mr.FastForward(rl.window)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, anonymousRequest("10.0.0.1"))
	if rec.Code != http.StatusOK {
		t.Errorf("counter should reset after the window, got %d", rec.Code)
	}
}

func TestDistributedRateLimiterFailsOpen(t *testing.T) {
	mr, client := setupRedis(t)
	rl := NewDistributedRateLimiter(client, RateLimitConfig{UserLimit: 100, AnonymousLimit: 1}, testLogger())
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	mr.Close()

	// Redis down: requests pass through rather than erroring.
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, anonymousRequest("10.0.0.1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d should fail open, got %d", i+1, rec.Code)
		}
	}
}
