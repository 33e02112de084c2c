package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/example/chatbot/apperr"
	"github.com/example/chatbot/config"
)

func newTestLimiter(t *testing.T, cfg config.RateLimitConfig) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, cfg), mr
}

func TestCheckAllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, config.RateLimitConfig{
		Enabled: true, Limit: 3, WindowSeconds: 60, KeyPrefix: "rate_limit",
	})

	// Inclusive boundary: the third request still passes.
	for i := 0; i < 3; i++ {
		if err := limiter.Check(ctx, "key:abc"); err != nil {
			t.Fatalf("request %d unexpectedly throttled: %v", i+1, err)
		}
	}

	err := limiter.Check(ctx, "key:abc")
	if err == nil {
		t.Fatalf("expected 4th request to be throttled")
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.CodeRateLimitExceeded {
		t.Fatalf("unexpected error: %v", err)
	}
	if ae.RetryAfter < 1 || ae.RetryAfter > 60 {
		t.Fatalf("retry-after out of range: %d", ae.RetryAfter)
	}
}

func TestCheckIsolatesIdentities(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, config.RateLimitConfig{
		Enabled: true, Limit: 1, WindowSeconds: 60, KeyPrefix: "rate_limit",
	})

	if err := limiter.Check(ctx, "key:a"); err != nil {
		t.Fatalf("first identity throttled: %v", err)
	}
	if err := limiter.Check(ctx, "key:b"); err != nil {
		t.Fatalf("second identity throttled: %v", err)
	}
	if err := limiter.Check(ctx, "key:a"); err == nil {
		t.Fatalf("expected first identity to be throttled")
	}
}

func TestCheckWindowRollover(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, config.RateLimitConfig{
		Enabled: true, Limit: 1, WindowSeconds: 60, KeyPrefix: "rate_limit",
	})

	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	if err := limiter.Check(ctx, "key:abc"); err != nil {
		t.Fatalf("first request throttled: %v", err)
	}
	if err := limiter.Check(ctx, "key:abc"); err == nil {
		t.Fatalf("expected second request to be throttled")
	}

	// The next window starts with a fresh counter; the first request there
	// always succeeds.
	now = now.Add(60 * time.Second)
	if err := limiter.Check(ctx, "key:abc"); err != nil {
		t.Fatalf("request in new window throttled: %v", err)
	}
}

func TestCheckSetsExpiry(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newTestLimiter(t, config.RateLimitConfig{
		Enabled: true, Limit: 5, WindowSeconds: 60, KeyPrefix: "rate_limit",
	})

	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	if err := limiter.Check(ctx, "key:abc"); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	key := "rate_limit:key:abc:28333333"
	if !mr.Exists(key) {
		t.Fatalf("expected counter key %q to exist", key)
	}
	if ttl := mr.TTL(key); ttl != 70*time.Second {
		t.Fatalf("expected 70s expiry, got %v", ttl)
	}
}

func TestCheckFailsOpenOnStoreOutage(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	limiter := New(rdb, config.RateLimitConfig{
		Enabled: true, Limit: 1, WindowSeconds: 60, KeyPrefix: "rate_limit",
	})

	mr.Close()

	// Counter store down: traffic must not be blocked.
	if err := limiter.Check(ctx, "key:abc"); err != nil {
		t.Fatalf("expected fail-open on store outage, got %v", err)
	}
}

func TestCheckDisabled(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, config.RateLimitConfig{
		Enabled: false, Limit: 1, WindowSeconds: 60, KeyPrefix: "rate_limit",
	})

	for i := 0; i < 10; i++ {
		if err := limiter.Check(ctx, "key:abc"); err != nil {
			t.Fatalf("disabled limiter throttled request: %v", err)
		}
	}
}
