// Package ratelimit implements a fixed-window request limiter backed by a
// shared Redis counter, so the limit holds across replicas.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/chatbot/apperr"
	"github.com/example/chatbot/config"
	"github.com/example/chatbot/logger"
)

// expiryGrace keeps counters alive slightly past their window so late
// stragglers of the same window still hit the same key.
const expiryGrace = 10 * time.Second

// Limiter counts requests per caller identity in fixed, non-overlapping
// windows.
type Limiter struct {
	rdb redis.Cmdable
	cfg config.RateLimitConfig
	now func() time.Time
}

// New creates a limiter on top of the given Redis client.
func New(rdb redis.Cmdable, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{rdb: rdb, cfg: cfg, now: time.Now}
}

// Check increments the identity's counter for the current window and returns
// a RATE_LIMIT_EXCEEDED error once the post-increment count passes the limit.
// The increment and expiry refresh run as one MULTI/EXEC transaction, so
// concurrent callers on the same key never observe a counter without expiry.
// Counter-store failures are logged and the request is allowed (fail open).
func (l *Limiter) Check(ctx context.Context, identity string) error {
	if !l.cfg.Enabled {
		return nil
	}

	now := l.now().Unix()
	window := int64(l.cfg.WindowSeconds)
	windowIndex := now / window
	key := fmt.Sprintf("%s:%s:%d", l.cfg.KeyPrefix, identity, windowIndex)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, time.Duration(window)*time.Second+expiryGrace)
		return nil
	})
	if err != nil {
		logger.L.Error("rate limit counter unavailable, allowing request", "key", key, "error", err)
		return nil
	}

	count := incr.Val()
	if count > int64(l.cfg.Limit) {
		windowEnd := (windowIndex + 1) * window
		retryAfter := windowEnd - now
		if retryAfter < 1 {
			retryAfter = 1
		}
		logger.L.Info("request throttled", "identity", identity, "count", count, "retry_after", retryAfter)
		return apperr.Throttled(l.cfg.Limit, l.cfg.WindowSeconds, int(retryAfter))
	}
	return nil
}
