package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: redisClient, limit: limit, window: window}
}

// Allow counts one hit against key in a fixed window. Every hit sets the
// expiry if the key has none, so a counter never outlives its window. Redis
// failures let the request through.
func (r *RateLimiter) Allow(ctx context.Context, key string) bool {
	var incr *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, r.window)
		return nil
	})
	if err != nil {
		slog.Warn("rate limiter unavailable", "key", key, "error", err)
		return true
	}
	return incr.Val() <= int64(r.limit)
}

// Limit rate limits a route per authenticated user, or per IP for anonymous requests.
func (r *RateLimiter) Limit(scope string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		id := e.RemoteIP()
		if e.Auth != nil {
			id = e.Auth.Id
		}
		key := fmt.Sprintf("ratelimit:%s:%s", scope, id)
		if !r.Allow(e.Request.Context(), key) {
			return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
		}
		return e.Next()
	}
}

// AntiBot rejects requests from crawler user agents.
func (r *RateLimiter) AntiBot(e *core.RequestEvent) error {
	if r.isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
		return apis.NewForbiddenError("Access denied", nil)
	}
	return e.Next()
}

func (r *RateLimiter) isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
