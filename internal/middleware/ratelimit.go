package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "socialhub-backend/pkg/errors"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/response"
)

// RateLimiter implements a fixed-window Redis rate limit per principal
// (or per client IP before authentication)
type RateLimiter struct {
	redisClient *redis.Client
	scope       string
	requests    int
	window      time.Duration
}

// NewRateLimiter allows requests per window for each caller within scope
func NewRateLimiter(redisClient *redis.Client, scope string, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		scope:       scope,
		requests:    requests,
		window:      window,
	}
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if p, ok := GetPrincipal(c); ok {
			identifier = p.String()
		}

		count, ttl, err := rl.hit(c.Request.Context(), identifier)
		if err != nil {
			// Fail-open when Redis is unavailable
			logger.Warn("Rate limit check failed", zap.String("scope", rl.scope), zap.Error(err))
			c.Next()
			return
		}

		remaining := rl.requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

		if int(count) > rl.requests {
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())+1))
			response.Error(c, http.StatusTooManyRequests, apperrors.ErrCodeRateLimited, "Rate limit exceeded")
			return
		}

		c.Next()
	}
}

// hit counts one request and returns the window count and time left in the window
func (rl *RateLimiter) hit(ctx context.Context, identifier string) (int64, time.Duration, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", rl.scope, identifier)

	pipe := rl.redisClient.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, rl.window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	left := ttl.Val()
	if left < 0 {
		left = rl.window
	}
	return incr.Val(), left, nil
}
