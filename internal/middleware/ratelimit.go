package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"fanlive/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens to a request when Redis cannot be reached.
type FailPolicy int

const (
	FailOpen FailPolicy = iota
	FailClosed
)

var errNoStore = errors.New("rate limit store unavailable")

// RateLimiter counts requests per caller in fixed Redis windows.
type RateLimiter struct {
	rdb     *redis.Client
	enabled bool
	policy  FailPolicy
}

// NewRateLimiter returns a limiter backed by rdb. A disabled limiter
// lets every request through.
func NewRateLimiter(rdb *redis.Client, enabled bool, policy FailPolicy) *RateLimiter {
	return &RateLimiter{rdb: rdb, enabled: enabled, policy: policy}
}

// Allow counts one hit against resource/id and reports whether it fits in
// limit. retryAfter is the time left in the window when it does not.
func (l *RateLimiter) Allow(ctx context.Context, resource, id string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error) {
	if !l.enabled {
		return true, 0, nil
	}
	if l.rdb == nil {
		return false, 0, errNoStore
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	if incr.Val() <= int64(limit) {
		return true, 0, nil
	}
	retryAfter = ttl.Val()
	if retryAfter <= 0 {
		retryAfter = window
	}
	return false, retryAfter, nil
}

// Handler enforces limit requests per window for the named resource. It keys
// by the authenticated user when present, otherwise by remote IP.
func (l *RateLimiter) Handler(name string, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := "ip:" + c.IP()
		if uid := c.Locals("userID"); uid != nil {
			id = fmt.Sprintf("user:%v", uid)
		}

		allowed, retryAfter, err := l.Allow(c.UserContext(), name, id, limit, window)
		if err != nil {
			if l.policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit fail-closed",
					"path", c.Path(), "resource", name, "error", err.Error())
				return models.RespondWithError(c, fiber.StatusServiceUnavailable,
					models.NewConfigUnavailableError("Rate limiting is unavailable"))
			}
			return c.Next()
		}
		if !allowed {
			secs := int((retryAfter + time.Second - 1) / time.Second)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				models.NewLimitExceededError("Too many requests"))
		}
		return c.Next()
	}
}
