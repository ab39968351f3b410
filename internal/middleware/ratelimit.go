package middleware

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"helpboard/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

// CheckRateLimit checks if a resource has exceeded its rate limit.
// Returns true if allowed, false if limit exceeded.
// Rate limiting is disabled when APP_ENV is "test" or "development".
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	switch rateLimitEnv() {
	case "test", "development":
		return true, nil
	}
	return countRequest(ctx, rdb, resource, id, limit, window)
}

func rateLimitEnv() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	return env
}

func countRequest(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	if rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	// INCR and set EXPIRE if new
	cnt, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		rdb.Expire(ctx, key, window)
	}
	return cnt <= int64(limit), nil
}

// SendLimiter throttles chat sends per user. It is handed to the websocket gateway.
type SendLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	// enforce skips the environment bypass; tests flip it on.
	enforce bool
}

// NewSendLimiter builds a per-user limiter allowing limit sends per window.
func NewSendLimiter(rdb *redis.Client, limit int, window time.Duration) *SendLimiter {
	return &SendLimiter{rdb: rdb, limit: limit, window: window}
}

// Allow consumes one send for userID. Redis failures fail open.
func (l *SendLimiter) Allow(ctx context.Context, userID uint) error {
	if l == nil || l.rdb == nil {
		return nil
	}
	id := fmt.Sprintf("user:%d", userID)
	var (
		allowed bool
		err     error
	)
	if l.enforce {
		allowed, err = countRequest(ctx, l.rdb, "chat_send", id, l.limit, l.window)
	} else {
		allowed, err = CheckRateLimit(ctx, l.rdb, "chat_send", id, l.limit, l.window)
	}
	if err != nil {
		log.Printf("WARNING: chat send rate limit unavailable for %s: %v", id, err)
		return nil
	}
	if !allowed {
		return models.ErrRateLimited
	}
	return nil
}

// RateLimit returns a Fiber middleware enforcing `limit` requests per `window`.
// It keys by authenticated userID (if set in c.Locals("userID")) otherwise by remote IP.
// It defaults to FailOpen policy.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, window, FailOpen, name...)
}

// RateLimitWithPolicy returns a Fiber middleware enforcing `limit` requests per `window` with a specific failure policy.
func RateLimitWithPolicy(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id string
		if uid := c.Locals("userID"); uid != nil {
			id = fmt.Sprintf("user:%v", uid)
		} else {
			id = fmt.Sprintf("ip:%s", c.IP())
		}

		resource := c.Path()
		if len(name) > 0 {
			resource = name[0]
		}

		allowed, err := CheckRateLimit(c.UserContext(), rdb, resource, id, limit, window)
		if err != nil {
			if policy == FailClosed {
				log.Printf("WARNING: Rate limit fail-closed for route %s (resource: %s): %v", c.Path(), resource, err)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			}
			return c.Next()
		}

		if !allowed {
			return models.RespondWithError(c, fiber.StatusTooManyRequests, models.ErrRateLimited)
		}
		return c.Next()
	}
}
