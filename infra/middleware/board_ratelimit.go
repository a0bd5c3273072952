package middleware

import (
	"fmt"
	"strconv"
	"time"

	"mailboard_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window limiter backed by Redis so limits hold
// across replicas. Keys are per user when authenticated, per IP
// otherwise.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 300
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
	}
}

// Handler returns the fiber middleware.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.redis == nil {
			return c.Next()
		}

		key := "ratelimit:" + rl.clientKey(c) + ":" +
			strconv.FormatInt(time.Now().Unix()/int64(rl.window.Seconds()), 10)

		pipe := rl.redis.TxPipeline()
		incr := pipe.Incr(c.Context(), key)
		pipe.Expire(c.Context(), key, rl.window)
		if _, err := pipe.Exec(c.Context()); err != nil {
			// Redis being down must not take the API with it.
			logger.WithError(err).Debug("Rate limiter unavailable")
			return c.Next()
		}

		count := incr.Val()
		remaining := int64(rl.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(rl.limit) {
			c.Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
				"code":  "RATE_LIMITED",
			})
		}
		return c.Next()
	}
}

func (rl *RateLimiter) clientKey(c *fiber.Ctx) string {
	if userID, ok := c.Locals("user_id").(int64); ok && userID > 0 {
		return fmt.Sprintf("user:%d", userID)
	}
	return "ip:" + c.IP()
}
