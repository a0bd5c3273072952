package middleware

import (
	"fmt"
	"runtime/debug"
	"time"

	"mailboard_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// Recover converts panics into 500 responses with a stack trace in
// the log.
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]any{
					"panic": fmt.Sprintf("%v", r),
					"path":  c.Path(),
					"stack": string(debug.Stack()),
				}).Error("Panic recovered")
				err = fiber.ErrInternalServerError
			}
		}()
		return c.Next()
	}
}

// RequestLogger logs each request with its outcome and latency.
// Health probes are skipped to keep the log readable.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/health" || path == "/ready" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		fields := map[string]any{
			"method": c.Method(),
			"path":   path,
			"status": c.Response().StatusCode(),
		}
		if requestID, ok := c.Locals("request_id").(string); ok {
			fields["request_id"] = requestID
		}

		log := logger.WithFields(fields).WithDuration(time.Since(start))
		if c.Response().StatusCode() >= 500 {
			log.Error("Request failed")
		} else {
			log.Info("Request handled")
		}
		return err
	}
}
