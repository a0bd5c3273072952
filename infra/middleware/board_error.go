package middleware

import (
	"errors"
	"time"

	"mailboard_server/pkg/apperr"
	"mailboard_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// errorResponse mirrors the handler-level envelope so errors escaping
// to the fiber error handler look the same to clients.
type errorResponse struct {
	Success   bool        `json:"success"`
	Error     errorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type errorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler is the centralized fiber error handler.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID, _ := c.Locals("request_id").(string)
		response := errorResponse{
			RequestID: requestID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		var status int
		var appErr *apperr.AppError
		var fiberErr *fiber.Error

		switch {
		case errors.As(err, &appErr):
			status = appErr.Status
			response.Error = errorDetail{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			}
		case errors.As(err, &fiberErr):
			status = fiberErr.Code
			response.Error = errorDetail{
				Code:    codeForStatus(status),
				Message: fiberErr.Message,
			}
		default:
			status = fiber.StatusInternalServerError
			response.Error = errorDetail{
				Code:    apperr.CodeInternalError,
				Message: "internal server error",
			}
		}

		if status >= 500 {
			logger.WithError(err).WithFields(map[string]any{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestID,
			}).Error("Unhandled request error")
		}

		return c.Status(status).JSON(response)
	}
}

// RequestID assigns each request a uuid, reusing one the client sent.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals("request_id", requestID)
		c.Set("X-Request-ID", requestID)
		return c.Next()
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return apperr.CodeBadRequest
	case fiber.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case fiber.StatusForbidden:
		return apperr.CodeForbidden
	case fiber.StatusNotFound:
		return apperr.CodeNotFound
	case fiber.StatusConflict:
		return apperr.CodeConflict
	case fiber.StatusTooManyRequests:
		return apperr.CodeRateLimited
	default:
		return apperr.CodeInternalError
	}
}
