// Package http contains the fiber HTTP handlers for the /v1 API.
package http

import (
	"errors"
	"strconv"
	"time"

	"mailboard_server/pkg/apperr"
	"mailboard_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

var ErrUnauthorized = errors.New("unauthorized")

// GetUserID extracts the authenticated user id set by the JWT
// middleware.
func GetUserID(c *fiber.Ctx) (int64, error) {
	val := c.Locals("user_id")
	if val == nil {
		return 0, ErrUnauthorized
	}
	userID, ok := val.(int64)
	if !ok || userID <= 0 {
		return 0, ErrUnauthorized
	}
	return userID, nil
}

// ParamID parses a path parameter as an int64 id.
func ParamID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequest("invalid " + name)
	}
	return id, nil
}

// APIResponse is the standard envelope for every /v1 response.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// APIError is the error half of the envelope.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse sends a standard success envelope.
func SuccessResponse(c *fiber.Ctx, data any) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.JSON(APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// CreatedResponse sends a 201 success envelope.
func CreatedResponse(c *fiber.Ctx, data any) error {
	c.Status(fiber.StatusCreated)
	return SuccessResponse(c, data)
}

// AppErrorResponse maps any error onto the envelope via apperr.
func AppErrorResponse(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrUnauthorized) {
		return ErrorResponse(c, fiber.StatusUnauthorized, "unauthorized")
	}

	appErr := apperr.AsAppError(err)
	if appErr.Status >= 500 {
		logger.WithError(err).WithField("path", c.Path()).Error("Request failed")
	}

	requestID, _ := c.Locals("request_id").(string)
	return c.Status(appErr.Status).JSON(APIResponse{
		Success:   false,
		Error:     &APIError{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details},
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ErrorResponse sends a plain error envelope for a status code.
func ErrorResponse(c *fiber.Ctx, status int, message string) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.Status(status).JSON(APIResponse{
		Success:   false,
		Error:     &APIError{Code: codeForStatus(status), Message: message},
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
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

// ListResponse is a paginated list payload.
type ListResponse struct {
	Items   interface{} `json:"items"`
	Total   int         `json:"total"`
	HasMore bool        `json:"has_more"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
}

// NewListResponse builds a list payload with has_more computed.
func NewListResponse(items interface{}, total, offset, limit int) ListResponse {
	return ListResponse{
		Items:   items,
		Total:   total,
		HasMore: offset+limit < total,
		Limit:   limit,
		Offset:  offset,
	}
}

// GetLimitOffset reads limit/offset query params with bounds.
func GetLimitOffset(c *fiber.Ctx, defaultLimit int) (int, int) {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > 100 {
		limit = 100
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// QueryBool parses a boolean query parameter, nil when absent.
func QueryBool(c *fiber.Ctx, key string) *bool {
	val := c.Query(key)
	if val == "" {
		return nil
	}
	b := val == "true" || val == "1"
	return &b
}

// QueryFloat parses a float query parameter, nil when absent or
// unparseable.
func QueryFloat(c *fiber.Ctx, key string) *float64 {
	val := c.Query(key)
	if val == "" {
		return nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return nil
	}
	return &f
}

// QueryInt64 parses an int64 query parameter, nil when absent or zero.
func QueryInt64(c *fiber.Ctx, key string) *int64 {
	val := c.QueryInt(key, 0)
	if val == 0 {
		return nil
	}
	v := int64(val)
	return &v
}
