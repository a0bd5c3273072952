package http

import (
	"mailboard_server/core/port/in"
	"mailboard_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// ColumnHandler handles Kanban board layout requests.
type ColumnHandler struct {
	columnSvc in.ColumnService
}

// NewColumnHandler creates a new column handler.
func NewColumnHandler(columnSvc in.ColumnService) *ColumnHandler {
	return &ColumnHandler{columnSvc: columnSvc}
}

// Register registers column routes.
func (h *ColumnHandler) Register(router fiber.Router) {
	router.Get("/mailboxes/:id/columns", h.List)
	router.Post("/mailboxes/:id/columns", h.Create)
	router.Put("/mailboxes/:id/columns/reorder", h.Reorder)

	columns := router.Group("/columns")
	columns.Patch("/:id", h.Rename)
	columns.Delete("/:id", h.Delete)
}

// List returns the board columns in order.
// GET /v1/mailboxes/:id/columns
func (h *ColumnHandler) List(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	mailboxID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	columns, err := h.columnSvc.List(c.Context(), userID, mailboxID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"columns": columns, "total": len(columns)})
}

type columnRequest struct {
	Name string `json:"name"`
}

// Create adds a custom column at the end of the board.
// POST /v1/mailboxes/:id/columns
func (h *ColumnHandler) Create(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	mailboxID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var req columnRequest
	if err := c.BodyParser(&req); err != nil {
		return AppErrorResponse(c, apperr.BadRequest("invalid request body"))
	}

	col, err := h.columnSvc.Create(c.Context(), userID, mailboxID, req.Name)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return CreatedResponse(c, col)
}

// Rename renames a custom column.
// PATCH /v1/columns/:id
func (h *ColumnHandler) Rename(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	columnID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var req columnRequest
	if err := c.BodyParser(&req); err != nil {
		return AppErrorResponse(c, apperr.BadRequest("invalid request body"))
	}

	col, err := h.columnSvc.Rename(c.Context(), userID, columnID, req.Name)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, col)
}

// Delete removes a custom column.
// DELETE /v1/columns/:id
func (h *ColumnHandler) Delete(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	columnID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	if err := h.columnSvc.Delete(c.Context(), userID, columnID); err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"deleted": true})
}

type reorderRequest struct {
	ColumnIDs []int64 `json:"column_ids"`
}

// Reorder applies a full new column ordering.
// PUT /v1/mailboxes/:id/columns/reorder
func (h *ColumnHandler) Reorder(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	mailboxID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var req reorderRequest
	if err := c.BodyParser(&req); err != nil || len(req.ColumnIDs) == 0 {
		return AppErrorResponse(c, apperr.BadRequest("column_ids is required"))
	}

	columns, err := h.columnSvc.Reorder(c.Context(), userID, mailboxID, req.ColumnIDs)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"columns": columns})
}
