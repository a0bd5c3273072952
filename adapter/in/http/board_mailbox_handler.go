package http

import (
	"mailboard_server/core/port/in"
	"mailboard_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// MailboxHandler handles mailbox lifecycle requests.
type MailboxHandler struct {
	mailboxSvc in.MailboxService
}

// NewMailboxHandler creates a new mailbox handler.
func NewMailboxHandler(mailboxSvc in.MailboxService) *MailboxHandler {
	return &MailboxHandler{mailboxSvc: mailboxSvc}
}

// Register registers mailbox routes.
func (h *MailboxHandler) Register(router fiber.Router) {
	mailboxes := router.Group("/mailboxes")

	mailboxes.Get("/auth-url", h.AuthURL)
	mailboxes.Post("/connect", h.Connect)
	mailboxes.Get("/", h.List)
	mailboxes.Get("/:id", h.Get)
	mailboxes.Delete("/:id", h.Disconnect)
	mailboxes.Get("/:id/stats", h.Stats)
	mailboxes.Get("/:id/labels", h.ListLabels)
	mailboxes.Post("/:id/sync", h.TriggerSync)
}

// AuthURL returns the OAuth consent URL.
// GET /v1/mailboxes/auth-url
func (h *MailboxHandler) AuthURL(c *fiber.Ctx) error {
	if _, err := GetUserID(c); err != nil {
		return AppErrorResponse(c, err)
	}

	state := uuid.NewString()
	return SuccessResponse(c, fiber.Map{
		"auth_url": h.mailboxSvc.AuthURL(state),
		"state":    state,
	})
}

type connectRequest struct {
	Code string `json:"code"`
}

// Connect exchanges an OAuth code for a connected mailbox.
// POST /v1/mailboxes/connect
func (h *MailboxHandler) Connect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var req connectRequest
	if err := c.BodyParser(&req); err != nil {
		return AppErrorResponse(c, apperr.BadRequest("invalid request body"))
	}

	mailbox, err := h.mailboxSvc.Connect(c.Context(), userID, req.Code)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return CreatedResponse(c, mailbox)
}

// List returns the user's mailboxes.
// GET /v1/mailboxes
func (h *MailboxHandler) List(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	mailboxes, err := h.mailboxSvc.List(c.Context(), userID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"mailboxes": mailboxes, "total": len(mailboxes)})
}

// Get returns one mailbox with its sync state.
// GET /v1/mailboxes/:id
func (h *MailboxHandler) Get(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	mailboxID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	mailbox, err := h.mailboxSvc.Get(c.Context(), userID, mailboxID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, mailbox)
}

// Disconnect removes a mailbox and its synced data.
// DELETE /v1/mailboxes/:id
func (h *MailboxHandler) Disconnect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	mailboxID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	if err := h.mailboxSvc.Disconnect(c.Context(), userID, mailboxID); err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"disconnected": true})
}

// Stats returns aggregate message counts.
// GET /v1/mailboxes/:id/stats
func (h *MailboxHandler) Stats(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	mailboxID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	stats, err := h.mailboxSvc.Stats(c.Context(), userID, mailboxID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, stats)
}

// ListLabels returns provider labels with board ownership flags.
// GET /v1/mailboxes/:id/labels
func (h *MailboxHandler) ListLabels(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	mailboxID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	labels, err := h.mailboxSvc.ListLabels(c.Context(), userID, mailboxID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"labels": labels, "total": len(labels)})
}

// TriggerSync starts a sync on demand. ?full=true forces a full sync.
// POST /v1/mailboxes/:id/sync
func (h *MailboxHandler) TriggerSync(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	mailboxID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	full := c.QueryBool("full", false)
	if err := h.mailboxSvc.TriggerSync(c.Context(), userID, mailboxID, full); err != nil {
		return AppErrorResponse(c, err)
	}
	c.Status(fiber.StatusAccepted)
	return SuccessResponse(c, fiber.Map{"sync_started": true, "full": full})
}
