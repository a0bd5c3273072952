package http

import (
	"time"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/in"
	"mailboard_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// MessageHandler handles message read, mutation and board operations.
type MessageHandler struct {
	messageSvc in.MessageService
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messageSvc in.MessageService) *MessageHandler {
	return &MessageHandler{messageSvc: messageSvc}
}

// Register registers message routes.
func (h *MessageHandler) Register(router fiber.Router) {
	router.Get("/mailboxes/:id/messages", h.List)
	router.Post("/mailboxes/:id/messages/send", h.Send)
	router.Post("/mailboxes/:id/messages/batch-delete", h.BatchDelete)

	messages := router.Group("/messages")
	messages.Get("/:id", h.Get)
	messages.Patch("/:id/flags", h.UpdateFlags)
	messages.Delete("/:id", h.Delete)
	messages.Post("/:id/move", h.Move)
	messages.Post("/:id/snooze", h.Snooze)
	messages.Delete("/:id/snooze", h.Unsnooze)
	messages.Post("/:id/summarize", h.Summarize)
	messages.Get("/:id/attachments", h.ListAttachments)
	messages.Get("/:id/attachments/:attachmentId", h.DownloadAttachment)
}

// List returns filtered messages of a mailbox.
// GET /v1/mailboxes/:id/messages
func (h *MessageHandler) List(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	mailboxID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	limit, offset := GetLimitOffset(c, 50)
	filter := &domain.MessageFilter{
		MailboxID:      mailboxID,
		ColumnID:       QueryInt64(c, "column_id"),
		IsRead:         QueryBool(c, "is_read"),
		IsStarred:      QueryBool(c, "is_starred"),
		IsArchived:     QueryBool(c, "is_archived"),
		IsPinned:       QueryBool(c, "is_pinned"),
		IsSnoozed:      QueryBool(c, "is_snoozed"),
		HasAttachments: QueryBool(c, "has_attachments"),
		Search:         c.Query("search"),
		FromEmail:      c.Query("from_email"),
		Label:          c.Query("label"),
		ExcludeLabel:   c.Query("exclude_label"),
		SortBy:         c.Query("sort_by"),
		SortOrder:      c.Query("sort_order"),
		IncludeSnooze:  c.QueryBool("include_snoozed", false),
		Limit:          limit,
		Offset:         offset,
	}
	if cat := c.Query("category"); cat != "" {
		category := domain.Category(cat)
		filter.Category = &category
	}
	if ts := c.Query("task_status"); ts != "" {
		status := domain.TaskStatus(ts)
		if !status.Valid() {
			return AppErrorResponse(c, apperr.ValidationFailed("unknown task status"))
		}
		filter.TaskStatus = &status
	}

	items, total, err := h.messageSvc.List(c.Context(), userID, filter)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, NewListResponse(items, total, offset, limit))
}

// Get returns one message with its full body.
// GET /v1/messages/:id
func (h *MessageHandler) Get(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	messageID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	msg, err := h.messageSvc.Get(c.Context(), userID, messageID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, msg)
}

type flagsRequest struct {
	IsRead       *bool      `json:"is_read"`
	IsStarred    *bool      `json:"is_starred"`
	IsArchived   *bool      `json:"is_archived"`
	IsPinned     *bool      `json:"is_pinned"`
	TaskStatus   *string    `json:"task_status"`
	TaskDeadline *time.Time `json:"task_deadline"`
}

// UpdateFlags patches flag and task workflow state.
// PATCH /v1/messages/:id/flags
func (h *MessageHandler) UpdateFlags(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	messageID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var req flagsRequest
	if err := c.BodyParser(&req); err != nil {
		return AppErrorResponse(c, apperr.BadRequest("invalid request body"))
	}

	patch := &in.MessagePatch{
		IsRead:       req.IsRead,
		IsStarred:    req.IsStarred,
		IsArchived:   req.IsArchived,
		IsPinned:     req.IsPinned,
		TaskDeadline: req.TaskDeadline,
	}
	if req.TaskStatus != nil {
		status := domain.TaskStatus(*req.TaskStatus)
		patch.TaskStatus = &status
	}

	if err := h.messageSvc.UpdateFlags(c.Context(), userID, messageID, patch); err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"updated": true})
}

// Delete trashes a message.
// DELETE /v1/messages/:id
func (h *MessageHandler) Delete(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	messageID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	if err := h.messageSvc.Delete(c.Context(), userID, messageID); err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"deleted": true})
}

type batchDeleteRequest struct {
	MessageIDs []int64 `json:"message_ids"`
}

// BatchDelete soft-deletes a batch of messages from the board.
// POST /v1/mailboxes/:id/messages/batch-delete
func (h *MessageHandler) BatchDelete(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	mailboxID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var req batchDeleteRequest
	if err := c.BodyParser(&req); err != nil {
		return AppErrorResponse(c, apperr.BadRequest("invalid request body"))
	}

	deleted, err := h.messageSvc.BatchDelete(c.Context(), userID, mailboxID, req.MessageIDs)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"deleted": deleted})
}

type moveRequest struct {
	ColumnID int64 `json:"column_id"`
}

// Move moves a message to another board column.
// POST /v1/messages/:id/move
func (h *MessageHandler) Move(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	messageID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var req moveRequest
	if err := c.BodyParser(&req); err != nil || req.ColumnID <= 0 {
		return AppErrorResponse(c, apperr.BadRequest("column_id is required"))
	}

	msg, err := h.messageSvc.MoveToColumn(c.Context(), userID, messageID, req.ColumnID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, msg)
}

type snoozeRequest struct {
	Until time.Time `json:"until"`
}

// Snooze hides a message until the wake time.
// POST /v1/messages/:id/snooze
func (h *MessageHandler) Snooze(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	messageID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var req snoozeRequest
	if err := c.BodyParser(&req); err != nil || req.Until.IsZero() {
		return AppErrorResponse(c, apperr.BadRequest("until is required"))
	}

	if err := h.messageSvc.Snooze(c.Context(), userID, messageID, req.Until); err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"snoozed_until": req.Until})
}

// Unsnooze brings a snoozed message back immediately.
// DELETE /v1/messages/:id/snooze
func (h *MessageHandler) Unsnooze(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	messageID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	if err := h.messageSvc.Unsnooze(c.Context(), userID, messageID); err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"unsnoozed": true})
}

type sendRequest struct {
	To         []string `json:"to"`
	Cc         []string `json:"cc"`
	Bcc        []string `json:"bcc"`
	Subject    string   `json:"subject"`
	BodyText   string   `json:"body_text"`
	BodyHTML   string   `json:"body_html"`
	InReplyTo  string   `json:"in_reply_to"`
	References string   `json:"references"`
	ThreadID   string   `json:"thread_id"`
}

// Send delivers an outgoing message.
// POST /v1/mailboxes/:id/messages/send
func (h *MessageHandler) Send(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	mailboxID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return AppErrorResponse(c, apperr.BadRequest("invalid request body"))
	}

	msg, err := h.messageSvc.Send(c.Context(), userID, mailboxID, &domain.OutgoingMessage{
		To:         req.To,
		Cc:         req.Cc,
		Bcc:        req.Bcc,
		Subject:    req.Subject,
		BodyText:   req.BodyText,
		BodyHTML:   req.BodyHTML,
		InReplyTo:  req.InReplyTo,
		References: req.References,
		ThreadID:   req.ThreadID,
	})
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return CreatedResponse(c, msg)
}

// Summarize returns an AI summary, cached after the first call.
// POST /v1/messages/:id/summarize
func (h *MessageHandler) Summarize(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	messageID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	summary, err := h.messageSvc.Summarize(c.Context(), userID, messageID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"summary": summary})
}

// ListAttachments returns attachment metadata.
// GET /v1/messages/:id/attachments
func (h *MessageHandler) ListAttachments(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	messageID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	attachments, err := h.messageSvc.ListAttachments(c.Context(), userID, messageID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"attachments": attachments, "total": len(attachments)})
}

// DownloadAttachment streams attachment bytes from the provider.
// GET /v1/messages/:id/attachments/:attachmentId
func (h *MessageHandler) DownloadAttachment(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	messageID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}
	attachmentID, err := ParamID(c, "attachmentId")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	content, err := h.messageSvc.DownloadAttachment(c.Context(), userID, messageID, attachmentID)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	c.Set(fiber.HeaderContentType, content.MimeType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+content.Filename+`"`)
	return c.Send(content.Data)
}
