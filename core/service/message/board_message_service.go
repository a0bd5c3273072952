// Package message implements message reads, flag updates, Kanban
// moves, snooze, send and AI summaries.
package message

import (
	"context"
	"time"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/in"
	"mailboard_server/core/port/out"
	"mailboard_server/core/service/auth"
	"mailboard_server/core/service/column"
	"mailboard_server/pkg/apperr"
	"mailboard_server/pkg/logger"
)

const maxBatchDelete = 100

// Service implements in.MessageService. Label mutations are
// provider-first: the provider call must succeed before local state
// changes, so the board never shows a state Gmail does not have.
type Service struct {
	messageRepo    out.MessageRepository
	mailboxRepo    out.MailboxRepository
	columnRepo     out.ColumnRepository
	attachmentRepo out.AttachmentRepository
	provider       out.MailProvider
	tokens         *auth.TokenService
	columns        *column.Service
	ai             out.AIClient
}

// NewService creates a new message Service.
func NewService(
	messageRepo out.MessageRepository,
	mailboxRepo out.MailboxRepository,
	columnRepo out.ColumnRepository,
	attachmentRepo out.AttachmentRepository,
	provider out.MailProvider,
	tokens *auth.TokenService,
	columns *column.Service,
	ai out.AIClient,
) *Service {
	return &Service{
		messageRepo:    messageRepo,
		mailboxRepo:    mailboxRepo,
		columnRepo:     columnRepo,
		attachmentRepo: attachmentRepo,
		provider:       provider,
		tokens:         tokens,
		columns:        columns,
		ai:             ai,
	}
}

// Get returns one message with its full body.
func (s *Service) Get(ctx context.Context, userID, messageID int64) (*domain.Message, error) {
	msg, _, err := s.getOwnedMessage(ctx, userID, messageID)
	return msg, err
}

// List returns filtered messages and the total match count.
func (s *Service) List(ctx context.Context, userID int64, filter *domain.MessageFilter) ([]*domain.MessageListItem, int, error) {
	if err := s.checkMailboxOwner(ctx, userID, filter.MailboxID); err != nil {
		return nil, 0, err
	}
	return s.messageRepo.List(ctx, filter)
}

// UpdateFlags applies a partial update. Read, starred and archived are
// mirrored to provider labels first; pin, task status and deadline are
// board-local state and never touch the provider.
func (s *Service) UpdateFlags(ctx context.Context, userID, messageID int64, patch *in.MessagePatch) error {
	if patch == nil {
		return nil
	}
	if patch.TaskStatus != nil && !patch.TaskStatus.Valid() {
		return apperr.ValidationFailed("unknown task status")
	}

	msg, mailbox, err := s.getOwnedMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}

	var add, remove []string
	if patch.IsRead != nil {
		if *patch.IsRead {
			remove = append(remove, domain.LabelUnread)
		} else {
			add = append(add, domain.LabelUnread)
		}
	}
	if patch.IsStarred != nil {
		if *patch.IsStarred {
			add = append(add, domain.LabelStarred)
		} else {
			remove = append(remove, domain.LabelStarred)
		}
	}
	if patch.IsArchived != nil {
		if *patch.IsArchived {
			remove = append(remove, domain.LabelInbox)
		} else {
			add = append(add, domain.LabelInbox)
		}
	}

	if len(add) > 0 || len(remove) > 0 {
		labels, err := s.modifyProviderLabels(ctx, mailbox, msg.ExternalID, add, remove)
		if err != nil {
			return err
		}
		if err := s.messageRepo.UpdateLabels(ctx, messageID, labels, msg.ColumnID); err != nil {
			return err
		}
	}

	if patch.IsPinned != nil || patch.TaskStatus != nil || patch.TaskDeadline != nil {
		return s.messageRepo.UpdateWorkflow(ctx, messageID, &out.WorkflowPatch{
			IsPinned:     patch.IsPinned,
			TaskStatus:   patch.TaskStatus,
			TaskDeadline: patch.TaskDeadline,
		})
	}
	return nil
}

// Delete trashes the message at the provider, then soft-deletes it
// locally.
func (s *Service) Delete(ctx context.Context, userID, messageID int64) error {
	msg, mailbox, err := s.getOwnedMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}

	if _, err := s.modifyProviderLabels(ctx, mailbox, msg.ExternalID,
		[]string{domain.LabelTrash}, []string{domain.LabelInbox}); err != nil {
		return err
	}
	return s.messageRepo.SoftDelete(ctx, messageID)
}

// BatchDelete soft-deletes a batch of board messages without touching
// the provider. Returns how many were deleted.
func (s *Service) BatchDelete(ctx context.Context, userID, mailboxID int64, messageIDs []int64) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	if len(messageIDs) > maxBatchDelete {
		return 0, apperr.ValidationFailed("too many messages in one batch")
	}
	if err := s.checkMailboxOwner(ctx, userID, mailboxID); err != nil {
		return 0, err
	}
	return s.messageRepo.BulkSoftDelete(ctx, mailboxID, messageIDs)
}

// MoveToColumn moves a message to another board column.
//
// Moving to a managed column adds its mirror label and removes the
// label of the previous managed column; leaving the Inbox archives.
// Moving to a smart column applies the system label that defines it.
// The provider call runs first; a failed move leaves local state
// untouched.
func (s *Service) MoveToColumn(ctx context.Context, userID, messageID, targetColumnID int64) (*domain.Message, error) {
	msg, mailbox, err := s.getOwnedMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	target, err := s.columnRepo.GetByID(ctx, targetColumnID)
	if err != nil {
		return nil, err
	}
	if target.MailboxID != msg.MailboxID {
		return nil, apperr.BadRequest("column belongs to another mailbox")
	}

	add, remove, newColumnID, err := s.moveDelta(ctx, mailbox, msg, target)
	if err != nil {
		return nil, err
	}

	if len(add) > 0 || len(remove) > 0 {
		labels, err := s.modifyProviderLabels(ctx, mailbox, msg.ExternalID, add, remove)
		if err != nil {
			return nil, err
		}
		msg.Labels = labels
	} else {
		msg.Labels = domain.ApplyLabelDelta(msg.Labels, add, remove)
	}

	msg.SyncFlagsFromLabels()
	msg.ColumnID = newColumnID
	if err := s.messageRepo.UpdateLabels(ctx, messageID, msg.Labels, newColumnID); err != nil {
		return nil, err
	}

	logger.WithMailbox(mailbox.ID).WithFields(map[string]any{
		"message": messageID,
		"column":  target.Name,
	}).Debug("Message moved")
	return msg, nil
}

// moveDelta computes the provider label delta for a move.
func (s *Service) moveDelta(ctx context.Context, mailbox *domain.Mailbox, msg *domain.Message, target *domain.Column) (add, remove []string, newColumnID *int64, err error) {
	// Leaving a managed column drops its mirror label.
	if msg.ColumnID != nil && *msg.ColumnID != target.ID {
		current, err := s.columnRepo.GetByID(ctx, *msg.ColumnID)
		if err == nil && current.IsManaged() && current.ProviderLabelID != "" {
			remove = append(remove, current.ProviderLabelID)
		}
	}

	if target.IsManaged() {
		labelID, err := s.columns.EnsureProviderLabel(ctx, mailbox, target)
		if err != nil {
			return nil, nil, nil, err
		}
		if !domain.HasLabel(msg.Labels, labelID) {
			add = append(add, labelID)
		}
		// A message on a workflow lane leaves the inbox.
		if domain.HasLabel(msg.Labels, domain.LabelInbox) {
			remove = append(remove, domain.LabelInbox)
		}
		id := target.ID
		return add, remove, &id, nil
	}

	// Smart columns derive membership from a system label; the move
	// applies that label and clears the managed column binding.
	if target.SmartLabel != "" && !domain.HasLabel(msg.Labels, target.SmartLabel) {
		add = append(add, target.SmartLabel)
	}
	return add, remove, nil, nil
}

// Snooze hides a message until the wake time.
func (s *Service) Snooze(ctx context.Context, userID, messageID int64, until time.Time) error {
	if !until.After(time.Now()) {
		return apperr.BadRequest(domain.ErrSnoozeInPast.Error())
	}
	if _, _, err := s.getOwnedMessage(ctx, userID, messageID); err != nil {
		return err
	}
	return s.messageRepo.SetSnooze(ctx, messageID, until)
}

// Unsnooze brings a snoozed message back immediately.
func (s *Service) Unsnooze(ctx context.Context, userID, messageID int64) error {
	if _, _, err := s.getOwnedMessage(ctx, userID, messageID); err != nil {
		return err
	}
	return s.messageRepo.ClearSnooze(ctx, messageID)
}

// Send delivers an outgoing message through the provider and stores
// the sent copy locally.
func (s *Service) Send(ctx context.Context, userID, mailboxID int64, outgoing *domain.OutgoingMessage) (*domain.Message, error) {
	if err := outgoing.Validate(); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}

	mailbox, err := s.mailboxRepo.GetByID(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	if mailbox.UserID != userID {
		// A foreign mailbox is indistinguishable from a missing one.
		return nil, apperr.NotFound("mailbox")
	}

	token, err := s.tokens.Token(ctx, mailbox)
	if err != nil {
		return nil, err
	}
	sent, err := s.provider.SendMessage(ctx, token, outgoing)
	if err != nil {
		return nil, err
	}

	// Fetch the stored copy so the local row matches what Gmail kept,
	// headers and all.
	pm, err := s.provider.GetMessage(ctx, token, sent.ExternalID)
	if err != nil {
		logger.WithMailbox(mailboxID).WithField("message", sent.ExternalID).WithError(err).
			Warn("Sent but failed to fetch stored copy, next sync will pick it up")
		return &domain.Message{MailboxID: mailboxID, ExternalID: sent.ExternalID, ThreadID: sent.ThreadID}, nil
	}

	msg := &domain.Message{
		MailboxID:      mailboxID,
		ExternalID:     pm.ExternalID,
		ThreadID:       pm.ThreadID,
		Subject:        pm.Subject,
		SenderName:     pm.SenderName,
		SenderEmail:    pm.SenderEmail,
		Recipients:     pm.Recipients,
		CcAddresses:    pm.CcAddresses,
		Snippet:        pm.Snippet,
		BodyHTML:       pm.BodyHTML,
		BodyText:       pm.BodyText,
		Labels:         pm.Labels,
		HasAttachments: len(pm.Attachments) > 0,
		InternalDate:   pm.InternalDate,
	}
	msg.SyncFlagsFromLabels()

	if _, err := s.messageRepo.BulkUpsert(ctx, []*domain.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// Summarize returns the AI summary of the message, running the full
// analysis (summary, urgency, action items) on the first request and
// caching the result.
func (s *Service) Summarize(ctx context.Context, userID, messageID int64) (string, error) {
	msg, _, err := s.getOwnedMessage(ctx, userID, messageID)
	if err != nil {
		return "", err
	}
	if msg.Summary != "" {
		return msg.Summary, nil
	}

	body := msg.BodyText
	if body == "" {
		body = msg.Snippet
	}
	insights, err := s.ai.Analyze(ctx, msg.Subject, body)
	if err != nil {
		return "", err
	}

	if err := s.messageRepo.UpdateInsights(ctx, messageID, insights); err != nil {
		return "", err
	}
	return insights.Summary, nil
}

// ListAttachments returns attachment metadata for one message.
func (s *Service) ListAttachments(ctx context.Context, userID, messageID int64) ([]*domain.Attachment, error) {
	if _, _, err := s.getOwnedMessage(ctx, userID, messageID); err != nil {
		return nil, err
	}
	return s.attachmentRepo.ListByMessage(ctx, messageID)
}

// DownloadAttachment fetches attachment bytes from the provider.
func (s *Service) DownloadAttachment(ctx context.Context, userID, messageID, attachmentID int64) (*in.AttachmentContent, error) {
	msg, mailbox, err := s.getOwnedMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	att, err := s.attachmentRepo.GetByID(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	if att.MessageID != messageID {
		return nil, apperr.NotFound("attachment")
	}

	token, err := s.tokens.Token(ctx, mailbox)
	if err != nil {
		return nil, err
	}
	data, err := s.provider.GetAttachment(ctx, token, msg.ExternalID, att.ExternalID)
	if err != nil {
		return nil, err
	}

	return &in.AttachmentContent{
		Filename: att.Filename,
		MimeType: att.MimeType,
		Data:     data,
	}, nil
}

func (s *Service) modifyProviderLabels(ctx context.Context, mailbox *domain.Mailbox, externalID string, add, remove []string) ([]string, error) {
	token, err := s.tokens.Token(ctx, mailbox)
	if err != nil {
		return nil, err
	}
	return s.provider.ModifyLabels(ctx, token, externalID, add, remove)
}

func (s *Service) getOwnedMessage(ctx context.Context, userID, messageID int64) (*domain.Message, *domain.Mailbox, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	mailbox, err := s.mailboxRepo.GetByID(ctx, msg.MailboxID)
	if err != nil {
		return nil, nil, err
	}
	if mailbox.UserID != userID {
		// Never reveal that the message exists under another user.
		return nil, nil, apperr.NotFound("message")
	}
	return msg, mailbox, nil
}

func (s *Service) checkMailboxOwner(ctx context.Context, userID, mailboxID int64) error {
	mailbox, err := s.mailboxRepo.GetByID(ctx, mailboxID)
	if err != nil {
		return err
	}
	if mailbox.UserID != userID {
		return apperr.NotFound("mailbox")
	}
	return nil
}

// Interface compliance
var _ in.MessageService = (*Service)(nil)
