// Package in defines inbound ports (driving ports) for the application.
package in

import (
	"context"
	"time"

	"mailboard_server/core/domain"
)

// MailboxService drives mailbox lifecycle and sync.
type MailboxService interface {
	Connect(ctx context.Context, userID int64, authCode string) (*domain.Mailbox, error)
	AuthURL(state string) string
	Get(ctx context.Context, userID, mailboxID int64) (*domain.Mailbox, error)
	List(ctx context.Context, userID int64) ([]*domain.Mailbox, error)
	Disconnect(ctx context.Context, userID, mailboxID int64) error
	Stats(ctx context.Context, userID, mailboxID int64) (*domain.MailboxStats, error)
	ListLabels(ctx context.Context, userID, mailboxID int64) ([]*LabelInfo, error)
	TriggerSync(ctx context.Context, userID, mailboxID int64, full bool) error
}

// LabelInfo is a provider label annotated with board ownership.
type LabelInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	IsManaged bool   `json:"is_managed"` // created by the board as a column mirror
}

// MessageService drives message reads, mutations, moves and sending.
type MessageService interface {
	Get(ctx context.Context, userID, messageID int64) (*domain.Message, error)
	List(ctx context.Context, userID int64, filter *domain.MessageFilter) ([]*domain.MessageListItem, int, error)
	UpdateFlags(ctx context.Context, userID, messageID int64, patch *MessagePatch) error
	Delete(ctx context.Context, userID, messageID int64) error
	BatchDelete(ctx context.Context, userID, mailboxID int64, messageIDs []int64) (int, error)
	MoveToColumn(ctx context.Context, userID, messageID, targetColumnID int64) (*domain.Message, error)
	Snooze(ctx context.Context, userID, messageID int64, until time.Time) error
	Unsnooze(ctx context.Context, userID, messageID int64) error
	Send(ctx context.Context, userID, mailboxID int64, msg *domain.OutgoingMessage) (*domain.Message, error)
	Summarize(ctx context.Context, userID, messageID int64) (string, error)
	ListAttachments(ctx context.Context, userID, messageID int64) ([]*domain.Attachment, error)
	DownloadAttachment(ctx context.Context, userID, messageID, attachmentID int64) (*AttachmentContent, error)
}

// MessagePatch is the partial update accepted by UpdateFlags. The
// read, starred and archived flags are mirrored to provider labels;
// the pin, task and snooze fields are local board state.
type MessagePatch struct {
	IsRead       *bool
	IsStarred    *bool
	IsArchived   *bool
	IsPinned     *bool
	TaskStatus   *domain.TaskStatus
	TaskDeadline *time.Time
}

// AttachmentContent pairs metadata with fetched bytes.
type AttachmentContent struct {
	Filename string
	MimeType string
	Data     []byte
}

// ColumnService drives the Kanban board layout.
type ColumnService interface {
	SeedDefaults(ctx context.Context, mailboxID int64) error
	List(ctx context.Context, userID, mailboxID int64) ([]*domain.Column, error)
	Create(ctx context.Context, userID, mailboxID int64, name string) (*domain.Column, error)
	Rename(ctx context.Context, userID, columnID int64, name string) (*domain.Column, error)
	Delete(ctx context.Context, userID, columnID int64) error
	Reorder(ctx context.Context, userID, mailboxID int64, orderedIDs []int64) ([]*domain.Column, error)
}

// SearchService drives fuzzy and semantic search.
type SearchService interface {
	Search(ctx context.Context, userID int64, q *domain.SearchQuery) ([]*domain.SearchHit, error)
	Suggestions(ctx context.Context, userID, mailboxID int64, fragment string) (*domain.SearchSuggestions, error)
}
