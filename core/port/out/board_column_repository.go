package out

import (
	"context"

	"mailboard_server/core/domain"
)

// ColumnRepository is the outbound port for Kanban columns.
type ColumnRepository interface {
	Create(ctx context.Context, column *domain.Column) (*domain.Column, error)
	GetByID(ctx context.Context, id int64) (*domain.Column, error)
	GetByName(ctx context.Context, mailboxID int64, name string) (*domain.Column, error)
	GetBySmartLabel(ctx context.Context, mailboxID int64, label string) (*domain.Column, error)
	GetByProviderLabel(ctx context.Context, mailboxID int64, labelID string) (*domain.Column, error)
	ListByMailbox(ctx context.Context, mailboxID int64) ([]*domain.Column, error)
	Update(ctx context.Context, column *domain.Column) error
	SetProviderLabelID(ctx context.Context, id int64, labelID string) error
	Delete(ctx context.Context, id int64) error

	// Reorder rewrites order_index for every column of the mailbox so
	// indices stay dense 0..N-1.
	Reorder(ctx context.Context, mailboxID int64, orderedIDs []int64) error
	NextOrderIndex(ctx context.Context, mailboxID int64) (int, error)
}

// AttachmentRepository is the outbound port for attachment metadata.
type AttachmentRepository interface {
	BulkUpsert(ctx context.Context, messageID int64, attachments []*domain.Attachment) error
	ListByMessage(ctx context.Context, messageID int64) ([]*domain.Attachment, error)
	GetByID(ctx context.Context, id int64) (*domain.Attachment, error)
}
