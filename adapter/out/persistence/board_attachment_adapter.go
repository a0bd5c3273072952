package persistence

import (
	"context"
	"database/sql"
	"errors"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/pkg/apperr"

	"github.com/jmoiron/sqlx"
)

// AttachmentAdapter implements out.AttachmentRepository using PostgreSQL.
// Only metadata lives here; attachment bodies are fetched from the
// provider on demand.
type AttachmentAdapter struct {
	db *sqlx.DB
}

// NewAttachmentAdapter creates a new AttachmentAdapter.
func NewAttachmentAdapter(db *sqlx.DB) *AttachmentAdapter {
	return &AttachmentAdapter{db: db}
}

// BulkUpsert stores attachment metadata for one message.
func (a *AttachmentAdapter) BulkUpsert(ctx context.Context, messageID int64, attachments []*domain.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin attachment upsert", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO attachments (message_id, external_id, filename, mime_type, size)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id, external_id) DO UPDATE SET
			filename = EXCLUDED.filename,
			mime_type = EXCLUDED.mime_type,
			size = EXCLUDED.size
		RETURNING id`

	for _, att := range attachments {
		if err := tx.QueryRowxContext(ctx, query,
			messageID, att.ExternalID, att.Filename, att.MimeType, att.Size).Scan(&att.ID); err != nil {
			return apperr.DatabaseError("upsert attachment", err)
		}
		att.MessageID = messageID
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit attachment upsert", err)
	}
	return nil
}

// ListByMessage returns the attachments of one message.
func (a *AttachmentAdapter) ListByMessage(ctx context.Context, messageID int64) ([]*domain.Attachment, error) {
	rows, err := a.db.QueryxContext(ctx, `
		SELECT id, message_id, external_id, filename, mime_type, size
		FROM attachments WHERE message_id = $1 ORDER BY id`, messageID)
	if err != nil {
		return nil, apperr.DatabaseError("list attachments", err)
	}
	defer rows.Close()

	var attachments []*domain.Attachment
	for rows.Next() {
		var att domain.Attachment
		if err := rows.Scan(&att.ID, &att.MessageID, &att.ExternalID, &att.Filename, &att.MimeType, &att.Size); err != nil {
			return nil, apperr.DatabaseError("scan attachment", err)
		}
		attachments = append(attachments, &att)
	}
	return attachments, nil
}

// GetByID returns one attachment's metadata.
func (a *AttachmentAdapter) GetByID(ctx context.Context, id int64) (*domain.Attachment, error) {
	var att domain.Attachment
	err := a.db.QueryRowxContext(ctx, `
		SELECT id, message_id, external_id, filename, mime_type, size
		FROM attachments WHERE id = $1`, id).
		Scan(&att.ID, &att.MessageID, &att.ExternalID, &att.Filename, &att.MimeType, &att.Size)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("attachment")
		}
		return nil, apperr.DatabaseError("get attachment", err)
	}
	return &att, nil
}

// Interface compliance
var _ out.AttachmentRepository = (*AttachmentAdapter)(nil)
