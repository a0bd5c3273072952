package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/pkg/apperr"

	"github.com/jmoiron/sqlx"
)

const columnSelectColumns = `
	id, mailbox_id, name, kind, order_index, is_default,
	smart_label, provider_label_id, created_at, updated_at`

// ColumnAdapter implements out.ColumnRepository using PostgreSQL.
type ColumnAdapter struct {
	db *sqlx.DB
}

// NewColumnAdapter creates a new ColumnAdapter.
func NewColumnAdapter(db *sqlx.DB) *ColumnAdapter {
	return &ColumnAdapter{db: db}
}

type columnRow struct {
	ID              int64          `db:"id"`
	MailboxID       int64          `db:"mailbox_id"`
	Name            string         `db:"name"`
	Kind            string         `db:"kind"`
	OrderIndex      int            `db:"order_index"`
	IsDefault       bool           `db:"is_default"`
	SmartLabel      sql.NullString `db:"smart_label"`
	ProviderLabelID sql.NullString `db:"provider_label_id"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r *columnRow) toEntity() *domain.Column {
	return &domain.Column{
		ID:              r.ID,
		MailboxID:       r.MailboxID,
		Name:            r.Name,
		Kind:            domain.ColumnKind(r.Kind),
		OrderIndex:      r.OrderIndex,
		IsDefault:       r.IsDefault,
		SmartLabel:      r.SmartLabel.String,
		ProviderLabelID: r.ProviderLabelID.String,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// Create inserts a column.
func (a *ColumnAdapter) Create(ctx context.Context, column *domain.Column) (*domain.Column, error) {
	query := `
		INSERT INTO columns (
			mailbox_id, name, kind, order_index, is_default,
			smart_label, provider_label_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	row := a.db.QueryRowxContext(ctx, query,
		column.MailboxID, column.Name, string(column.Kind),
		column.OrderIndex, column.IsDefault,
		nullString(column.SmartLabel), nullString(column.ProviderLabelID))
	if err := row.Scan(&column.ID, &column.CreatedAt, &column.UpdatedAt); err != nil {
		return nil, apperr.DatabaseError("create column", err)
	}
	return column, nil
}

// GetByID returns one column.
func (a *ColumnAdapter) GetByID(ctx context.Context, id int64) (*domain.Column, error) {
	var row columnRow
	err := a.db.QueryRowxContext(ctx,
		`SELECT `+columnSelectColumns+` FROM columns WHERE id = $1`, id).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("column")
		}
		return nil, apperr.DatabaseError("get column", err)
	}
	return row.toEntity(), nil
}

// GetByName returns a column by its display name.
func (a *ColumnAdapter) GetByName(ctx context.Context, mailboxID int64, name string) (*domain.Column, error) {
	var row columnRow
	err := a.db.QueryRowxContext(ctx,
		`SELECT `+columnSelectColumns+` FROM columns WHERE mailbox_id = $1 AND name = $2`,
		mailboxID, name).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("column")
		}
		return nil, apperr.DatabaseError("get column by name", err)
	}
	return row.toEntity(), nil
}

// GetBySmartLabel returns the smart column bound to a system label.
func (a *ColumnAdapter) GetBySmartLabel(ctx context.Context, mailboxID int64, label string) (*domain.Column, error) {
	var row columnRow
	err := a.db.QueryRowxContext(ctx,
		`SELECT `+columnSelectColumns+` FROM columns WHERE mailbox_id = $1 AND smart_label = $2`,
		mailboxID, label).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("column")
		}
		return nil, apperr.DatabaseError("get column by smart label", err)
	}
	return row.toEntity(), nil
}

// GetByProviderLabel returns the managed column mirroring a label id.
func (a *ColumnAdapter) GetByProviderLabel(ctx context.Context, mailboxID int64, labelID string) (*domain.Column, error) {
	var row columnRow
	err := a.db.QueryRowxContext(ctx,
		`SELECT `+columnSelectColumns+` FROM columns WHERE mailbox_id = $1 AND provider_label_id = $2`,
		mailboxID, labelID).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("column")
		}
		return nil, apperr.DatabaseError("get column by provider label", err)
	}
	return row.toEntity(), nil
}

// ListByMailbox returns the columns of a mailbox in board order.
func (a *ColumnAdapter) ListByMailbox(ctx context.Context, mailboxID int64) ([]*domain.Column, error) {
	var rows []columnRow
	err := a.db.SelectContext(ctx, &rows,
		`SELECT `+columnSelectColumns+` FROM columns WHERE mailbox_id = $1 ORDER BY order_index ASC`,
		mailboxID)
	if err != nil {
		return nil, apperr.DatabaseError("list columns", err)
	}

	columns := make([]*domain.Column, len(rows))
	for i := range rows {
		columns[i] = rows[i].toEntity()
	}
	return columns, nil
}

// Update rewrites the mutable fields of a column.
func (a *ColumnAdapter) Update(ctx context.Context, column *domain.Column) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE columns SET
			name = $2,
			order_index = $3,
			provider_label_id = $4,
			updated_at = NOW()
		WHERE id = $1`,
		column.ID, column.Name, column.OrderIndex, nullString(column.ProviderLabelID))
	if err != nil {
		return apperr.DatabaseError("update column", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("column")
	}
	return nil
}

// SetProviderLabelID binds a managed column to its mirror label.
func (a *ColumnAdapter) SetProviderLabelID(ctx context.Context, id int64, labelID string) error {
	res, err := a.db.ExecContext(ctx,
		`UPDATE columns SET provider_label_id = $2, updated_at = NOW() WHERE id = $1`, id, labelID)
	if err != nil {
		return apperr.DatabaseError("set provider label id", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("column")
	}
	return nil
}

// Delete removes a column, detaches its messages and closes the gap in
// order_index so indices stay dense.
func (a *ColumnAdapter) Delete(ctx context.Context, id int64) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin delete column", err)
	}
	defer tx.Rollback()

	var mailboxID int64
	var orderIndex int
	err = tx.QueryRowxContext(ctx,
		`DELETE FROM columns WHERE id = $1 RETURNING mailbox_id, order_index`, id).
		Scan(&mailboxID, &orderIndex)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("column")
		}
		return apperr.DatabaseError("delete column", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET column_id = NULL, updated_at = NOW() WHERE column_id = $1`, id); err != nil {
		return apperr.DatabaseError("detach column messages", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE columns SET order_index = order_index - 1, updated_at = NOW()
		WHERE mailbox_id = $1 AND order_index > $2`, mailboxID, orderIndex); err != nil {
		return apperr.DatabaseError("compact column order", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit delete column", err)
	}
	return nil
}

// Reorder rewrites order_index from the given full ordering.
func (a *ColumnAdapter) Reorder(ctx context.Context, mailboxID int64, orderedIDs []int64) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.DatabaseError("begin reorder", err)
	}
	defer tx.Rollback()

	for index, id := range orderedIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE columns SET order_index = $3, updated_at = NOW()
			WHERE id = $1 AND mailbox_id = $2`, id, mailboxID, index)
		if err != nil {
			return apperr.DatabaseError("reorder column", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("column")
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit reorder", err)
	}
	return nil
}

// NextOrderIndex returns the index for a column appended at the end.
func (a *ColumnAdapter) NextOrderIndex(ctx context.Context, mailboxID int64) (int, error) {
	var next int
	err := a.db.QueryRowxContext(ctx,
		`SELECT COALESCE(MAX(order_index) + 1, 0) FROM columns WHERE mailbox_id = $1`,
		mailboxID).Scan(&next)
	if err != nil {
		return 0, apperr.DatabaseError("next order index", err)
	}
	return next, nil
}

// Interface compliance
var _ out.ColumnRepository = (*ColumnAdapter)(nil)
