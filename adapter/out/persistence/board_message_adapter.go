// Package persistence provides database adapters.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const messageSelectColumns = `
	id, mailbox_id, external_id, thread_id, subject, sender_name, sender_email,
	recipients, cc_addresses, snippet, body_html, body_text, labels, category,
	column_id, is_read, is_starred, is_archived, is_trashed, has_attachments,
	snoozed_until, is_snooze_returned, is_pinned, task_status, task_deadline,
	summary, urgency, action_items,
	(embedding IS NOT NULL) AS has_embedding,
	internal_date, created_at, updated_at, deleted_at`

// MessageAdapter implements out.MessageRepository using PostgreSQL.
type MessageAdapter struct {
	db *sqlx.DB
}

// NewMessageAdapter creates a new MessageAdapter.
func NewMessageAdapter(db *sqlx.DB) *MessageAdapter {
	return &MessageAdapter{db: db}
}

type messageRow struct {
	ID               int64          `db:"id"`
	MailboxID        int64          `db:"mailbox_id"`
	ExternalID       string         `db:"external_id"`
	ThreadID         sql.NullString `db:"thread_id"`
	Subject          string         `db:"subject"`
	SenderName       sql.NullString `db:"sender_name"`
	SenderEmail      string         `db:"sender_email"`
	Recipients       pq.StringArray `db:"recipients"`
	CcAddresses      pq.StringArray `db:"cc_addresses"`
	Snippet          sql.NullString `db:"snippet"`
	BodyHTML         sql.NullString `db:"body_html"`
	BodyText         sql.NullString `db:"body_text"`
	Labels           pq.StringArray `db:"labels"`
	Category         string         `db:"category"`
	ColumnID         sql.NullInt64  `db:"column_id"`
	IsRead           bool           `db:"is_read"`
	IsStarred        bool           `db:"is_starred"`
	IsArchived       bool           `db:"is_archived"`
	IsTrashed        bool           `db:"is_trashed"`
	HasAttachments   bool           `db:"has_attachments"`
	SnoozedUntil     sql.NullTime   `db:"snoozed_until"`
	IsSnoozeReturned bool           `db:"is_snooze_returned"`
	IsPinned         bool           `db:"is_pinned"`
	TaskStatus       string         `db:"task_status"`
	TaskDeadline     sql.NullTime   `db:"task_deadline"`
	Summary          sql.NullString `db:"summary"`
	Urgency          sql.NullInt64  `db:"urgency"`
	ActionItems      []byte         `db:"action_items"`
	HasEmbedding     bool           `db:"has_embedding"`
	InternalDate     time.Time      `db:"internal_date"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
	DeletedAt        sql.NullTime   `db:"deleted_at"`
	TotalCount       int            `db:"total_count"`
	Score            float64        `db:"score"`
}

func (r *messageRow) toEntity() *domain.Message {
	m := &domain.Message{
		ID:               r.ID,
		MailboxID:        r.MailboxID,
		ExternalID:       r.ExternalID,
		ThreadID:         r.ThreadID.String,
		Subject:          r.Subject,
		SenderName:       r.SenderName.String,
		SenderEmail:      r.SenderEmail,
		Recipients:       r.Recipients,
		CcAddresses:      r.CcAddresses,
		Snippet:          r.Snippet.String,
		BodyHTML:         r.BodyHTML.String,
		BodyText:         r.BodyText.String,
		Labels:           r.Labels,
		Category:         domain.Category(r.Category),
		IsRead:           r.IsRead,
		IsStarred:        r.IsStarred,
		IsArchived:       r.IsArchived,
		IsTrashed:        r.IsTrashed,
		HasAttachments:   r.HasAttachments,
		IsSnoozeReturned: r.IsSnoozeReturned,
		IsPinned:         r.IsPinned,
		TaskStatus:       domain.TaskStatus(r.TaskStatus),
		Summary:          r.Summary.String,
		HasEmbedding:     r.HasEmbedding,
		InternalDate:     r.InternalDate,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.ColumnID.Valid {
		m.ColumnID = &r.ColumnID.Int64
	}
	if r.SnoozedUntil.Valid {
		t := r.SnoozedUntil.Time
		m.SnoozedUntil = &t
	}
	if r.TaskDeadline.Valid {
		t := r.TaskDeadline.Time
		m.TaskDeadline = &t
	}
	if r.Urgency.Valid {
		u := int(r.Urgency.Int64)
		m.Urgency = &u
	}
	if len(r.ActionItems) > 0 {
		// Stored as jsonb; a parse failure leaves the field empty
		// rather than failing the whole row.
		_ = json.Unmarshal(r.ActionItems, &m.ActionItems)
	}
	if r.DeletedAt.Valid {
		t := r.DeletedAt.Time
		m.DeletedAt = &t
	}
	return m
}

func (r *messageRow) toListItem() *domain.MessageListItem {
	return r.toEntity().ToListItem()
}

// BulkUpsert inserts messages, updating labels and flags on conflict.
// Returns the number of affected rows.
func (a *MessageAdapter) BulkUpsert(ctx context.Context, messages []*domain.Message) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO messages (
			mailbox_id, external_id, thread_id, subject, sender_name, sender_email,
			recipients, cc_addresses, snippet, body_html, body_text, labels, category,
			column_id, is_read, is_starred, is_archived, is_trashed, has_attachments,
			internal_date, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, NOW(), NOW()
		)
		ON CONFLICT (mailbox_id, external_id) DO UPDATE SET
			labels = EXCLUDED.labels,
			category = EXCLUDED.category,
			is_read = EXCLUDED.is_read,
			is_starred = EXCLUDED.is_starred,
			is_archived = EXCLUDED.is_archived,
			is_trashed = EXCLUDED.is_trashed,
			snippet = EXCLUDED.snippet,
			deleted_at = NULL,
			updated_at = NOW()
		RETURNING id`

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperr.DatabaseError("begin bulk upsert", err)
	}
	defer tx.Rollback()

	count := 0
	for _, m := range messages {
		var id int64
		err := tx.QueryRowxContext(ctx, query,
			m.MailboxID, m.ExternalID, nullString(m.ThreadID), m.Subject,
			nullString(m.SenderName), m.SenderEmail,
			pq.Array(m.Recipients), pq.Array(m.CcAddresses),
			nullString(m.Snippet), nullString(m.BodyHTML), nullString(m.BodyText),
			pq.Array(m.Labels), string(m.Category), m.ColumnID,
			m.IsRead, m.IsStarred, m.IsArchived, m.IsTrashed, m.HasAttachments,
			m.InternalDate,
		).Scan(&id)
		if err != nil {
			return 0, apperr.DatabaseError("bulk upsert message", err)
		}
		m.ID = id
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.DatabaseError("commit bulk upsert", err)
	}
	return count, nil
}

// GetByExternalIDs returns messages keyed by external id.
func (a *MessageAdapter) GetByExternalIDs(ctx context.Context, mailboxID int64, externalIDs []string) (map[string]*domain.Message, error) {
	if len(externalIDs) == 0 {
		return map[string]*domain.Message{}, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE mailbox_id = $1 AND external_id = ANY($2) AND deleted_at IS NULL`,
		messageSelectColumns)

	var rows []messageRow
	if err := a.db.SelectContext(ctx, &rows, query, mailboxID, pq.Array(externalIDs)); err != nil {
		return nil, apperr.DatabaseError("get by external ids", err)
	}

	result := make(map[string]*domain.Message, len(rows))
	for i := range rows {
		m := rows[i].toEntity()
		result[m.ExternalID] = m
	}
	return result, nil
}

// ApplyLabelDelta replaces the labels of one message addressed by
// external id and rederives the mirrored flag columns in SQL.
func (a *MessageAdapter) ApplyLabelDelta(ctx context.Context, mailboxID int64, externalID string, labels []string, columnID *int64) error {
	query := `
		UPDATE messages SET
			labels = $3,
			category = $4,
			is_read = NOT ($5 = ANY($3)),
			is_starred = ($6 = ANY($3)),
			is_archived = NOT ($7 = ANY($3)),
			is_trashed = ($8 = ANY($3)),
			column_id = $9,
			updated_at = NOW()
		WHERE mailbox_id = $1 AND external_id = $2 AND deleted_at IS NULL`

	res, err := a.db.ExecContext(ctx, query,
		mailboxID, externalID, pq.Array(labels), string(domain.DeriveCategory(labels)),
		domain.LabelUnread, domain.LabelStarred, domain.LabelInbox, domain.LabelTrash,
		columnID)
	if err != nil {
		return apperr.DatabaseError("apply label delta", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

// SoftDeleteByExternalIDs marks provider-deleted messages.
func (a *MessageAdapter) SoftDeleteByExternalIDs(ctx context.Context, mailboxID int64, externalIDs []string) (int, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}

	res, err := a.db.ExecContext(ctx, `
		UPDATE messages SET deleted_at = NOW(), updated_at = NOW()
		WHERE mailbox_id = $1 AND external_id = ANY($2) AND deleted_at IS NULL`,
		mailboxID, pq.Array(externalIDs))
	if err != nil {
		return 0, apperr.DatabaseError("soft delete by external ids", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetByID returns one message.
func (a *MessageAdapter) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE id = $1 AND deleted_at IS NULL`, messageSelectColumns)

	var row messageRow
	if err := a.db.QueryRowxContext(ctx, query, id).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("message")
		}
		return nil, apperr.DatabaseError("get message", err)
	}
	return row.toEntity(), nil
}

// List returns filtered messages with the total count in one query.
func (a *MessageAdapter) List(ctx context.Context, filter *domain.MessageFilter) ([]*domain.MessageListItem, int, error) {
	where, args := buildMessageWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total_count
		FROM messages
		%s
		%s
		LIMIT %d OFFSET %d`,
		messageSelectColumns, where, buildMessageOrder(filter), limit, filter.Offset)

	var rows []messageRow
	if err := a.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, apperr.DatabaseError("list messages", err)
	}

	total := 0
	items := make([]*domain.MessageListItem, 0, len(rows))
	for i := range rows {
		total = rows[i].TotalCount
		items = append(items, rows[i].toListItem())
	}
	return items, total, nil
}

func buildMessageWhere(filter *domain.MessageFilter) (string, []interface{}) {
	conds := []string{"mailbox_id = $1", "deleted_at IS NULL", "NOT is_trashed"}
	args := []interface{}{filter.MailboxID}

	next := func() string { return fmt.Sprintf("$%d", len(args)+1) }

	if filter.ColumnID != nil {
		args = append(args, *filter.ColumnID)
		conds = append(conds, "column_id = "+fmt.Sprintf("$%d", len(args)))
	}
	if filter.Category != nil {
		placeholder := next()
		args = append(args, string(*filter.Category))
		conds = append(conds, "category = "+placeholder)
	}
	if filter.IsRead != nil {
		placeholder := next()
		args = append(args, *filter.IsRead)
		conds = append(conds, "is_read = "+placeholder)
	}
	if filter.IsStarred != nil {
		placeholder := next()
		args = append(args, *filter.IsStarred)
		conds = append(conds, "is_starred = "+placeholder)
	}
	if filter.IsArchived != nil {
		placeholder := next()
		args = append(args, *filter.IsArchived)
		conds = append(conds, "is_archived = "+placeholder)
	}
	if filter.IsPinned != nil {
		placeholder := next()
		args = append(args, *filter.IsPinned)
		conds = append(conds, "is_pinned = "+placeholder)
	}
	if filter.HasAttachments != nil {
		placeholder := next()
		args = append(args, *filter.HasAttachments)
		conds = append(conds, "has_attachments = "+placeholder)
	}
	if filter.TaskStatus != nil {
		placeholder := next()
		args = append(args, string(*filter.TaskStatus))
		conds = append(conds, "task_status = "+placeholder)
	}
	if filter.FromEmail != "" {
		placeholder := next()
		args = append(args, filter.FromEmail)
		conds = append(conds, "LOWER(sender_email) = LOWER("+placeholder+")")
	}
	if filter.Label != "" {
		placeholder := next()
		args = append(args, filter.Label)
		conds = append(conds, placeholder+" = ANY(labels)")
	}
	if filter.ExcludeLabel != "" {
		placeholder := next()
		args = append(args, filter.ExcludeLabel)
		conds = append(conds, "NOT ("+placeholder+" = ANY(labels))")
	}
	if filter.Search != "" {
		placeholder := next()
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf(
			"(subject ILIKE %[1]s OR sender_name ILIKE %[1]s OR sender_email ILIKE %[1]s OR snippet ILIKE %[1]s)",
			placeholder))
	}
	if filter.IsSnoozed != nil {
		if *filter.IsSnoozed {
			conds = append(conds, "(snoozed_until IS NOT NULL AND snoozed_until > NOW())")
		} else {
			conds = append(conds, "(snoozed_until IS NULL OR snoozed_until <= NOW())")
		}
	} else if !filter.IncludeSnooze {
		// Snoozed messages are hidden from lists until they wake
		conds = append(conds, "(snoozed_until IS NULL OR snoozed_until <= NOW())")
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

// messageSortColumns whitelists the sortable columns; anything else
// falls back to received time.
var messageSortColumns = map[string]string{
	domain.SortByReceivedAt:  "internal_date",
	domain.SortBySubject:     "subject",
	domain.SortBySenderEmail: "sender_email",
}

func buildMessageOrder(filter *domain.MessageFilter) string {
	col, ok := messageSortColumns[filter.SortBy]
	if !ok {
		col = "internal_date"
	}
	dir := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		dir = "ASC"
	}
	return fmt.Sprintf("ORDER BY %s %s, id DESC", col, dir)
}

// UpdateLabels replaces labels and re-derives flags for one message.
func (a *MessageAdapter) UpdateLabels(ctx context.Context, id int64, labels []string, columnID *int64) error {
	query := `
		UPDATE messages SET
			labels = $2,
			category = $3,
			is_read = NOT ($4 = ANY($2)),
			is_starred = ($5 = ANY($2)),
			is_archived = NOT ($6 = ANY($2)),
			is_trashed = ($7 = ANY($2)),
			column_id = $8,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	res, err := a.db.ExecContext(ctx, query,
		id, pq.Array(labels), string(domain.DeriveCategory(labels)),
		domain.LabelUnread, domain.LabelStarred, domain.LabelInbox, domain.LabelTrash,
		columnID)
	if err != nil {
		return apperr.DatabaseError("update labels", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

// UpdateFlags patches the read/starred/archived flags.
func (a *MessageAdapter) UpdateFlags(ctx context.Context, id int64, isRead, isStarred, isArchived *bool) error {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}

	if isRead != nil {
		args = append(args, *isRead)
		sets = append(sets, fmt.Sprintf("is_read = $%d", len(args)))
	}
	if isStarred != nil {
		args = append(args, *isStarred)
		sets = append(sets, fmt.Sprintf("is_starred = $%d", len(args)))
	}
	if isArchived != nil {
		args = append(args, *isArchived)
		sets = append(sets, fmt.Sprintf("is_archived = $%d", len(args)))
	}

	query := fmt.Sprintf(`UPDATE messages SET %s WHERE id = $1 AND deleted_at IS NULL`, strings.Join(sets, ", "))
	res, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.DatabaseError("update flags", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

// UpdateWorkflow patches local task state. Moving the status back to
// none also clears the deadline.
func (a *MessageAdapter) UpdateWorkflow(ctx context.Context, id int64, w *out.WorkflowPatch) error {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{id}

	if w.IsPinned != nil {
		args = append(args, *w.IsPinned)
		sets = append(sets, fmt.Sprintf("is_pinned = $%d", len(args)))
	}
	if w.TaskStatus != nil {
		args = append(args, string(*w.TaskStatus))
		sets = append(sets, fmt.Sprintf("task_status = $%d", len(args)))
		if *w.TaskStatus == domain.TaskStatusNone {
			sets = append(sets, "task_deadline = NULL")
		}
	}
	if w.TaskDeadline != nil && (w.TaskStatus == nil || *w.TaskStatus != domain.TaskStatusNone) {
		args = append(args, *w.TaskDeadline)
		sets = append(sets, fmt.Sprintf("task_deadline = $%d", len(args)))
	}

	query := fmt.Sprintf(`UPDATE messages SET %s WHERE id = $1 AND deleted_at IS NULL`, strings.Join(sets, ", "))
	res, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.DatabaseError("update workflow", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

// SoftDelete marks one message deleted.
func (a *MessageAdapter) SoftDelete(ctx context.Context, id int64) error {
	res, err := a.db.ExecContext(ctx,
		`UPDATE messages SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return apperr.DatabaseError("soft delete message", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

// BulkSoftDelete marks a batch of messages deleted, scoped to one
// mailbox so a stray id cannot cross accounts.
func (a *MessageAdapter) BulkSoftDelete(ctx context.Context, mailboxID int64, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := a.db.ExecContext(ctx, `
		UPDATE messages SET deleted_at = NOW(), updated_at = NOW()
		WHERE mailbox_id = $1 AND id = ANY($2) AND deleted_at IS NULL`,
		mailboxID, pq.Array(ids))
	if err != nil {
		return 0, apperr.DatabaseError("bulk soft delete", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SetSnooze hides a message until the wake time.
func (a *MessageAdapter) SetSnooze(ctx context.Context, id int64, until time.Time) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE messages SET snoozed_until = $2, is_snooze_returned = FALSE, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, until)
	if err != nil {
		return apperr.DatabaseError("set snooze", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

// ClearSnooze removes a snooze without marking the message returned.
func (a *MessageAdapter) ClearSnooze(ctx context.Context, id int64) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE messages SET snoozed_until = NULL, is_snooze_returned = FALSE, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return apperr.DatabaseError("clear snooze", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

// DueSnoozed returns messages whose snooze has elapsed.
func (a *MessageAdapter) DueSnoozed(ctx context.Context, now time.Time, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE snoozed_until IS NOT NULL AND snoozed_until <= $1 AND deleted_at IS NULL
		ORDER BY snoozed_until ASC
		LIMIT %d`, messageSelectColumns, limit)

	var rows []messageRow
	if err := a.db.SelectContext(ctx, &rows, query, now); err != nil {
		return nil, apperr.DatabaseError("due snoozed", err)
	}

	messages := make([]*domain.Message, len(rows))
	for i := range rows {
		messages[i] = rows[i].toEntity()
	}
	return messages, nil
}

// WakeSnoozed clears elapsed snoozes and flags the messages as just
// returned so the board can surface them.
func (a *MessageAdapter) WakeSnoozed(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := a.db.ExecContext(ctx, `
		UPDATE messages SET snoozed_until = NULL, is_snooze_returned = TRUE, updated_at = NOW()
		WHERE id = ANY($1) AND deleted_at IS NULL`, pq.Array(ids))
	if err != nil {
		return 0, apperr.DatabaseError("wake snoozed", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// MissingEmbeddings returns messages that still need a vector.
func (a *MessageAdapter) MissingEmbeddings(ctx context.Context, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s FROM messages
		WHERE embedding IS NULL AND deleted_at IS NULL AND NOT is_trashed
		ORDER BY internal_date DESC
		LIMIT %d`, messageSelectColumns, limit)

	var rows []messageRow
	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, apperr.DatabaseError("missing embeddings", err)
	}

	messages := make([]*domain.Message, len(rows))
	for i := range rows {
		messages[i] = rows[i].toEntity()
	}
	return messages, nil
}

// UpdateEmbedding stores a message vector.
func (a *MessageAdapter) UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE messages SET embedding = $2::vector, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, vectorLiteral(embedding))
	if err != nil {
		return apperr.DatabaseError("update embedding", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

// UpdateInsights stores the AI summary, urgency and action items.
func (a *MessageAdapter) UpdateInsights(ctx context.Context, id int64, insights *domain.MessageInsights) error {
	var items interface{}
	if len(insights.ActionItems) > 0 {
		raw, err := json.Marshal(insights.ActionItems)
		if err != nil {
			return apperr.InternalWithError(fmt.Errorf("encode action items: %w", err))
		}
		items = raw
	}

	var urgency interface{}
	if insights.Urgency != nil {
		urgency = *insights.Urgency
	}

	res, err := a.db.ExecContext(ctx, `
		UPDATE messages SET summary = $2, urgency = $3, action_items = $4, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, insights.Summary, urgency, items)
	if err != nil {
		return apperr.DatabaseError("update insights", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

// CountByMailbox recomputes denormalized counters from scratch.
// Counters are never maintained by deltas; sync outcomes are too easy
// to double-count.
func (a *MessageAdapter) CountByMailbox(ctx context.Context, mailboxID int64) (int, int, error) {
	var total, unread int
	err := a.db.QueryRowxContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT is_read)
		FROM messages
		WHERE mailbox_id = $1 AND deleted_at IS NULL AND NOT is_trashed`,
		mailboxID).Scan(&total, &unread)
	if err != nil {
		return 0, 0, apperr.DatabaseError("count by mailbox", err)
	}
	return total, unread, nil
}

// StatsByMailbox aggregates the stats endpoint payload in one query.
func (a *MessageAdapter) StatsByMailbox(ctx context.Context, mailboxID int64) (*domain.MailboxStats, error) {
	var row struct {
		Total         int `db:"total"`
		Unread        int `db:"unread"`
		Starred       int `db:"starred"`
		Archived      int `db:"archived"`
		Snoozed       int `db:"snoozed"`
		WithEmbedding int `db:"with_embedding"`
	}

	err := a.db.QueryRowxContext(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE NOT is_read) AS unread,
			COUNT(*) FILTER (WHERE is_starred) AS starred,
			COUNT(*) FILTER (WHERE is_archived) AS archived,
			COUNT(*) FILTER (WHERE snoozed_until IS NOT NULL AND snoozed_until > NOW()) AS snoozed,
			COUNT(*) FILTER (WHERE embedding IS NOT NULL) AS with_embedding
		FROM messages
		WHERE mailbox_id = $1 AND deleted_at IS NULL AND NOT is_trashed`,
		mailboxID).StructScan(&row)
	if err != nil {
		return nil, apperr.DatabaseError("mailbox stats", err)
	}

	stats := &domain.MailboxStats{
		MailboxID:     mailboxID,
		Total:         row.Total,
		Unread:        row.Unread,
		Starred:       row.Starred,
		Archived:      row.Archived,
		Snoozed:       row.Snoozed,
		WithEmbedding: row.WithEmbedding,
		ByCategory:    make(map[string]int),
	}

	catRows, err := a.db.QueryxContext(ctx, `
		SELECT category, COUNT(*) FROM messages
		WHERE mailbox_id = $1 AND deleted_at IS NULL AND NOT is_trashed
		GROUP BY category`, mailboxID)
	if err != nil {
		return nil, apperr.DatabaseError("mailbox category stats", err)
	}
	defer catRows.Close()

	for catRows.Next() {
		var category string
		var count int
		if err := catRows.Scan(&category, &count); err != nil {
			return nil, apperr.DatabaseError("scan category stats", err)
		}
		stats.ByCategory[category] = count
	}

	return stats, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Interface compliance
var _ out.MessageRepository = (*MessageAdapter)(nil)
