package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/pkg/apperr"
	"mailboard_server/pkg/crypto"
	"mailboard_server/pkg/logger"

	"github.com/jmoiron/sqlx"
)

const mailboxSelectColumns = `
	id, user_id, address, provider, sync_status, sync_phase, sync_error,
	history_cursor, sync_started_at, last_sync_at, retry_count, next_retry_at,
	access_token, refresh_token, token_expiry, total_count, unread_count,
	created_at, updated_at, deleted_at`

// MailboxAdapter implements out.MailboxRepository using PostgreSQL.
// OAuth tokens are sealed with the secret box on write and opened on
// read; plaintext token material never reaches the database.
type MailboxAdapter struct {
	db *sqlx.DB
}

// NewMailboxAdapter creates a new MailboxAdapter.
func NewMailboxAdapter(db *sqlx.DB) *MailboxAdapter {
	return &MailboxAdapter{db: db}
}

type mailboxRow struct {
	ID            int64          `db:"id"`
	UserID        int64          `db:"user_id"`
	Address       string         `db:"address"`
	Provider      string         `db:"provider"`
	SyncStatus    string         `db:"sync_status"`
	SyncPhase     sql.NullString `db:"sync_phase"`
	SyncError     sql.NullString `db:"sync_error"`
	HistoryCursor sql.NullString `db:"history_cursor"`
	SyncStartedAt sql.NullTime   `db:"sync_started_at"`
	LastSyncAt    sql.NullTime   `db:"last_sync_at"`
	RetryCount    int            `db:"retry_count"`
	NextRetryAt   sql.NullTime   `db:"next_retry_at"`
	AccessToken   sql.NullString `db:"access_token"`
	RefreshToken  sql.NullString `db:"refresh_token"`
	TokenExpiry   sql.NullTime   `db:"token_expiry"`
	TotalCount    int            `db:"total_count"`
	UnreadCount   int            `db:"unread_count"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	DeletedAt     sql.NullTime   `db:"deleted_at"`
}

func (r *mailboxRow) toEntity() *domain.Mailbox {
	m := &domain.Mailbox{
		ID:            r.ID,
		UserID:        r.UserID,
		Address:       r.Address,
		Provider:      domain.Provider(r.Provider),
		SyncStatus:    domain.SyncStatus(r.SyncStatus),
		SyncPhase:     domain.SyncPhase(r.SyncPhase.String),
		SyncError:     r.SyncError.String,
		HistoryCursor: r.HistoryCursor.String,
		RetryCount:    r.RetryCount,
		TotalCount:    r.TotalCount,
		UnreadCount:   r.UnreadCount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.SyncStartedAt.Valid {
		t := r.SyncStartedAt.Time
		m.SyncStartedAt = &t
	}
	if r.LastSyncAt.Valid {
		t := r.LastSyncAt.Time
		m.LastSyncAt = &t
	}
	if r.NextRetryAt.Valid {
		t := r.NextRetryAt.Time
		m.NextRetryAt = &t
	}
	if r.TokenExpiry.Valid {
		t := r.TokenExpiry.Time
		m.TokenExpiry = &t
	}
	if r.DeletedAt.Valid {
		t := r.DeletedAt.Time
		m.DeletedAt = &t
	}

	m.AccessToken = openToken(r.ID, "access_token", r.AccessToken.String)
	m.RefreshToken = openToken(r.ID, "refresh_token", r.RefreshToken.String)
	return m
}

// openToken decrypts a sealed token column. A value that fails to open
// is treated as absent so a bad row degrades to re-auth instead of
// breaking every read of the mailbox.
func openToken(mailboxID int64, column, sealed string) string {
	if sealed == "" {
		return ""
	}
	plain, err := crypto.DecryptToken(sealed)
	if err != nil {
		logger.WithMailbox(mailboxID).WithField("column", column).WithError(err).
			Error("Failed to open sealed token")
		return ""
	}
	return plain
}

func sealToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	return crypto.EncryptToken(token)
}

// Create inserts a mailbox with sealed tokens.
func (a *MailboxAdapter) Create(ctx context.Context, mailbox *domain.Mailbox) (*domain.Mailbox, error) {
	access, err := sealToken(mailbox.AccessToken)
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}
	refresh, err := sealToken(mailbox.RefreshToken)
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}

	query := `
		INSERT INTO mailboxes (
			user_id, address, provider, sync_status,
			access_token, refresh_token, token_expiry,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	row := a.db.QueryRowxContext(ctx, query,
		mailbox.UserID, mailbox.Address, string(mailbox.Provider),
		string(domain.SyncStatusIdle),
		nullString(access), nullString(refresh), mailbox.TokenExpiry)
	if err := row.Scan(&mailbox.ID, &mailbox.CreatedAt, &mailbox.UpdatedAt); err != nil {
		return nil, apperr.DatabaseError("create mailbox", err)
	}
	mailbox.SyncStatus = domain.SyncStatusIdle
	return mailbox, nil
}

// GetByID returns one mailbox with opened tokens.
func (a *MailboxAdapter) GetByID(ctx context.Context, id int64) (*domain.Mailbox, error) {
	var row mailboxRow
	err := a.db.QueryRowxContext(ctx,
		`SELECT `+mailboxSelectColumns+` FROM mailboxes WHERE id = $1 AND deleted_at IS NULL`, id).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("mailbox")
		}
		return nil, apperr.DatabaseError("get mailbox", err)
	}
	return row.toEntity(), nil
}

// GetByAddress returns a user's mailbox by email address.
func (a *MailboxAdapter) GetByAddress(ctx context.Context, userID int64, address string) (*domain.Mailbox, error) {
	var row mailboxRow
	err := a.db.QueryRowxContext(ctx,
		`SELECT `+mailboxSelectColumns+` FROM mailboxes
		WHERE user_id = $1 AND LOWER(address) = LOWER($2) AND deleted_at IS NULL`,
		userID, address).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("mailbox")
		}
		return nil, apperr.DatabaseError("get mailbox by address", err)
	}
	return row.toEntity(), nil
}

// ListByUser returns all mailboxes of a user.
func (a *MailboxAdapter) ListByUser(ctx context.Context, userID int64) ([]*domain.Mailbox, error) {
	var rows []mailboxRow
	err := a.db.SelectContext(ctx, &rows,
		`SELECT `+mailboxSelectColumns+` FROM mailboxes WHERE user_id = $1 AND deleted_at IS NULL ORDER BY id`, userID)
	if err != nil {
		return nil, apperr.DatabaseError("list mailboxes", err)
	}
	return rowsToMailboxes(rows), nil
}

// ListAll returns every mailbox, for the background schedulers.
func (a *MailboxAdapter) ListAll(ctx context.Context) ([]*domain.Mailbox, error) {
	var rows []mailboxRow
	err := a.db.SelectContext(ctx, &rows,
		`SELECT `+mailboxSelectColumns+` FROM mailboxes WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, apperr.DatabaseError("list all mailboxes", err)
	}
	return rowsToMailboxes(rows), nil
}

// Delete marks a mailbox deleted. The row keeps its messages and
// columns so a reconnect of the same address starts clean without
// destroying history, and the partial unique index on live rows frees
// the address for a new connection.
func (a *MailboxAdapter) Delete(ctx context.Context, id int64) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE mailboxes SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return apperr.DatabaseError("delete mailbox", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("mailbox")
	}
	return nil
}

// UpdateTokens seals and stores refreshed token material.
func (a *MailboxAdapter) UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiry *time.Time) error {
	access, err := sealToken(accessToken)
	if err != nil {
		return apperr.InternalWithError(err)
	}
	refresh, err := sealToken(refreshToken)
	if err != nil {
		return apperr.InternalWithError(err)
	}

	res, err := a.db.ExecContext(ctx, `
		UPDATE mailboxes SET
			access_token = $2,
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			token_expiry = $4,
			updated_at = NOW()
		WHERE id = $1`,
		id, access, refresh, expiry)
	if err != nil {
		return apperr.DatabaseError("update tokens", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("mailbox")
	}
	return nil
}

// ExpiringTokens returns mailboxes whose access token expires before
// the deadline, or has no recorded expiry.
func (a *MailboxAdapter) ExpiringTokens(ctx context.Context, deadline time.Time) ([]*domain.Mailbox, error) {
	var rows []mailboxRow
	err := a.db.SelectContext(ctx, &rows, `
		SELECT `+mailboxSelectColumns+` FROM mailboxes
		WHERE deleted_at IS NULL AND refresh_token IS NOT NULL
			AND (token_expiry IS NULL OR token_expiry < $1)
		ORDER BY token_expiry ASC NULLS FIRST`, deadline)
	if err != nil {
		return nil, apperr.DatabaseError("expiring tokens", err)
	}
	return rowsToMailboxes(rows), nil
}

// BeginSync atomically flips the mailbox into the syncing state. It
// returns false when the mailbox is already syncing, which is the
// single-flight guard for the whole sync pipeline.
func (a *MailboxAdapter) BeginSync(ctx context.Context, id int64, phase domain.SyncPhase, startedAt time.Time) (bool, error) {
	res, err := a.db.ExecContext(ctx, `
		UPDATE mailboxes SET
			sync_status = $2,
			sync_phase = $3,
			sync_error = NULL,
			sync_started_at = $4,
			next_retry_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND sync_status IN ($5, $6, $7)`,
		id, string(domain.SyncStatusSyncing), string(phase), startedAt,
		string(domain.SyncStatusIdle), string(domain.SyncStatusError), string(domain.SyncStatusRetryScheduled))
	if err != nil {
		return false, apperr.DatabaseError("begin sync", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.DatabaseError("begin sync", err)
	}
	return n == 1, nil
}

// FinishSync records a successful sync and resets retry state.
func (a *MailboxAdapter) FinishSync(ctx context.Context, id int64, cursor string, syncedAt time.Time) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE mailboxes SET
			sync_status = $2,
			sync_phase = NULL,
			sync_error = NULL,
			history_cursor = $3,
			sync_started_at = NULL,
			last_sync_at = $4,
			retry_count = 0,
			next_retry_at = NULL,
			updated_at = NOW()
		WHERE id = $1`,
		id, string(domain.SyncStatusIdle), nullString(cursor), syncedAt)
	if err != nil {
		return apperr.DatabaseError("finish sync", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("mailbox")
	}
	return nil
}

// FailSync records a terminal sync failure.
func (a *MailboxAdapter) FailSync(ctx context.Context, id int64, syncErr string) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE mailboxes SET
			sync_status = $2,
			sync_error = $3,
			sync_started_at = NULL,
			next_retry_at = NULL,
			updated_at = NOW()
		WHERE id = $1`,
		id, string(domain.SyncStatusError), syncErr)
	if err != nil {
		return apperr.DatabaseError("fail sync", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("mailbox")
	}
	return nil
}

// ScheduleRetry records a retryable failure with its backoff deadline.
func (a *MailboxAdapter) ScheduleRetry(ctx context.Context, id int64, syncErr string, retryCount int, nextRetryAt time.Time) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE mailboxes SET
			sync_status = $2,
			sync_error = $3,
			sync_started_at = NULL,
			retry_count = $4,
			next_retry_at = $5,
			updated_at = NOW()
		WHERE id = $1`,
		id, string(domain.SyncStatusRetryScheduled), syncErr, retryCount, nextRetryAt)
	if err != nil {
		return apperr.DatabaseError("schedule retry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("mailbox")
	}
	return nil
}

// ResetSync returns a mailbox to idle with phase, error and retry
// state cleared. Unlike FailSync it records nothing, so an abandoned
// sync just becomes eligible to run again.
func (a *MailboxAdapter) ResetSync(ctx context.Context, id int64) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE mailboxes SET
			sync_status = $2,
			sync_phase = NULL,
			sync_error = NULL,
			sync_started_at = NULL,
			next_retry_at = NULL,
			updated_at = NOW()
		WHERE id = $1`,
		id, string(domain.SyncStatusIdle))
	if err != nil {
		return apperr.DatabaseError("reset sync", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("mailbox")
	}
	return nil
}

// ClearCursor drops the history cursor, forcing the next sync to run
// the full resync path.
func (a *MailboxAdapter) ClearCursor(ctx context.Context, id int64) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE mailboxes SET history_cursor = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return apperr.DatabaseError("clear cursor", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("mailbox")
	}
	return nil
}

// RetryDue returns mailboxes whose scheduled retry has become due.
func (a *MailboxAdapter) RetryDue(ctx context.Context, now time.Time) ([]*domain.Mailbox, error) {
	var rows []mailboxRow
	err := a.db.SelectContext(ctx, &rows, `
		SELECT `+mailboxSelectColumns+` FROM mailboxes
		WHERE sync_status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2
			AND deleted_at IS NULL
		ORDER BY next_retry_at ASC`,
		string(domain.SyncStatusRetryScheduled), now)
	if err != nil {
		return nil, apperr.DatabaseError("retry due", err)
	}
	return rowsToMailboxes(rows), nil
}

// StuckSyncing returns mailboxes that have been syncing since before
// the cutoff. The watchdog resets them back to idle.
func (a *MailboxAdapter) StuckSyncing(ctx context.Context, cutoff time.Time) ([]*domain.Mailbox, error) {
	var rows []mailboxRow
	err := a.db.SelectContext(ctx, &rows, `
		SELECT `+mailboxSelectColumns+` FROM mailboxes
		WHERE sync_status = $1 AND sync_started_at IS NOT NULL AND sync_started_at < $2
			AND deleted_at IS NULL`,
		string(domain.SyncStatusSyncing), cutoff)
	if err != nil {
		return nil, apperr.DatabaseError("stuck syncing", err)
	}
	return rowsToMailboxes(rows), nil
}

// UpdateCounters stores recomputed message counters.
func (a *MailboxAdapter) UpdateCounters(ctx context.Context, id int64, total, unread int) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE mailboxes SET total_count = $2, unread_count = $3, updated_at = NOW() WHERE id = $1`,
		id, total, unread)
	if err != nil {
		return apperr.DatabaseError("update counters", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("mailbox")
	}
	return nil
}

func rowsToMailboxes(rows []mailboxRow) []*domain.Mailbox {
	mailboxes := make([]*domain.Mailbox, len(rows))
	for i := range rows {
		mailboxes[i] = rows[i].toEntity()
	}
	return mailboxes
}

// Interface compliance
var _ out.MailboxRepository = (*MailboxAdapter)(nil)
