package out

import (
	"context"
	"time"

	"mailboard_server/core/domain"
)

// MailboxRepository is the outbound port for mailbox persistence.
// Token material crosses this boundary in plaintext; the adapter seals
// and opens it with the secret box.
type MailboxRepository interface {
	Create(ctx context.Context, mailbox *domain.Mailbox) (*domain.Mailbox, error)
	GetByID(ctx context.Context, id int64) (*domain.Mailbox, error)
	GetByAddress(ctx context.Context, userID int64, address string) (*domain.Mailbox, error)
	ListByUser(ctx context.Context, userID int64) ([]*domain.Mailbox, error)
	ListAll(ctx context.Context) ([]*domain.Mailbox, error)
	Delete(ctx context.Context, id int64) error

	// Tokens
	UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiry *time.Time) error
	ExpiringTokens(ctx context.Context, deadline time.Time) ([]*domain.Mailbox, error)

	// Sync state. BeginSync flips idle/error to syncing atomically and
	// reports false when another sync already holds the mailbox.
	BeginSync(ctx context.Context, id int64, phase domain.SyncPhase, startedAt time.Time) (bool, error)
	FinishSync(ctx context.Context, id int64, cursor string, syncedAt time.Time) error
	FailSync(ctx context.Context, id int64, syncErr string) error
	ScheduleRetry(ctx context.Context, id int64, syncErr string, retryCount int, nextRetryAt time.Time) error
	// ResetSync returns a mailbox to idle, clearing phase, error and
	// retry state. Used by the watchdog on abandoned syncs.
	ResetSync(ctx context.Context, id int64) error
	ClearCursor(ctx context.Context, id int64) error
	RetryDue(ctx context.Context, now time.Time) ([]*domain.Mailbox, error)
	StuckSyncing(ctx context.Context, cutoff time.Time) ([]*domain.Mailbox, error)
	UpdateCounters(ctx context.Context, id int64, total, unread int) error
}

// UserRepository is the outbound port for user persistence.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetOrCreateByEmail(ctx context.Context, email, name string) (*domain.User, error)
}
