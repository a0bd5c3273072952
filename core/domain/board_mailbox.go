package domain

import "time"

// Provider identifies the mail backend of a mailbox.
type Provider string

const (
	ProviderGmail Provider = "gmail"
)

// SyncStatus is the mailbox sync state machine:
//
//	idle → syncing → idle      (success)
//	idle → syncing → error     (failure, maybe retry_scheduled)
//
// At most one sync runs per mailbox at any time.
type SyncStatus string

const (
	SyncStatusIdle           SyncStatus = "idle"
	SyncStatusSyncing        SyncStatus = "syncing"
	SyncStatusError          SyncStatus = "error"
	SyncStatusRetryScheduled SyncStatus = "retry_scheduled"
)

// SyncPhase distinguishes what kind of sync is running.
type SyncPhase string

const (
	SyncPhaseFull        SyncPhase = "full"
	SyncPhaseIncremental SyncPhase = "incremental"
)

// MaxSyncRetries bounds automatic retries for a failed sync.
const MaxSyncRetries = 3

// RetryDelays holds backoff delays indexed by retry count.
var RetryDelays = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	900 * time.Second,
}

// GetRetryDelay returns the backoff delay for the given retry count.
func GetRetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(RetryDelays) {
		return RetryDelays[len(RetryDelays)-1]
	}
	return RetryDelays[retryCount]
}

// Mailbox is a connected email account.
type Mailbox struct {
	ID       int64    `json:"id"`
	UserID   int64    `json:"user_id"`
	Address  string   `json:"address"`
	Provider Provider `json:"provider"`

	// Sync state
	SyncStatus    SyncStatus `json:"sync_status"`
	SyncPhase     SyncPhase  `json:"sync_phase,omitempty"`
	SyncError     string     `json:"sync_error,omitempty"`
	HistoryCursor string     `json:"-"`
	SyncStartedAt *time.Time `json:"sync_started_at,omitempty"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`

	// Retry state
	RetryCount  int        `json:"retry_count"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	// OAuth token material, stored sealed, never serialized out
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	TokenExpiry  *time.Time `json:"-"`

	// Denormalized counters, recomputed from messages after every sync
	TotalCount  int `json:"total_count"`
	UnreadCount int `json:"unread_count"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// CanRetry reports whether another automatic retry is allowed.
func (m *Mailbox) CanRetry() bool {
	return m.RetryCount < MaxSyncRetries
}

// NeedsRetry reports whether a scheduled retry is due.
func (m *Mailbox) NeedsRetry(now time.Time) bool {
	if m.SyncStatus != SyncStatusRetryScheduled {
		return false
	}
	return m.NextRetryAt != nil && now.After(*m.NextRetryAt)
}

// TokenExpiringWithin reports whether the access token expires inside
// the given horizon. A missing expiry counts as expiring.
func (m *Mailbox) TokenExpiringWithin(now time.Time, horizon time.Duration) bool {
	if m.TokenExpiry == nil {
		return true
	}
	return m.TokenExpiry.Before(now.Add(horizon))
}

// MailboxStats summarizes a mailbox for the stats endpoint.
type MailboxStats struct {
	MailboxID     int64          `json:"mailbox_id"`
	Total         int            `json:"total"`
	Unread        int            `json:"unread"`
	Starred       int            `json:"starred"`
	Archived      int            `json:"archived"`
	Snoozed       int            `json:"snoozed"`
	WithEmbedding int            `json:"with_embedding"`
	ByCategory    map[string]int `json:"by_category"`
}
