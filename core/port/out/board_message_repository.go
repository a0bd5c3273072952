package out

import (
	"context"
	"time"

	"mailboard_server/core/domain"
)

// MessageRepository is the outbound port for message persistence.
type MessageRepository interface {
	// Sync path
	BulkUpsert(ctx context.Context, messages []*domain.Message) (int, error)
	GetByExternalIDs(ctx context.Context, mailboxID int64, externalIDs []string) (map[string]*domain.Message, error)
	ApplyLabelDelta(ctx context.Context, mailboxID int64, externalID string, labels []string, columnID *int64) error
	SoftDeleteByExternalIDs(ctx context.Context, mailboxID int64, externalIDs []string) (int, error)

	// Read path
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	List(ctx context.Context, filter *domain.MessageFilter) ([]*domain.MessageListItem, int, error)

	// Mutations
	UpdateLabels(ctx context.Context, id int64, labels []string, columnID *int64) error
	UpdateFlags(ctx context.Context, id int64, isRead, isStarred, isArchived *bool) error
	UpdateWorkflow(ctx context.Context, id int64, w *WorkflowPatch) error
	SoftDelete(ctx context.Context, id int64) error
	BulkSoftDelete(ctx context.Context, mailboxID int64, ids []int64) (int, error)

	// Snooze
	SetSnooze(ctx context.Context, id int64, until time.Time) error
	ClearSnooze(ctx context.Context, id int64) error
	DueSnoozed(ctx context.Context, now time.Time, limit int) ([]*domain.Message, error)
	WakeSnoozed(ctx context.Context, ids []int64) (int, error)

	// Enrichment
	MissingEmbeddings(ctx context.Context, limit int) ([]*domain.Message, error)
	UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error
	UpdateInsights(ctx context.Context, id int64, insights *domain.MessageInsights) error

	// Search
	FuzzySearch(ctx context.Context, q *FuzzySearchQuery) ([]*ScoredMessage, error)
	SemanticSearch(ctx context.Context, q *SemanticSearchQuery) ([]*ScoredMessage, error)
	SuggestContacts(ctx context.Context, mailboxID int64, fragment string, limit int) ([]domain.ContactSuggestion, error)
	SuggestKeywords(ctx context.Context, mailboxID int64, fragment string, limit int) ([]string, error)

	// Counters
	CountByMailbox(ctx context.Context, mailboxID int64) (total, unread int, err error)
	StatsByMailbox(ctx context.Context, mailboxID int64) (*domain.MailboxStats, error)
}

// WorkflowPatch is a partial update of local task state. Nil fields
// are left unchanged. Setting the status to none clears the deadline.
type WorkflowPatch struct {
	IsPinned     *bool
	TaskStatus   *domain.TaskStatus
	TaskDeadline *time.Time
}

// FuzzySearchQuery parameterizes trigram search. A row is included
// when any in-scope field clears Threshold on its own similarity or
// contains Text verbatim; Weights only blend the ordering score.
type FuzzySearchQuery struct {
	MailboxID int64
	Text      string
	Scope     domain.SearchScope
	Weights   domain.SearchWeights
	Threshold float64
	Limit     int
	Offset    int
}

// SemanticSearchQuery parameterizes vector search.
type SemanticSearchQuery struct {
	MailboxID int64
	Embedding []float32
	MinScore  float64
	Limit     int
	Offset    int
}

// ScoredMessage pairs a list item with its search score.
type ScoredMessage struct {
	Item  *domain.MessageListItem
	Score float64
}
