package domain

import (
	"strings"
	"time"
)

// Gmail system labels the board cares about.
const (
	LabelInbox     = "INBOX"
	LabelUnread    = "UNREAD"
	LabelStarred   = "STARRED"
	LabelImportant = "IMPORTANT"
	LabelTrash     = "TRASH"
	LabelSpam      = "SPAM"
	LabelSent      = "SENT"
	LabelDraft     = "DRAFT"
)

// Category buckets a message the way Gmail tabs do.
type Category string

const (
	CategoryPrimary    Category = "primary"
	CategorySocial     Category = "social"
	CategoryPromotions Category = "promotions"
	CategoryUpdates    Category = "updates"
	CategoryForums     Category = "forums"
)

var categoryLabels = map[string]Category{
	"CATEGORY_PERSONAL":   CategoryPrimary,
	"CATEGORY_SOCIAL":     CategorySocial,
	"CATEGORY_PROMOTIONS": CategoryPromotions,
	"CATEGORY_UPDATES":    CategoryUpdates,
	"CATEGORY_FORUMS":     CategoryForums,
}

// DeriveCategory maps provider labels to a category. Messages without
// a CATEGORY_* label land in primary.
func DeriveCategory(labels []string) Category {
	for _, l := range labels {
		if c, ok := categoryLabels[l]; ok {
			return c
		}
	}
	return CategoryPrimary
}

// TaskStatus tracks a message through the board's task workflow. It is
// local state only and never mirrored to provider labels.
type TaskStatus string

const (
	TaskStatusNone       TaskStatus = "none"
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusNone, TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// HasLabel reports whether labels contains the given label id.
func HasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// ApplyLabelDelta returns labels with removed taken out and added put
// in, without duplicates. The input slice is not mutated.
func ApplyLabelDelta(labels, added, removed []string) []string {
	drop := make(map[string]bool, len(removed))
	for _, l := range removed {
		drop[l] = true
	}

	out := make([]string, 0, len(labels)+len(added))
	seen := make(map[string]bool, len(labels)+len(added))
	for _, l := range labels {
		if drop[l] || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	for _, l := range added {
		if drop[l] || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// Message is a synced email.
type Message struct {
	ID         int64  `json:"id"`
	MailboxID  int64  `json:"mailbox_id"`
	ExternalID string `json:"external_id"`
	ThreadID   string `json:"thread_id,omitempty"`

	Subject     string   `json:"subject"`
	SenderName  string   `json:"sender_name,omitempty"`
	SenderEmail string   `json:"sender_email"`
	Recipients  []string `json:"recipients,omitempty"`
	CcAddresses []string `json:"cc_addresses,omitempty"`
	Snippet     string   `json:"snippet,omitempty"`
	BodyHTML    string   `json:"body_html,omitempty"`
	BodyText    string   `json:"body_text,omitempty"`

	Labels   []string `json:"labels"`
	Category Category `json:"category"`
	ColumnID *int64   `json:"column_id,omitempty"`

	IsRead         bool `json:"is_read"`
	IsStarred      bool `json:"is_starred"`
	IsArchived     bool `json:"is_archived"`
	IsTrashed      bool `json:"is_trashed"`
	HasAttachments bool `json:"has_attachments"`

	SnoozedUntil     *time.Time `json:"snoozed_until,omitempty"`
	IsSnoozeReturned bool       `json:"is_snooze_returned,omitempty"`

	IsPinned     bool       `json:"is_pinned"`
	TaskStatus   TaskStatus `json:"task_status"`
	TaskDeadline *time.Time `json:"task_deadline,omitempty"`

	Summary      string       `json:"summary,omitempty"`
	Urgency      *int         `json:"urgency,omitempty"`
	ActionItems  []ActionItem `json:"action_items,omitempty"`
	HasEmbedding bool         `json:"has_embedding"`

	InternalDate time.Time  `json:"internal_date"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"-"`
}

// ActionItem is a single follow-up extracted from a message by the
// AI analysis pass.
type ActionItem struct {
	Text    string `json:"text"`
	DueDate string `json:"due_date,omitempty"`
}

// MessageInsights is the AI analysis of one message. Urgency runs
// 0 to 10; nil means the model gave no usable score.
type MessageInsights struct {
	Summary     string       `json:"summary"`
	Urgency     *int         `json:"urgency,omitempty"`
	ActionItems []ActionItem `json:"action_items,omitempty"`
}

// SyncFlagsFromLabels rederives the boolean flags and category that
// mirror provider labels. Called after every label change.
func (m *Message) SyncFlagsFromLabels() {
	m.IsRead = !HasLabel(m.Labels, LabelUnread)
	m.IsStarred = HasLabel(m.Labels, LabelStarred)
	m.IsArchived = !HasLabel(m.Labels, LabelInbox)
	m.IsTrashed = HasLabel(m.Labels, LabelTrash)
	m.Category = DeriveCategory(m.Labels)
}

// IsSnoozed reports whether the message is hidden until a wake time.
func (m *Message) IsSnoozed(now time.Time) bool {
	return m.SnoozedUntil != nil && m.SnoozedUntil.After(now)
}

// MessageListItem is the trimmed shape returned by list endpoints.
type MessageListItem struct {
	ID               int64      `json:"id"`
	MailboxID        int64      `json:"mailbox_id"`
	ExternalID       string     `json:"external_id"`
	ThreadID         string     `json:"thread_id,omitempty"`
	Subject          string     `json:"subject"`
	SenderName       string     `json:"sender_name,omitempty"`
	SenderEmail      string     `json:"sender_email"`
	Snippet          string     `json:"snippet,omitempty"`
	Category         Category   `json:"category"`
	ColumnID         *int64     `json:"column_id,omitempty"`
	IsRead           bool       `json:"is_read"`
	IsStarred        bool       `json:"is_starred"`
	IsArchived       bool       `json:"is_archived"`
	HasAttachments   bool       `json:"has_attachments"`
	SnoozedUntil     *time.Time `json:"snoozed_until,omitempty"`
	IsSnoozeReturned bool       `json:"is_snooze_returned,omitempty"`
	IsPinned         bool       `json:"is_pinned"`
	TaskStatus       TaskStatus `json:"task_status"`
	TaskDeadline     *time.Time `json:"task_deadline,omitempty"`
	Urgency          *int       `json:"urgency,omitempty"`
	InternalDate     time.Time  `json:"internal_date"`
}

// ToListItem converts a full message to its list shape.
func (m *Message) ToListItem() *MessageListItem {
	return &MessageListItem{
		ID:               m.ID,
		MailboxID:        m.MailboxID,
		ExternalID:       m.ExternalID,
		ThreadID:         m.ThreadID,
		Subject:          m.Subject,
		SenderName:       m.SenderName,
		SenderEmail:      m.SenderEmail,
		Snippet:          m.Snippet,
		Category:         m.Category,
		ColumnID:         m.ColumnID,
		IsRead:           m.IsRead,
		IsStarred:        m.IsStarred,
		IsArchived:       m.IsArchived,
		HasAttachments:   m.HasAttachments,
		SnoozedUntil:     m.SnoozedUntil,
		IsSnoozeReturned: m.IsSnoozeReturned,
		IsPinned:         m.IsPinned,
		TaskStatus:       m.TaskStatus,
		TaskDeadline:     m.TaskDeadline,
		Urgency:          m.Urgency,
		InternalDate:     m.InternalDate,
	}
}

// Sort fields accepted by message list queries.
const (
	SortByReceivedAt  = "received_at"
	SortBySubject     = "subject"
	SortBySenderEmail = "sender_email"
)

// MessageFilter narrows list queries. Search matches subject, sender
// and snippet with a contains lookup; Label and ExcludeLabel test
// provider label membership.
type MessageFilter struct {
	MailboxID      int64
	ColumnID       *int64
	Category       *Category
	IsRead         *bool
	IsStarred      *bool
	IsArchived     *bool
	IsPinned       *bool
	IsSnoozed      *bool
	HasAttachments *bool
	TaskStatus     *TaskStatus
	Search         string
	FromEmail      string
	Label          string
	ExcludeLabel   string
	IncludeSnooze  bool
	SortBy         string
	SortOrder      string
	Limit          int
	Offset         int
}

// Attachment is metadata for a message part; content stays at the
// provider and is fetched on demand.
type Attachment struct {
	ID         int64  `json:"id"`
	MessageID  int64  `json:"message_id"`
	ExternalID string `json:"external_id"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
}

// OutgoingMessage is a send request.
type OutgoingMessage struct {
	To         []string
	Cc         []string
	Bcc        []string
	Subject    string
	BodyText   string
	BodyHTML   string
	InReplyTo  string // Message-ID header of the message being replied to
	References string
	ThreadID   string
}

// MaxOutgoingSize caps raw outgoing messages at 25 MiB, the Gmail limit.
const MaxOutgoingSize = 25 << 20

// Validate checks an outgoing message before it hits the provider.
func (o *OutgoingMessage) Validate() error {
	if len(o.To) == 0 {
		return ErrNoRecipients
	}
	if strings.TrimSpace(o.Subject) == "" && o.BodyText == "" && o.BodyHTML == "" {
		return ErrEmptyMessage
	}
	return nil
}
