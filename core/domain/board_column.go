package domain

import "time"

// ColumnKind separates smart columns, whose membership is derived from
// system labels, from managed columns, which mirror a provider label
// created by the board.
type ColumnKind string

const (
	ColumnKindSmart   ColumnKind = "smart"
	ColumnKindManaged ColumnKind = "managed"
)

// Column is one lane of the Kanban board.
type Column struct {
	ID        int64      `json:"id"`
	MailboxID int64      `json:"mailbox_id"`
	Name      string     `json:"name"`
	Kind      ColumnKind `json:"kind"`

	// OrderIndex is dense: columns of a mailbox always cover 0..N-1.
	OrderIndex int  `json:"order_index"`
	IsDefault  bool `json:"is_default"`

	// SmartLabel is the system label that defines membership of a
	// smart column (INBOX, IMPORTANT, STARRED).
	SmartLabel string `json:"smart_label,omitempty"`

	// ProviderLabelID is the id of the mirrored provider label of a
	// managed column, empty until the label has been created.
	ProviderLabelID string `json:"provider_label_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsManaged reports whether the column mirrors a provider label.
func (c *Column) IsManaged() bool {
	return c.Kind == ColumnKindManaged
}

// ProviderLabelName returns the label name used for the mirror label
// of a managed column.
func (c *Column) ProviderLabelName() string {
	return "Mailboard/" + c.Name
}

// DefaultColumnSpec describes one seeded column.
type DefaultColumnSpec struct {
	Name       string
	Kind       ColumnKind
	SmartLabel string
	IsDefault  bool
}

// DefaultColumns are seeded for every new mailbox, in board order.
// The first three are smart views over system labels and cannot be
// removed; the workflow lanes are ordinary managed columns the user
// may rename or delete.
var DefaultColumns = []DefaultColumnSpec{
	{Name: "Inbox", Kind: ColumnKindSmart, SmartLabel: LabelInbox, IsDefault: true},
	{Name: "Important", Kind: ColumnKindSmart, SmartLabel: LabelImportant, IsDefault: true},
	{Name: "Starred", Kind: ColumnKindSmart, SmartLabel: LabelStarred, IsDefault: true},
	{Name: "To Do", Kind: ColumnKindManaged},
	{Name: "In Progress", Kind: ColumnKindManaged},
	{Name: "Done", Kind: ColumnKindManaged},
}

// IsDefaultColumnName reports whether name collides with a seeded column.
func IsDefaultColumnName(name string) bool {
	for _, spec := range DefaultColumns {
		if spec.Name == name {
			return true
		}
	}
	return false
}
