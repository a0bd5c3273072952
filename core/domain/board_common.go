package domain

import "errors"

// Domain sentinel errors.
var (
	ErrNoRecipients    = errors.New("outgoing message has no recipients")
	ErrEmptyMessage    = errors.New("outgoing message has no subject or body")
	ErrSnoozeInPast    = errors.New("snooze time must be in the future")
	ErrDefaultColumn   = errors.New("default columns cannot be deleted")
	ErrDuplicateColumn = errors.New("a column with this name already exists")
	ErrReorderMismatch = errors.New("reorder list must contain every column exactly once")
	ErrMessageTooLarge = errors.New("outgoing message exceeds the size limit")
	ErrMailboxNotIdle  = errors.New("mailbox sync already in progress")
	ErrCursorInvalid   = errors.New("sync cursor is no longer valid")
)
