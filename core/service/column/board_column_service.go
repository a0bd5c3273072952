// Package column manages the Kanban board layout of a mailbox.
package column

import (
	"context"
	"strings"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/in"
	"mailboard_server/core/port/out"
	"mailboard_server/core/service/auth"
	"mailboard_server/pkg/apperr"
	"mailboard_server/pkg/logger"
)

const maxColumnNameLen = 60

// Service implements in.ColumnService. Managed columns mirror a
// provider label named "Mailboard/<name>"; the label is created lazily
// and its id recorded on the column.
type Service struct {
	columnRepo  out.ColumnRepository
	mailboxRepo out.MailboxRepository
	provider    out.MailProvider
	tokens      *auth.TokenService
}

// NewService creates a new column Service.
func NewService(
	columnRepo out.ColumnRepository,
	mailboxRepo out.MailboxRepository,
	provider out.MailProvider,
	tokens *auth.TokenService,
) *Service {
	return &Service{
		columnRepo:  columnRepo,
		mailboxRepo: mailboxRepo,
		provider:    provider,
		tokens:      tokens,
	}
}

// SeedDefaults creates the six starter columns for a new mailbox.
// Only the smart views are marked default; the workflow lanes behave
// like user-created columns. Idempotent: existing columns are left
// alone.
func (s *Service) SeedDefaults(ctx context.Context, mailboxID int64) error {
	existing, err := s.columnRepo.ListByMailbox(ctx, mailboxID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for index, spec := range domain.DefaultColumns {
		col := &domain.Column{
			MailboxID:  mailboxID,
			Name:       spec.Name,
			Kind:       spec.Kind,
			OrderIndex: index,
			IsDefault:  spec.IsDefault,
			SmartLabel: spec.SmartLabel,
		}
		if _, err := s.columnRepo.Create(ctx, col); err != nil {
			return err
		}
	}

	logger.WithMailbox(mailboxID).Info("Seeded default columns")
	return nil
}

// List returns the columns of a mailbox in board order.
func (s *Service) List(ctx context.Context, userID, mailboxID int64) ([]*domain.Column, error) {
	if err := s.checkMailboxOwner(ctx, userID, mailboxID); err != nil {
		return nil, err
	}
	return s.columnRepo.ListByMailbox(ctx, mailboxID)
}

// Create adds a managed column at the end of the board and mirrors it
// as a provider label.
func (s *Service) Create(ctx context.Context, userID, mailboxID int64, name string) (*domain.Column, error) {
	name = strings.TrimSpace(name)
	if err := validateColumnName(name); err != nil {
		return nil, err
	}

	mailbox, err := s.mailboxRepo.GetByID(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	if mailbox.UserID != userID {
		return nil, apperr.NotFound("mailbox")
	}

	if _, err := s.columnRepo.GetByName(ctx, mailboxID, name); err == nil {
		return nil, apperr.Conflict(domain.ErrDuplicateColumn.Error())
	}

	nextIndex, err := s.columnRepo.NextOrderIndex(ctx, mailboxID)
	if err != nil {
		return nil, err
	}

	col := &domain.Column{
		MailboxID:  mailboxID,
		Name:       name,
		Kind:       domain.ColumnKindManaged,
		OrderIndex: nextIndex,
	}
	col, err = s.columnRepo.Create(ctx, col)
	if err != nil {
		return nil, err
	}

	// Label creation is best-effort; the sync path retries through
	// ensureProviderLabel before first use.
	if err := s.ensureProviderLabel(ctx, mailbox, col); err != nil {
		logger.WithMailbox(mailboxID).WithField("column", col.Name).WithError(err).
			Warn("Failed to create mirror label, will retry on first move")
	}

	return col, nil
}

// Rename renames a managed column and its mirror label. Smart columns
// and the label names of already-mirrored labels cannot drift apart,
// so the provider label is renamed through EnsureLabel on the new name
// and rebound.
func (s *Service) Rename(ctx context.Context, userID, columnID int64, name string) (*domain.Column, error) {
	name = strings.TrimSpace(name)
	if err := validateColumnName(name); err != nil {
		return nil, err
	}

	col, mailbox, err := s.getOwnedColumn(ctx, userID, columnID)
	if err != nil {
		return nil, err
	}
	if col.IsDefault {
		return nil, apperr.BadRequest("default columns cannot be renamed")
	}
	if col.Name == name {
		return col, nil
	}

	if _, err := s.columnRepo.GetByName(ctx, col.MailboxID, name); err == nil {
		return nil, apperr.Conflict(domain.ErrDuplicateColumn.Error())
	}

	col.Name = name
	col.ProviderLabelID = "" // rebind to the label for the new name
	if err := s.columnRepo.Update(ctx, col); err != nil {
		return nil, err
	}

	if err := s.ensureProviderLabel(ctx, mailbox, col); err != nil {
		logger.WithMailbox(col.MailboxID).WithField("column", name).WithError(err).
			Warn("Failed to rebind mirror label after rename")
	}
	return col, nil
}

// Delete removes a custom column. Default columns are protected.
func (s *Service) Delete(ctx context.Context, userID, columnID int64) error {
	col, _, err := s.getOwnedColumn(ctx, userID, columnID)
	if err != nil {
		return err
	}
	if col.IsDefault {
		return apperr.BadRequest(domain.ErrDefaultColumn.Error())
	}
	return s.columnRepo.Delete(ctx, columnID)
}

// Reorder applies a full new ordering. The list must mention every
// column of the mailbox exactly once; indices come out dense 0..N-1.
func (s *Service) Reorder(ctx context.Context, userID, mailboxID int64, orderedIDs []int64) ([]*domain.Column, error) {
	if err := s.checkMailboxOwner(ctx, userID, mailboxID); err != nil {
		return nil, err
	}

	existing, err := s.columnRepo.ListByMailbox(ctx, mailboxID)
	if err != nil {
		return nil, err
	}

	if len(orderedIDs) != len(existing) {
		return nil, apperr.BadRequest(domain.ErrReorderMismatch.Error())
	}
	known := make(map[int64]bool, len(existing))
	for _, col := range existing {
		known[col.ID] = true
	}
	seen := make(map[int64]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !known[id] || seen[id] {
			return nil, apperr.BadRequest(domain.ErrReorderMismatch.Error())
		}
		seen[id] = true
	}

	if err := s.columnRepo.Reorder(ctx, mailboxID, orderedIDs); err != nil {
		return nil, err
	}
	return s.columnRepo.ListByMailbox(ctx, mailboxID)
}

// EnsureProviderLabel guarantees a managed column has its mirror label
// and returns the label id. Used by the move path before the first
// message lands in a column.
func (s *Service) EnsureProviderLabel(ctx context.Context, mailbox *domain.Mailbox, col *domain.Column) (string, error) {
	if !col.IsManaged() {
		return "", nil
	}
	if col.ProviderLabelID != "" {
		return col.ProviderLabelID, nil
	}
	if err := s.ensureProviderLabel(ctx, mailbox, col); err != nil {
		return "", err
	}
	return col.ProviderLabelID, nil
}

func (s *Service) ensureProviderLabel(ctx context.Context, mailbox *domain.Mailbox, col *domain.Column) error {
	if !col.IsManaged() {
		return nil
	}

	token, err := s.tokens.Token(ctx, mailbox)
	if err != nil {
		return err
	}
	label, err := s.provider.EnsureLabel(ctx, token, col.ProviderLabelName())
	if err != nil {
		return err
	}

	col.ProviderLabelID = label.ID
	return s.columnRepo.SetProviderLabelID(ctx, col.ID, label.ID)
}

func (s *Service) getOwnedColumn(ctx context.Context, userID, columnID int64) (*domain.Column, *domain.Mailbox, error) {
	col, err := s.columnRepo.GetByID(ctx, columnID)
	if err != nil {
		return nil, nil, err
	}
	mailbox, err := s.mailboxRepo.GetByID(ctx, col.MailboxID)
	if err != nil {
		return nil, nil, err
	}
	if mailbox.UserID != userID {
		// Never reveal that the column exists under another user.
		return nil, nil, apperr.NotFound("column")
	}
	return col, mailbox, nil
}

func (s *Service) checkMailboxOwner(ctx context.Context, userID, mailboxID int64) error {
	mailbox, err := s.mailboxRepo.GetByID(ctx, mailboxID)
	if err != nil {
		return err
	}
	if mailbox.UserID != userID {
		return apperr.NotFound("mailbox")
	}
	return nil
}

func validateColumnName(name string) error {
	if name == "" {
		return apperr.ValidationFailed("column name is required")
	}
	if len(name) > maxColumnNameLen {
		return apperr.ValidationFailed("column name is too long")
	}
	if strings.Contains(name, "/") {
		return apperr.ValidationFailed("column name cannot contain '/'")
	}
	return nil
}

// Interface compliance
var _ in.ColumnService = (*Service)(nil)
