// Package mailbox manages connected email accounts.
package mailbox

import (
	"context"
	"strings"
	"time"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/in"
	"mailboard_server/core/port/out"
	"mailboard_server/core/service/auth"
	"mailboard_server/core/service/sync"
	"mailboard_server/pkg/apperr"
	"mailboard_server/pkg/logger"
)

// Service implements in.MailboxService.
type Service struct {
	mailboxRepo out.MailboxRepository
	messageRepo out.MessageRepository
	columnRepo  out.ColumnRepository
	provider    out.MailProvider
	tokens      *auth.TokenService
	syncSvc     *sync.SyncService
	columnSvc   in.ColumnService
}

// NewService creates a new mailbox Service.
func NewService(
	mailboxRepo out.MailboxRepository,
	messageRepo out.MessageRepository,
	columnRepo out.ColumnRepository,
	provider out.MailProvider,
	tokens *auth.TokenService,
	syncSvc *sync.SyncService,
	columnSvc in.ColumnService,
) *Service {
	return &Service{
		mailboxRepo: mailboxRepo,
		messageRepo: messageRepo,
		columnRepo:  columnRepo,
		provider:    provider,
		tokens:      tokens,
		syncSvc:     syncSvc,
		columnSvc:   columnSvc,
	}
}

// AuthURL returns the provider consent URL for the OAuth flow.
func (s *Service) AuthURL(state string) string {
	return s.provider.GetAuthURL(state)
}

// Connect exchanges an OAuth code, stores the mailbox with sealed
// tokens, seeds the default board and kicks off the first full sync in
// the background. An address that is already connected is a conflict.
func (s *Service) Connect(ctx context.Context, userID int64, authCode string) (*domain.Mailbox, error) {
	if strings.TrimSpace(authCode) == "" {
		return nil, apperr.ValidationFailed("authorization code is required")
	}

	token, err := s.provider.ExchangeCode(ctx, authCode)
	if err != nil {
		return nil, err
	}

	profile, err := s.provider.GetProfile(ctx, token)
	if err != nil {
		return nil, err
	}

	if _, err := s.mailboxRepo.GetByAddress(ctx, userID, profile.Address); err == nil {
		return nil, apperr.Conflict("mailbox is already connected")
	}

	mailbox := &domain.Mailbox{
		UserID:       userID,
		Address:      profile.Address,
		Provider:     s.provider.ProviderType(),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		e := token.Expiry
		mailbox.TokenExpiry = &e
	}

	mailbox, err = s.mailboxRepo.Create(ctx, mailbox)
	if err != nil {
		return nil, err
	}

	if err := s.columnSvc.SeedDefaults(ctx, mailbox.ID); err != nil {
		return nil, err
	}

	logger.WithMailbox(mailbox.ID).WithField("address", mailbox.Address).Info("Mailbox connected")

	// First sync runs detached; the connect response returns right away
	// and the client polls sync_status.
	go func() {
		syncCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := s.syncSvc.FullSync(syncCtx, mailbox.ID); err != nil {
			logger.WithMailbox(mailbox.ID).WithError(err).Error("Initial full sync failed")
		}
	}()

	return mailbox, nil
}

// Get returns one mailbox of the user.
func (s *Service) Get(ctx context.Context, userID, mailboxID int64) (*domain.Mailbox, error) {
	return s.getOwned(ctx, userID, mailboxID)
}

// List returns all mailboxes of the user.
func (s *Service) List(ctx context.Context, userID int64) ([]*domain.Mailbox, error) {
	return s.mailboxRepo.ListByUser(ctx, userID)
}

// Disconnect soft-deletes a mailbox. Synced data stays in place but
// becomes unreachable; the address can be connected again afterwards.
func (s *Service) Disconnect(ctx context.Context, userID, mailboxID int64) error {
	if _, err := s.getOwned(ctx, userID, mailboxID); err != nil {
		return err
	}
	if err := s.mailboxRepo.Delete(ctx, mailboxID); err != nil {
		return err
	}
	logger.WithMailbox(mailboxID).Info("Mailbox disconnected")
	return nil
}

// Stats returns aggregate message counts for a mailbox.
func (s *Service) Stats(ctx context.Context, userID, mailboxID int64) (*domain.MailboxStats, error) {
	if _, err := s.getOwned(ctx, userID, mailboxID); err != nil {
		return nil, err
	}
	return s.messageRepo.StatsByMailbox(ctx, mailboxID)
}

// ListLabels returns provider labels, flagging those the board created
// as column mirrors.
func (s *Service) ListLabels(ctx context.Context, userID, mailboxID int64) ([]*in.LabelInfo, error) {
	mailbox, err := s.getOwned(ctx, userID, mailboxID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Token(ctx, mailbox)
	if err != nil {
		return nil, err
	}
	labels, err := s.provider.ListLabels(ctx, token)
	if err != nil {
		return nil, err
	}

	managed := make(map[string]bool)
	columns, err := s.columnRepo.ListByMailbox(ctx, mailboxID)
	if err == nil {
		for _, col := range columns {
			if col.ProviderLabelID != "" {
				managed[col.ProviderLabelID] = true
			}
		}
	}

	infos := make([]*in.LabelInfo, 0, len(labels))
	for _, label := range labels {
		if label.Hidden {
			continue
		}
		infos = append(infos, &in.LabelInfo{
			ID:        label.ID,
			Name:      label.Name,
			Type:      label.Type,
			IsManaged: managed[label.ID],
		})
	}
	return infos, nil
}

// TriggerSync starts a sync on demand. Returns a conflict when one is
// already running.
func (s *Service) TriggerSync(ctx context.Context, userID, mailboxID int64, full bool) error {
	mailbox, err := s.getOwned(ctx, userID, mailboxID)
	if err != nil {
		return err
	}
	if mailbox.SyncStatus == domain.SyncStatusSyncing {
		return apperr.SyncInProgress(mailboxID)
	}

	go func() {
		syncCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		var syncErr error
		if full {
			syncErr = s.syncSvc.FullSync(syncCtx, mailboxID)
		} else {
			syncErr = s.syncSvc.IncrementalSync(syncCtx, mailboxID)
		}
		if syncErr != nil {
			logger.WithMailbox(mailboxID).WithError(syncErr).Warn("Triggered sync failed")
		}
	}()
	return nil
}

func (s *Service) getOwned(ctx context.Context, userID, mailboxID int64) (*domain.Mailbox, error) {
	mailbox, err := s.mailboxRepo.GetByID(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	if mailbox.UserID != userID {
		// A foreign mailbox is indistinguishable from a missing one.
		return nil, apperr.NotFound("mailbox")
	}
	return mailbox, nil
}

// Interface compliance
var _ in.MailboxService = (*Service)(nil)
