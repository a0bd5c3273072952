// Package auth manages OAuth token material for connected mailboxes.
package auth

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/pkg/apperr"
	"mailboard_server/pkg/logger"
)

// TokenService hands out valid OAuth tokens for provider calls,
// refreshing and persisting them when they approach expiry.
type TokenService struct {
	mailboxRepo out.MailboxRepository
	provider    out.MailProvider

	// refreshHorizon is how close to expiry a token may get before it
	// is refreshed proactively.
	refreshHorizon time.Duration
}

// NewTokenService creates a new TokenService.
func NewTokenService(mailboxRepo out.MailboxRepository, provider out.MailProvider, refreshHorizon time.Duration) *TokenService {
	if refreshHorizon <= 0 {
		refreshHorizon = 10 * time.Minute
	}
	return &TokenService{
		mailboxRepo:    mailboxRepo,
		provider:       provider,
		refreshHorizon: refreshHorizon,
	}
}

// Token returns a usable OAuth token for the mailbox, refreshing it
// first when it expires inside the horizon.
func (s *TokenService) Token(ctx context.Context, mailbox *domain.Mailbox) (*oauth2.Token, error) {
	if mailbox.AccessToken == "" && mailbox.RefreshToken == "" {
		return nil, apperr.Unauthorized("mailbox has no stored credentials, reconnect required")
	}

	token := tokenFromMailbox(mailbox)
	if !mailbox.TokenExpiringWithin(time.Now(), s.refreshHorizon) {
		return token, nil
	}
	return s.refresh(ctx, mailbox, token)
}

// RefreshExpiring refreshes every mailbox whose token expires before
// now+horizon. Called by the scheduler. A mailbox whose refresh fails
// is moved to the error state with the cause recorded; the batch
// itself continues.
func (s *TokenService) RefreshExpiring(ctx context.Context) (int, error) {
	deadline := time.Now().Add(s.refreshHorizon)
	mailboxes, err := s.mailboxRepo.ExpiringTokens(ctx, deadline)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, mailbox := range mailboxes {
		if mailbox.RefreshToken == "" {
			continue
		}
		if _, err := s.refresh(ctx, mailbox, tokenFromMailbox(mailbox)); err != nil {
			logger.WithMailbox(mailbox.ID).WithError(err).Warn("Token refresh failed")
			if failErr := s.mailboxRepo.FailSync(ctx, mailbox.ID, "token refresh failed: "+err.Error()); failErr != nil {
				logger.WithMailbox(mailbox.ID).WithError(failErr).Error("Failed to record token refresh failure")
			}
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		logger.WithField("count", refreshed).Info("Refreshed expiring tokens")
	}
	return refreshed, nil
}

func (s *TokenService) refresh(ctx context.Context, mailbox *domain.Mailbox, token *oauth2.Token) (*oauth2.Token, error) {
	fresh, err := s.provider.RefreshTokens(ctx, token)
	if err != nil {
		return nil, err
	}

	var expiry *time.Time
	if !fresh.Expiry.IsZero() {
		e := fresh.Expiry
		expiry = &e
	}

	// Google omits the refresh token on refresh responses; keep the
	// stored one in that case.
	if err := s.mailboxRepo.UpdateTokens(ctx, mailbox.ID, fresh.AccessToken, fresh.RefreshToken, expiry); err != nil {
		return nil, err
	}

	mailbox.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		mailbox.RefreshToken = fresh.RefreshToken
	}
	mailbox.TokenExpiry = expiry

	logger.WithMailbox(mailbox.ID).Debug("Access token refreshed")
	return fresh, nil
}

func tokenFromMailbox(mailbox *domain.Mailbox) *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  mailbox.AccessToken,
		RefreshToken: mailbox.RefreshToken,
		TokenType:    "Bearer",
	}
	if mailbox.TokenExpiry != nil {
		token.Expiry = *mailbox.TokenExpiry
	}
	return token
}
