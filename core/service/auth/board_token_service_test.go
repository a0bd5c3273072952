package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/pkg/apperr"
)

type stubMailboxRepo struct {
	out.MailboxRepository

	expiring []*domain.Mailbox

	updatedAccess string
	updateCalls   int
	failedID      int64
	failedReason  string
	failCalls     int
}

func (r *stubMailboxRepo) ExpiringTokens(context.Context, time.Time) ([]*domain.Mailbox, error) {
	return r.expiring, nil
}

func (r *stubMailboxRepo) UpdateTokens(_ context.Context, _ int64, access, _ string, _ *time.Time) error {
	r.updateCalls++
	r.updatedAccess = access
	return nil
}

func (r *stubMailboxRepo) FailSync(_ context.Context, id int64, reason string) error {
	r.failCalls++
	r.failedID = id
	r.failedReason = reason
	return nil
}

type stubProvider struct {
	out.MailProvider

	refreshed *oauth2.Token
	errFor    map[string]error
}

func (p *stubProvider) RefreshTokens(_ context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	if err := p.errFor[token.RefreshToken]; err != nil {
		return nil, err
	}
	if p.refreshed != nil {
		return p.refreshed, nil
	}
	return token, nil
}

func expiringMailbox(id int64, refreshToken string) *domain.Mailbox {
	expiry := time.Now().Add(time.Minute)
	return &domain.Mailbox{
		ID:           id,
		UserID:       10,
		AccessToken:  "stale",
		RefreshToken: refreshToken,
		TokenExpiry:  &expiry,
	}
}

func TestToken_RefreshesNearExpiry(t *testing.T) {
	repo := &stubMailboxRepo{}
	fresh := &oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)}
	svc := NewTokenService(repo, &stubProvider{refreshed: fresh}, 10*time.Minute)

	token, err := svc.Token(context.Background(), expiringMailbox(1, "r1"))
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token.AccessToken != "fresh" {
		t.Errorf("access token = %q, want the refreshed one", token.AccessToken)
	}
	if repo.updateCalls != 1 || repo.updatedAccess != "fresh" {
		t.Errorf("UpdateTokens calls = %d access = %q, want the refresh persisted", repo.updateCalls, repo.updatedAccess)
	}
}

func TestToken_NoCredentials(t *testing.T) {
	svc := NewTokenService(&stubMailboxRepo{}, &stubProvider{}, 10*time.Minute)

	_, err := svc.Token(context.Background(), &domain.Mailbox{ID: 1})
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeUnauthorized {
		t.Fatalf("Token() without credentials = %v, want unauthorized", err)
	}
}

func TestRefreshExpiring_FailureMarksMailbox(t *testing.T) {
	repo := &stubMailboxRepo{expiring: []*domain.Mailbox{
		expiringMailbox(1, "r-bad"),
		expiringMailbox(2, "r-good"),
	}}
	provider := &stubProvider{
		errFor: map[string]error{"r-bad": errors.New("invalid_grant")},
	}
	svc := NewTokenService(repo, provider, 10*time.Minute)

	refreshed, err := svc.RefreshExpiring(context.Background())
	if err != nil {
		t.Fatalf("RefreshExpiring() error = %v", err)
	}
	// The failure marks that mailbox and the batch keeps going
	if refreshed != 1 {
		t.Errorf("refreshed = %d, want 1", refreshed)
	}
	if repo.failCalls != 1 || repo.failedID != 1 {
		t.Fatalf("FailSync calls = %d for mailbox %d, want one for mailbox 1", repo.failCalls, repo.failedID)
	}
	if !strings.Contains(repo.failedReason, "token refresh failed") || !strings.Contains(repo.failedReason, "invalid_grant") {
		t.Errorf("failure reason = %q, want the cause recorded", repo.failedReason)
	}
}

func TestRefreshExpiring_SkipsMissingRefreshToken(t *testing.T) {
	repo := &stubMailboxRepo{expiring: []*domain.Mailbox{expiringMailbox(1, "")}}
	svc := NewTokenService(repo, &stubProvider{}, 10*time.Minute)

	refreshed, err := svc.RefreshExpiring(context.Background())
	if err != nil {
		t.Fatalf("RefreshExpiring() error = %v", err)
	}
	if refreshed != 0 || repo.failCalls != 0 {
		t.Errorf("refreshed = %d failCalls = %d, want the mailbox silently skipped", refreshed, repo.failCalls)
	}
}
