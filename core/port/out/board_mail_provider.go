// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"mailboard_server/core/domain"
)

// MailProvider is the outbound port for the mail backend. The token is
// passed per call; the adapter never caches credentials.
type MailProvider interface {
	// Auth
	GetAuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	RefreshTokens(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)

	// Profile and cursor
	GetProfile(ctx context.Context, token *oauth2.Token) (*ProviderProfile, error)

	// Messages
	ListMessages(ctx context.Context, token *oauth2.Token, opts *ProviderListOptions) (*ProviderListResult, error)
	GetMessage(ctx context.Context, token *oauth2.Token, externalID string) (*ProviderMessage, error)
	GetMessages(ctx context.Context, token *oauth2.Token, externalIDs []string) ([]*ProviderMessage, error)
	GetHistoryChanges(ctx context.Context, token *oauth2.Token, cursor string) (*ProviderHistoryResult, error)
	ModifyLabels(ctx context.Context, token *oauth2.Token, externalID string, add, remove []string) ([]string, error)
	SendMessage(ctx context.Context, token *oauth2.Token, msg *domain.OutgoingMessage) (*ProviderSendResult, error)

	// Labels
	ListLabels(ctx context.Context, token *oauth2.Token) ([]*ProviderLabel, error)
	EnsureLabel(ctx context.Context, token *oauth2.Token, name string) (*ProviderLabel, error)

	// Attachments
	GetAttachment(ctx context.Context, token *oauth2.Token, externalMessageID, attachmentID string) ([]byte, error)

	// Provider info
	ProviderType() domain.Provider
}

// ProviderProfile is the account snapshot used at connect time and as
// the source of the sync cursor.
type ProviderProfile struct {
	Address       string
	HistoryCursor string
	TotalMessages int64
}

// ProviderListOptions narrows message listing.
type ProviderListOptions struct {
	Query      string
	LabelIDs   []string
	PageToken  string
	MaxResults int64
}

// ProviderListResult is one page of message ids.
type ProviderListResult struct {
	MessageIDs    []string
	NextPageToken string
	TotalEstimate int64
}

// ProviderMessage is a fully fetched message before conversion into
// the domain.
type ProviderMessage struct {
	ExternalID   string
	ThreadID     string
	Subject      string
	SenderName   string
	SenderEmail  string
	Recipients   []string
	CcAddresses  []string
	Snippet      string
	BodyHTML     string
	BodyText     string
	Labels       []string
	Attachments  []*ProviderAttachment
	MessageIDHdr string
	InternalDate time.Time
}

// ProviderAttachment is attachment metadata from the provider.
type ProviderAttachment struct {
	AttachmentID string
	Filename     string
	MimeType     string
	Size         int64
}

// ProviderHistoryResult is the outcome of an incremental history walk.
// Changes are deduplicated per message; the latest change wins.
type ProviderHistoryResult struct {
	AddedMessageIDs   []string
	RemovedMessageIDs []string
	LabelChanges      map[string]ProviderLabelDelta
	NewCursor         string
}

// ProviderLabelDelta is the net label change for one message.
type ProviderLabelDelta struct {
	Added   []string
	Removed []string
}

// ProviderSendResult identifies a sent message.
type ProviderSendResult struct {
	ExternalID string
	ThreadID   string
	Labels     []string
}

// ProviderLabel is a provider-side label.
type ProviderLabel struct {
	ID     string
	Name   string
	Type   string // "system" or "user"
	Hidden bool
}

// ProviderErrorCode classifies provider failures.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
	ProviderErrStaleCursor  ProviderErrorCode = "stale_cursor"
)

// ProviderError represents a provider failure with retry semantics.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s provider %s: %s: %v", e.Provider, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s provider %s: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// IsStaleCursor reports whether err says the sync cursor expired and a
// full resync is required.
func IsStaleCursor(err error) bool {
	var pe *ProviderError
	if ok := asProviderError(err, &pe); ok {
		return pe.Code == ProviderErrStaleCursor
	}
	return false
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if ok := asProviderError(err, &pe); ok {
		return pe.Retryable
	}
	return false
}

// IsTokenExpired reports whether err is an auth failure fixable by a
// token refresh.
func IsTokenExpired(err error) bool {
	var pe *ProviderError
	if ok := asProviderError(err, &pe); ok {
		return pe.Code == ProviderErrTokenExpired || pe.Code == ProviderErrAuth
	}
	return false
}

func asProviderError(err error, target **ProviderError) bool {
	return errors.As(err, target)
}
