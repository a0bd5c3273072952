// Package provider implements mail provider adapters.
package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/pkg/httputil"
	"mailboard_server/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// gmailMetadataHeaders are the headers requested for list-path fetches.
var gmailMetadataHeaders = []string{
	"From", "To", "Cc", "Subject", "Date",
	"Message-ID", "In-Reply-To", "References", "Content-Type",
}

// GmailAdapter implements out.MailProvider for Gmail.
type GmailAdapter struct {
	config *oauth2.Config
	cb     *gobreaker.CircuitBreaker
}

// GmailConfig holds Gmail configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewGmailAdapter creates a new Gmail adapter.
func NewGmailAdapter(cfg *GmailConfig) *GmailAdapter {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmail.GmailReadonlyScope,
			gmail.GmailSendScope,
			gmail.GmailModifyScope,
			gmail.GmailLabelsScope,
		},
		Endpoint: google.Endpoint,
	}

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &GmailAdapter{
		config: config,
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// ProviderType returns the provider type.
func (a *GmailAdapter) ProviderType() domain.Provider {
	return domain.ProviderGmail
}

// GetAuthURL returns the OAuth authorization URL.
func (a *GmailAdapter) GetAuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges an authorization code for tokens.
func (a *GmailAdapter) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httputil.SharedClient())
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, a.wrapError(err, "failed to exchange code")
	}
	return token, nil
}

// RefreshTokens refreshes the access token using the refresh token.
func (a *GmailAdapter) RefreshTokens(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httputil.SharedClient())
	src := a.config.TokenSource(ctx, token)
	newToken, err := src.Token()
	if err != nil {
		return nil, a.wrapError(err, "failed to refresh token")
	}
	return newToken, nil
}

// GetProfile returns the account profile. The profile history id is the
// sync cursor and must be captured before any full sync walk.
func (a *GmailAdapter) GetProfile(ctx context.Context, token *oauth2.Token) (*out.ProviderProfile, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var profile *gmail.Profile
	err = a.executeWithCircuitBreaker(ctx, "get_profile", func() error {
		var callErr error
		profile, callErr = svc.Users.GetProfile("me").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to get profile")
	}

	return &out.ProviderProfile{
		Address:       profile.EmailAddress,
		HistoryCursor: fmt.Sprintf("%d", profile.HistoryId),
		TotalMessages: profile.MessagesTotal,
	}, nil
}

// ListMessages returns one page of message ids.
func (a *GmailAdapter) ListMessages(ctx context.Context, token *oauth2.Token, opts *out.ProviderListOptions) (*out.ProviderListResult, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	maxResults := int64(100)
	if opts != nil && opts.MaxResults > 0 {
		maxResults = opts.MaxResults
	}

	req := svc.Users.Messages.List("me").MaxResults(maxResults)
	if opts != nil {
		if opts.Query != "" {
			req = req.Q(opts.Query)
		}
		if len(opts.LabelIDs) > 0 {
			req = req.LabelIds(opts.LabelIDs...)
		}
		if opts.PageToken != "" {
			req = req.PageToken(opts.PageToken)
		}
	}

	var resp *gmail.ListMessagesResponse
	err = a.executeWithCircuitBreaker(ctx, "list_messages", func() error {
		var callErr error
		resp, callErr = req.Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to list messages")
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}

	return &out.ProviderListResult{
		MessageIDs:    ids,
		NextPageToken: resp.NextPageToken,
		TotalEstimate: resp.ResultSizeEstimate,
	}, nil
}

// GetMessage fetches one message in full format.
func (a *GmailAdapter) GetMessage(ctx context.Context, token *oauth2.Token, externalID string) (*out.ProviderMessage, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var msg *gmail.Message
	err = a.executeWithCircuitBreaker(ctx, "get_message", func() error {
		var callErr error
		msg, callErr = svc.Users.Messages.Get("me", externalID).Format("full").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to get message")
	}

	converted := a.convertMessage(msg)
	return &converted, nil
}

// GetMessages fetches messages in parallel, bounded by a semaphore so
// Gmail rate limits are not tripped. Individual failures are logged and
// skipped; the rest of the batch is still returned.
func (a *GmailAdapter) GetMessages(ctx context.Context, token *oauth2.Token, externalIDs []string) ([]*out.ProviderMessage, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}

	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	const maxConcurrency = 10
	const perMessageTimeout = 30 * time.Second

	type result struct {
		index int
		msg   *out.ProviderMessage
		err   error
	}

	results := make(chan result, len(externalIDs))
	sem := make(chan struct{}, maxConcurrency)

	for i, id := range externalIDs {
		go func(idx int, externalID string) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- result{index: idx, err: ctx.Err()}
				return
			}

			msgCtx, cancel := context.WithTimeout(ctx, perMessageTimeout)
			defer cancel()

			msg, err := svc.Users.Messages.Get("me", externalID).
				Format("full").
				Context(msgCtx).Do()
			if err != nil {
				results <- result{index: idx, err: err}
				return
			}
			converted := a.convertMessage(msg)
			results <- result{index: idx, msg: &converted}
		}(i, id)
	}

	messages := make([]*out.ProviderMessage, len(externalIDs))
	collected := 0
	for collected < len(externalIDs) {
		select {
		case r := <-results:
			collected++
			if r.err != nil {
				logger.Warn("[GmailAdapter] skipping message fetch: %v", r.err)
				continue
			}
			messages[r.index] = r.msg
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Keep order, drop failed slots
	filtered := make([]*out.ProviderMessage, 0, len(messages))
	for _, m := range messages {
		if m != nil {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// GetHistoryChanges walks the history log from cursor. Changes are
// deduplicated per message and the final state wins; the returned
// cursor is the highest history id seen.
func (a *GmailAdapter) GetHistoryChanges(ctx context.Context, token *oauth2.Token, cursor string) (*out.ProviderHistoryResult, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var startID uint64
	if _, err := fmt.Sscanf(cursor, "%d", &startID); err != nil {
		return nil, out.NewProviderError("gmail", out.ProviderErrStaleCursor, "invalid cursor", err, false)
	}

	added := make(map[string]bool)
	removed := make(map[string]bool)
	labelChanges := make(map[string]out.ProviderLabelDelta)
	var newCursor uint64

	pageToken := ""
	for {
		req := svc.Users.History.List("me").
			StartHistoryId(startID).
			HistoryTypes("messageAdded", "messageDeleted", "labelAdded", "labelRemoved")
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		var resp *gmail.ListHistoryResponse
		err = a.executeWithCircuitBreaker(ctx, "history_list", func() error {
			var callErr error
			resp, callErr = req.Context(ctx).Do()
			return callErr
		})
		if err != nil {
			if apiErr, ok := unwrapGoogleAPIError(err); ok && apiErr.Code == 404 {
				// Gmail expires history after about a week; the only
				// recovery is a full resync.
				return nil, out.NewProviderError("gmail", out.ProviderErrStaleCursor, "history cursor expired", err, false)
			}
			return nil, a.wrapError(err, "failed to list history")
		}

		if resp.HistoryId > newCursor {
			newCursor = resp.HistoryId
		}

		for _, h := range resp.History {
			for _, ma := range h.MessagesAdded {
				added[ma.Message.Id] = true
				delete(removed, ma.Message.Id)
			}
			for _, md := range h.MessagesDeleted {
				removed[md.Message.Id] = true
				delete(added, md.Message.Id)
				delete(labelChanges, md.Message.Id)
			}
			for _, la := range h.LabelsAdded {
				delta := labelChanges[la.Message.Id]
				delta.Added = mergeLabels(delta.Added, la.LabelIds)
				delta.Removed = subtractLabels(delta.Removed, la.LabelIds)
				labelChanges[la.Message.Id] = delta
			}
			for _, lr := range h.LabelsRemoved {
				delta := labelChanges[lr.Message.Id]
				delta.Removed = mergeLabels(delta.Removed, lr.LabelIds)
				delta.Added = subtractLabels(delta.Added, lr.LabelIds)
				labelChanges[lr.Message.Id] = delta
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	// Added messages get a full fetch anyway, no need for label deltas
	for id := range added {
		delete(labelChanges, id)
	}

	result := &out.ProviderHistoryResult{
		LabelChanges: labelChanges,
		NewCursor:    cursor,
	}
	if newCursor > 0 {
		result.NewCursor = fmt.Sprintf("%d", newCursor)
	}
	for id := range added {
		result.AddedMessageIDs = append(result.AddedMessageIDs, id)
	}
	for id := range removed {
		result.RemovedMessageIDs = append(result.RemovedMessageIDs, id)
	}
	return result, nil
}

// ModifyLabels applies a label delta and returns the resulting labels.
func (a *GmailAdapter) ModifyLabels(ctx context.Context, token *oauth2.Token, externalID string, add, remove []string) ([]string, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}

	var msg *gmail.Message
	err = a.executeWithCircuitBreaker(ctx, "modify_labels", func() error {
		var callErr error
		msg, callErr = svc.Users.Messages.Modify("me", externalID, req).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to modify labels")
	}
	return msg.LabelIds, nil
}

// ListLabels returns all labels of the account.
func (a *GmailAdapter) ListLabels(ctx context.Context, token *oauth2.Token) ([]*out.ProviderLabel, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var resp *gmail.ListLabelsResponse
	err = a.executeWithCircuitBreaker(ctx, "list_labels", func() error {
		var callErr error
		resp, callErr = svc.Users.Labels.List("me").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to list labels")
	}

	labels := make([]*out.ProviderLabel, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, &out.ProviderLabel{
			ID:     l.Id,
			Name:   l.Name,
			Type:   l.Type,
			Hidden: l.LabelListVisibility == "labelHide",
		})
	}
	return labels, nil
}

// EnsureLabel returns the label with the given name, creating it when
// it does not exist yet.
func (a *GmailAdapter) EnsureLabel(ctx context.Context, token *oauth2.Token, name string) (*out.ProviderLabel, error) {
	labels, err := a.ListLabels(ctx, token)
	if err != nil {
		return nil, err
	}
	for _, l := range labels {
		if l.Name == name {
			return l, nil
		}
	}

	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var created *gmail.Label
	err = a.executeWithCircuitBreaker(ctx, "create_label", func() error {
		var callErr error
		created, callErr = svc.Users.Labels.Create("me", &gmail.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to create label")
	}

	return &out.ProviderLabel{ID: created.Id, Name: created.Name, Type: created.Type}, nil
}

// GetAttachment downloads attachment bytes.
func (a *GmailAdapter) GetAttachment(ctx context.Context, token *oauth2.Token, externalMessageID, attachmentID string) ([]byte, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var body *gmail.MessagePartBody
	err = a.executeWithCircuitBreaker(ctx, "get_attachment", func() error {
		var callErr error
		body, callErr = svc.Users.Messages.Attachments.Get("me", externalMessageID, attachmentID).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to get attachment")
	}

	data, err := base64.URLEncoding.DecodeString(body.Data)
	if err != nil {
		return nil, out.NewProviderError("gmail", out.ProviderErrServer, "failed to decode attachment", err, false)
	}
	return data, nil
}

func (a *GmailAdapter) getService(ctx context.Context, token *oauth2.Token) (*gmail.Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	// Token refreshes ride the shared pooled transport too
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httputil.SharedClient())

	return gmail.NewService(ctx, option.WithTokenSource(
		a.config.TokenSource(ctx, token),
	))
}

// executeWithCircuitBreaker wraps an API call with circuit breaker
// protection so a struggling Gmail backend fails fast instead of
// piling up goroutines.
func (a *GmailAdapter) executeWithCircuitBreaker(ctx context.Context, operation string, fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					return nil, err
				case 400, 401, 403, 404:
					// Client errors must not trip the circuit
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}

	if err != nil {
		logger.Warn("[GmailAdapter] circuit breaker error for %s: state=%s, err=%v",
			operation, a.cb.State().String(), err)
	}

	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func (a *GmailAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := unwrapGoogleAPIError(err); ok {
		switch apiErr.Code {
		case 401:
			return out.NewProviderError("gmail", out.ProviderErrTokenExpired, "token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError("gmail", out.ProviderErrRateLimit, "rate limit exceeded", err, true)
			}
			return out.NewProviderError("gmail", out.ProviderErrAuth, "access denied", err, false)
		case 404:
			return out.NewProviderError("gmail", out.ProviderErrNotFound, "not found", err, false)
		case 429:
			return out.NewProviderError("gmail", out.ProviderErrRateLimit, "too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError("gmail", out.ProviderErrServer, "server error", err, true)
		}
	}

	return out.NewProviderError("gmail", out.ProviderErrNetwork, defaultMsg, err, true)
}

func unwrapGoogleAPIError(err error) (*googleapi.Error, bool) {
	for err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok {
			return apiErr, true
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

func mergeLabels(base, add []string) []string {
	for _, l := range add {
		if !containsLabel(base, l) {
			base = append(base, l)
		}
	}
	return base
}

func subtractLabels(base, drop []string) []string {
	if len(base) == 0 {
		return base
	}
	out := base[:0]
	for _, l := range base {
		if !containsLabel(drop, l) {
			out = append(out, l)
		}
	}
	return out
}

func containsLabel(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// Interface compliance
var _ out.MailProvider = (*GmailAdapter)(nil)
