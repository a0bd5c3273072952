// Package search implements fuzzy and semantic message search.
package search

import (
	"context"
	"strings"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/in"
	"mailboard_server/core/port/out"
	"mailboard_server/pkg/apperr"
	"mailboard_server/pkg/logger"
)

// Options tune search scoring.
type Options struct {
	Weights        domain.SearchWeights
	FuzzyThreshold float64
	SemanticFloor  float64
	RecentLimit    int
}

// DefaultOptions as shipped.
func DefaultOptions() Options {
	return Options{
		Weights:        domain.DefaultSearchWeights,
		FuzzyThreshold: domain.DefaultSearchThreshold,
		SemanticFloor:  0.5,
		RecentLimit:    10,
	}
}

// Service implements in.SearchService.
type Service struct {
	messageRepo out.MessageRepository
	mailboxRepo out.MailboxRepository
	ai          out.AIClient
	history     out.SearchHistory
	opts        Options
}

// NewService creates a new search Service.
func NewService(
	messageRepo out.MessageRepository,
	mailboxRepo out.MailboxRepository,
	ai out.AIClient,
	history out.SearchHistory,
	opts Options,
) *Service {
	if opts.Weights == (domain.SearchWeights{}) {
		opts.Weights = domain.DefaultSearchWeights
	}
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = domain.DefaultSearchThreshold
	}
	if opts.SemanticFloor <= 0 {
		opts.SemanticFloor = 0.5
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 10
	}
	return &Service{
		messageRepo: messageRepo,
		mailboxRepo: mailboxRepo,
		ai:          ai,
		history:     history,
		opts:        opts,
	}
}

// Search runs a fuzzy or semantic query and records it in the user's
// recent searches.
func (s *Service) Search(ctx context.Context, userID int64, q *domain.SearchQuery) ([]*domain.SearchHit, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return []*domain.SearchHit{}, nil
	}

	if err := s.checkMailboxOwner(ctx, userID, q.MailboxID); err != nil {
		return nil, err
	}

	scope := q.Scope
	if scope == "" {
		scope = domain.SearchScopeAll
	}
	if !scope.Valid() {
		return nil, apperr.ValidationFailed("unknown search scope")
	}

	// The caller may override the configured threshold and weights.
	threshold := s.opts.FuzzyThreshold
	if q.Threshold != nil && *q.Threshold > 0 {
		threshold = *q.Threshold
	}
	weights := s.opts.Weights
	if q.Weights != nil && *q.Weights != (domain.SearchWeights{}) {
		weights = *q.Weights
	}

	var (
		scored []*out.ScoredMessage
		err    error
	)
	switch q.Mode {
	case domain.SearchModeSemantic:
		scored, err = s.semantic(ctx, q.MailboxID, text, q.Limit, q.Offset)
	case domain.SearchModeFuzzy, "":
		scored, err = s.messageRepo.FuzzySearch(ctx, &out.FuzzySearchQuery{
			MailboxID: q.MailboxID,
			Text:      text,
			Scope:     scope,
			Weights:   weights,
			Threshold: threshold,
			Limit:     q.Limit,
			Offset:    q.Offset,
		})
	default:
		return nil, apperr.ValidationFailed("unknown search mode")
	}
	if err != nil {
		return nil, err
	}

	// History is best-effort; a Redis hiccup must not fail the search.
	if err := s.history.Record(ctx, userID, text); err != nil {
		logger.WithField("user", userID).WithError(err).Debug("Failed to record search history")
	}

	hits := make([]*domain.SearchHit, len(scored))
	for i, sm := range scored {
		hits[i] = &domain.SearchHit{Message: sm.Item, Score: sm.Score}
	}
	return hits, nil
}

func (s *Service) semantic(ctx context.Context, mailboxID int64, text string, limit, offset int) ([]*out.ScoredMessage, error) {
	embedding, err := s.ai.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.messageRepo.SemanticSearch(ctx, &out.SemanticSearchQuery{
		MailboxID: mailboxID,
		Embedding: embedding,
		MinScore:  s.opts.SemanticFloor,
		Limit:     limit,
		Offset:    offset,
	})
}

const suggestionLimit = 10

// Suggestions returns typeahead data: matching contacts, frequent
// subject keywords and the user's recent searches.
func (s *Service) Suggestions(ctx context.Context, userID, mailboxID int64, fragment string) (*domain.SearchSuggestions, error) {
	if err := s.checkMailboxOwner(ctx, userID, mailboxID); err != nil {
		return nil, err
	}

	suggestions := &domain.SearchSuggestions{}
	fragment = strings.TrimSpace(fragment)

	if fragment != "" {
		contacts, err := s.messageRepo.SuggestContacts(ctx, mailboxID, fragment, suggestionLimit)
		if err != nil {
			return nil, err
		}
		keywords, err := s.messageRepo.SuggestKeywords(ctx, mailboxID, fragment, suggestionLimit)
		if err != nil {
			return nil, err
		}
		suggestions.Contacts = contacts
		suggestions.Keywords = keywords
	}

	recent, err := s.history.Recent(ctx, userID, s.opts.RecentLimit)
	if err != nil {
		logger.WithField("user", userID).WithError(err).Debug("Failed to load recent searches")
	} else {
		suggestions.RecentSearches = recent
	}

	return suggestions, nil
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

// Interface compliance
var _ in.SearchService = (*Service)(nil)
