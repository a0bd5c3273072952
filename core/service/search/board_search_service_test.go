package search

import (
	"context"
	"errors"
	"testing"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/pkg/apperr"
)

type stubMailboxRepo struct {
	out.MailboxRepository
}

func (stubMailboxRepo) GetByID(_ context.Context, id int64) (*domain.Mailbox, error) {
	if id != 1 {
		return nil, apperr.NotFound("mailbox")
	}
	return &domain.Mailbox{ID: 1, UserID: 10}, nil
}

type stubSearchRepo struct {
	out.MessageRepository

	fuzzyQuery    *out.FuzzySearchQuery
	semanticQuery *out.SemanticSearchQuery
	results       []*out.ScoredMessage
	suggestLimit  int
}

func (r *stubSearchRepo) FuzzySearch(_ context.Context, q *out.FuzzySearchQuery) ([]*out.ScoredMessage, error) {
	r.fuzzyQuery = q
	return r.results, nil
}

func (r *stubSearchRepo) SemanticSearch(_ context.Context, q *out.SemanticSearchQuery) ([]*out.ScoredMessage, error) {
	r.semanticQuery = q
	return r.results, nil
}

func (r *stubSearchRepo) SuggestContacts(_ context.Context, _ int64, _ string, limit int) ([]domain.ContactSuggestion, error) {
	r.suggestLimit = limit
	return []domain.ContactSuggestion{{Email: "ana@example.com", Count: 3}}, nil
}

func (r *stubSearchRepo) SuggestKeywords(context.Context, int64, string, int) ([]string, error) {
	return []string{"quarterly"}, nil
}

type stubAI struct {
	out.AIClient
	embedding []float32
	err       error
}

func (a *stubAI) EmbedText(context.Context, string) ([]float32, error) {
	return a.embedding, a.err
}

type stubHistory struct {
	recorded []string
	recent   []string
	failing  bool
}

func (h *stubHistory) Record(_ context.Context, _ int64, query string) error {
	if h.failing {
		return errors.New("redis down")
	}
	h.recorded = append(h.recorded, query)
	return nil
}

func (h *stubHistory) Recent(context.Context, int64, int) ([]string, error) {
	if h.failing {
		return nil, errors.New("redis down")
	}
	return h.recent, nil
}

func newSearchService(repo *stubSearchRepo, ai *stubAI, history *stubHistory) *Service {
	return NewService(repo, stubMailboxRepo{}, ai, history, DefaultOptions())
}

func TestSearch_EmptyQuery(t *testing.T) {
	repo := &stubSearchRepo{}
	svc := newSearchService(repo, &stubAI{}, &stubHistory{})

	hits, err := svc.Search(context.Background(), 10, &domain.SearchQuery{MailboxID: 1, Text: "   "})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %v, want empty", hits)
	}
	if repo.fuzzyQuery != nil || repo.semanticQuery != nil {
		t.Error("empty query still hit the repository")
	}
}

func TestSearch_ModeRouting(t *testing.T) {
	item := &domain.MessageListItem{ID: 1, Subject: "hello"}

	t.Run("fuzzy is the default", func(t *testing.T) {
		repo := &stubSearchRepo{results: []*out.ScoredMessage{{Item: item, Score: 0.8}}}
		history := &stubHistory{}
		svc := newSearchService(repo, &stubAI{}, history)

		hits, err := svc.Search(context.Background(), 10, &domain.SearchQuery{MailboxID: 1, Text: "hello", Limit: 20})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if repo.fuzzyQuery == nil {
			t.Fatal("fuzzy path not taken")
		}
		if repo.fuzzyQuery.Weights != domain.DefaultSearchWeights {
			t.Errorf("weights = %+v, want defaults", repo.fuzzyQuery.Weights)
		}
		if len(hits) != 1 || hits[0].Score != 0.8 {
			t.Errorf("hits = %v, want one hit with score 0.8", hits)
		}
		if len(history.recorded) != 1 || history.recorded[0] != "hello" {
			t.Errorf("recorded = %v, want the query saved", history.recorded)
		}
	})

	t.Run("semantic embeds the query", func(t *testing.T) {
		repo := &stubSearchRepo{}
		ai := &stubAI{embedding: []float32{0.1, 0.2}}
		svc := newSearchService(repo, ai, &stubHistory{})

		_, err := svc.Search(context.Background(), 10, &domain.SearchQuery{MailboxID: 1, Text: "hello", Mode: domain.SearchModeSemantic})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if repo.semanticQuery == nil {
			t.Fatal("semantic path not taken")
		}
		if len(repo.semanticQuery.Embedding) != 2 {
			t.Errorf("embedding = %v, want the query embedding passed through", repo.semanticQuery.Embedding)
		}
	})

	t.Run("unknown mode rejected", func(t *testing.T) {
		svc := newSearchService(&stubSearchRepo{}, &stubAI{}, &stubHistory{})
		if _, err := svc.Search(context.Background(), 10, &domain.SearchQuery{MailboxID: 1, Text: "hello", Mode: "regex"}); err == nil {
			t.Error("Search() with unknown mode = nil, want error")
		}
	})

	t.Run("embedding failure surfaces", func(t *testing.T) {
		svc := newSearchService(&stubSearchRepo{}, &stubAI{err: errors.New("quota")}, &stubHistory{})
		if _, err := svc.Search(context.Background(), 10, &domain.SearchQuery{MailboxID: 1, Text: "hello", Mode: domain.SearchModeSemantic}); err == nil {
			t.Error("Search() with failing embedder = nil, want error")
		}
	})
}

func TestSearch_HistoryFailureIgnored(t *testing.T) {
	repo := &stubSearchRepo{}
	svc := newSearchService(repo, &stubAI{}, &stubHistory{failing: true})

	if _, err := svc.Search(context.Background(), 10, &domain.SearchQuery{MailboxID: 1, Text: "hello"}); err != nil {
		t.Errorf("Search() with failing history = %v, want nil", err)
	}
}

func TestSearch_Ownership(t *testing.T) {
	svc := newSearchService(&stubSearchRepo{}, &stubAI{}, &stubHistory{})
	_, err := svc.Search(context.Background(), 99, &domain.SearchQuery{MailboxID: 1, Text: "hello"})
	appErr := apperr.AsAppError(err)
	if appErr == nil || appErr.Code != apperr.CodeNotFound {
		t.Errorf("Search() by non-owner = %v, want not found", err)
	}
}

func TestSearch_ScopeAndTuning(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		repo := &stubSearchRepo{}
		svc := newSearchService(repo, &stubAI{}, &stubHistory{})

		if _, err := svc.Search(context.Background(), 10, &domain.SearchQuery{MailboxID: 1, Text: "hello"}); err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if repo.fuzzyQuery.Scope != domain.SearchScopeAll {
			t.Errorf("scope = %q, want %q", repo.fuzzyQuery.Scope, domain.SearchScopeAll)
		}
		if repo.fuzzyQuery.Threshold != domain.DefaultSearchThreshold {
			t.Errorf("threshold = %v, want %v", repo.fuzzyQuery.Threshold, domain.DefaultSearchThreshold)
		}
	})

	t.Run("caller overrides pass through", func(t *testing.T) {
		repo := &stubSearchRepo{}
		svc := newSearchService(repo, &stubAI{}, &stubHistory{})

		threshold := 0.4
		weights := domain.SearchWeights{Subject: 0.7, Sender: 0.2, Body: 0.1}
		_, err := svc.Search(context.Background(), 10, &domain.SearchQuery{
			MailboxID: 1,
			Text:      "hello",
			Scope:     domain.SearchScopeSubject,
			Threshold: &threshold,
			Weights:   &weights,
		})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if repo.fuzzyQuery.Scope != domain.SearchScopeSubject {
			t.Errorf("scope = %q, want subject", repo.fuzzyQuery.Scope)
		}
		if repo.fuzzyQuery.Threshold != 0.4 {
			t.Errorf("threshold = %v, want 0.4", repo.fuzzyQuery.Threshold)
		}
		if repo.fuzzyQuery.Weights != weights {
			t.Errorf("weights = %+v, want %+v", repo.fuzzyQuery.Weights, weights)
		}
	})

	t.Run("unknown scope rejected", func(t *testing.T) {
		svc := newSearchService(&stubSearchRepo{}, &stubAI{}, &stubHistory{})
		_, err := svc.Search(context.Background(), 10, &domain.SearchQuery{MailboxID: 1, Text: "hello", Scope: "attachments"})
		appErr := apperr.AsAppError(err)
		if appErr == nil || appErr.Code != apperr.CodeValidationFailed {
			t.Errorf("Search(bad scope) = %v, want validation failure", err)
		}
	})

	t.Run("semantic paging", func(t *testing.T) {
		repo := &stubSearchRepo{}
		svc := newSearchService(repo, &stubAI{embedding: []float32{0.1}}, &stubHistory{})

		_, err := svc.Search(context.Background(), 10, &domain.SearchQuery{
			MailboxID: 1, Text: "hello", Mode: domain.SearchModeSemantic, Limit: 20, Offset: 40,
		})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if repo.semanticQuery.Offset != 40 {
			t.Errorf("offset = %d, want 40", repo.semanticQuery.Offset)
		}
	})
}

func TestSuggestions(t *testing.T) {
	repo := &stubSearchRepo{}
	history := &stubHistory{recent: []string{"invoices", "standup"}}
	svc := newSearchService(repo, &stubAI{}, history)

	t.Run("with prefix", func(t *testing.T) {
		got, err := svc.Suggestions(context.Background(), 10, 1, "an")
		if err != nil {
			t.Fatalf("Suggestions() error = %v", err)
		}
		if len(got.Contacts) != 1 || got.Contacts[0].Email != "ana@example.com" {
			t.Errorf("contacts = %v", got.Contacts)
		}
		if len(got.Keywords) != 1 {
			t.Errorf("keywords = %v", got.Keywords)
		}
		if len(got.RecentSearches) != 2 {
			t.Errorf("recent = %v", got.RecentSearches)
		}
		if repo.suggestLimit != 10 {
			t.Errorf("suggestion limit = %d, want 10", repo.suggestLimit)
		}
	})

	t.Run("empty prefix keeps recent only", func(t *testing.T) {
		got, err := svc.Suggestions(context.Background(), 10, 1, "")
		if err != nil {
			t.Fatalf("Suggestions() error = %v", err)
		}
		if len(got.Contacts) != 0 || len(got.Keywords) != 0 {
			t.Errorf("prefix-gated suggestions returned for empty prefix: %+v", got)
		}
		if len(got.RecentSearches) != 2 {
			t.Errorf("recent = %v", got.RecentSearches)
		}
	})
}
