package domain

import "time"

// SearchMode selects the matching strategy.
type SearchMode string

const (
	SearchModeFuzzy    SearchMode = "fuzzy"
	SearchModeSemantic SearchMode = "semantic"
)

// SearchScope restricts which fields a fuzzy query is matched against.
type SearchScope string

const (
	SearchScopeAll     SearchScope = "all"
	SearchScopeSubject SearchScope = "subject"
	SearchScopeSender  SearchScope = "sender"
	SearchScopeBody    SearchScope = "body"
)

// Valid reports whether s is a known scope.
func (s SearchScope) Valid() bool {
	switch s {
	case SearchScopeAll, SearchScopeSubject, SearchScopeSender, SearchScopeBody:
		return true
	}
	return false
}

// SearchWeights blend the per-field scores into the relevance used for
// ordering. Inclusion is decided per field against the threshold, not
// against the blended value.
type SearchWeights struct {
	Subject float64
	Sender  float64
	Body    float64
}

// DefaultSearchWeights as shipped.
var DefaultSearchWeights = SearchWeights{Subject: 0.5, Sender: 0.3, Body: 0.2}

// DefaultSearchThreshold is the per-field similarity floor applied when
// the caller does not supply one.
const DefaultSearchThreshold = 0.2

// SearchQuery is a normalized search request. Threshold and Weights are
// optional overrides; zero values fall back to the defaults.
type SearchQuery struct {
	MailboxID int64
	Text      string
	Mode      SearchMode
	Scope     SearchScope
	Threshold *float64
	Weights   *SearchWeights
	Limit     int
	Offset    int
}

// SearchHit is a scored result.
type SearchHit struct {
	Message *MessageListItem `json:"message"`
	Score   float64          `json:"score"`
}

// SearchSuggestions bundles typeahead data. Keywords are frequent
// subject tokens, not whole subjects.
type SearchSuggestions struct {
	Contacts       []ContactSuggestion `json:"contacts"`
	Keywords       []string            `json:"keywords"`
	RecentSearches []string            `json:"recent_searches"`
}

// ContactSuggestion is a sender suggestion with usage count.
type ContactSuggestion struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Count int    `json:"count"`
}

// RecentSearch is one saved query of a user.
type RecentSearch struct {
	Query      string    `json:"query"`
	SearchedAt time.Time `json:"searched_at"`
}
