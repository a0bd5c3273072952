package http

import (
	"mailboard_server/core/domain"
	"mailboard_server/core/port/in"

	"github.com/gofiber/fiber/v2"
)

// SearchHandler handles search and typeahead requests.
type SearchHandler struct {
	searchSvc in.SearchService
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(searchSvc in.SearchService) *SearchHandler {
	return &SearchHandler{searchSvc: searchSvc}
}

// Register registers search routes.
func (h *SearchHandler) Register(router fiber.Router) {
	router.Get("/mailboxes/:id/search", h.Search)
	router.Get("/mailboxes/:id/search/suggestions", h.Suggestions)
}

// Search runs a fuzzy (default) or semantic query. Fuzzy queries may
// narrow the scope and override the similarity threshold and the
// ranking weights.
// GET /v1/mailboxes/:id/search?q=...&mode=fuzzy|semantic&scope=all|subject|sender|body
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	mailboxID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	limit, offset := GetLimitOffset(c, 20)
	query := &domain.SearchQuery{
		MailboxID: mailboxID,
		Text:      c.Query("q"),
		Mode:      domain.SearchMode(c.Query("mode", string(domain.SearchModeFuzzy))),
		Scope:     domain.SearchScope(c.Query("scope", string(domain.SearchScopeAll))),
		Threshold: QueryFloat(c, "threshold"),
		Limit:     limit,
		Offset:    offset,
	}
	ws := QueryFloat(c, "subject_weight")
	wf := QueryFloat(c, "sender_weight")
	wb := QueryFloat(c, "body_weight")
	if ws != nil || wf != nil || wb != nil {
		weights := domain.DefaultSearchWeights
		if ws != nil {
			weights.Subject = *ws
		}
		if wf != nil {
			weights.Sender = *wf
		}
		if wb != nil {
			weights.Body = *wb
		}
		query.Weights = &weights
	}

	hits, err := h.searchSvc.Search(c.Context(), userID, query)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, fiber.Map{"hits": hits, "total": len(hits)})
}

// Suggestions returns typeahead data for the search box.
// GET /v1/mailboxes/:id/search/suggestions?q=...
func (h *SearchHandler) Suggestions(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	mailboxID, err := ParamID(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	suggestions, err := h.searchSvc.Suggestions(c.Context(), userID, mailboxID, c.Query("q"))
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return SuccessResponse(c, suggestions)
}
