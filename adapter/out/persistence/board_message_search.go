package persistence

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/pkg/apperr"
)

// Per-field inclusion predicates for fuzzy search. A message is a hit
// when one in-scope field clears the threshold on its own similarity
// or contains the query verbatim; the blended score is ordering only.
const (
	fuzzySubjectMatch = `(subject_score > $3 OR subject ILIKE $7)`
	fuzzySenderMatch  = `(sender_score > $3 OR COALESCE(sender_name, '') ILIKE $7 OR sender_email ILIKE $7)`
	fuzzyBodyMatch    = `(body_score > $3 OR COALESCE(body_text, '') ILIKE $7)`
)

func fuzzyMatchPredicate(scope domain.SearchScope) string {
	switch scope {
	case domain.SearchScopeSubject:
		return fuzzySubjectMatch
	case domain.SearchScopeSender:
		return fuzzySenderMatch
	case domain.SearchScopeBody:
		return fuzzyBodyMatch
	default:
		return "(" + fuzzySubjectMatch + " OR " + fuzzySenderMatch + " OR " + fuzzyBodyMatch + ")"
	}
}

// FuzzySearch matches messages with pg_trgm similarity. Each field is
// scored symmetrically, word_similarity for query-in-field and plain
// similarity for the reverse, so a short typo'd query still clears the
// threshold against a long subject.
func (a *MessageAdapter) FuzzySearch(ctx context.Context, q *out.FuzzySearchQuery) ([]*out.ScoredMessage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT %s,
			($4 * subject_score + $5 * sender_score + $6 * body_score) AS score
		FROM (
			SELECT *,
				GREATEST(
					word_similarity($2, subject),
					similarity(subject, $2)
				) AS subject_score,
				GREATEST(
					word_similarity($2, COALESCE(sender_name, '')),
					similarity(COALESCE(sender_name, ''), $2),
					word_similarity($2, sender_email),
					similarity(sender_email, $2)
				) AS sender_score,
				ts_rank(
					to_tsvector('simple', LEFT(COALESCE(body_text, '') || ' ' || COALESCE(summary, ''), 10000)),
					plainto_tsquery('simple', $2)
				) AS body_score
			FROM messages
			WHERE mailbox_id = $1 AND deleted_at IS NULL AND NOT is_trashed
		) scored
		WHERE %s
		ORDER BY score DESC, id ASC
		LIMIT %d OFFSET %d`,
		messageSelectColumns, fuzzyMatchPredicate(q.Scope), limit, q.Offset)

	var rows []messageRow
	err := a.db.SelectContext(ctx, &rows, query,
		q.MailboxID, q.Text, q.Threshold,
		q.Weights.Subject, q.Weights.Sender, q.Weights.Body,
		"%"+q.Text+"%")
	if err != nil {
		return nil, apperr.DatabaseError("fuzzy search", err)
	}

	return scoredItems(rows), nil
}

// SemanticSearch ranks messages by cosine similarity to the query
// embedding. pgvector's <=> operator is cosine distance, so the score
// is 1 - distance.
func (a *MessageAdapter) SemanticSearch(ctx context.Context, q *out.SemanticSearchQuery) ([]*out.ScoredMessage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT %s, score FROM (
			SELECT *, 1 - (embedding <=> $2::vector) AS score
			FROM messages
			WHERE mailbox_id = $1 AND embedding IS NOT NULL
				AND deleted_at IS NULL AND NOT is_trashed
		) ranked
		WHERE score >= $3
		ORDER BY score DESC
		LIMIT %d OFFSET %d`,
		messageSelectColumns, limit, q.Offset)

	var rows []messageRow
	err := a.db.SelectContext(ctx, &rows, query, q.MailboxID, vectorLiteral(q.Embedding), q.MinScore)
	if err != nil {
		return nil, apperr.DatabaseError("semantic search", err)
	}

	return scoredItems(rows), nil
}

// SuggestContacts returns the most frequent senders whose name or
// address contains the fragment.
func (a *MessageAdapter) SuggestContacts(ctx context.Context, mailboxID int64, fragment string, limit int) ([]domain.ContactSuggestion, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := a.db.QueryxContext(ctx, fmt.Sprintf(`
		SELECT COALESCE(sender_name, '') AS name, sender_email, COUNT(*) AS cnt
		FROM messages
		WHERE mailbox_id = $1 AND deleted_at IS NULL
			AND (sender_email ILIKE $2 OR sender_name ILIKE $2)
		GROUP BY sender_name, sender_email
		ORDER BY cnt DESC
		LIMIT %d`, limit),
		mailboxID, "%"+fragment+"%")
	if err != nil {
		return nil, apperr.DatabaseError("suggest contacts", err)
	}
	defer rows.Close()

	var suggestions []domain.ContactSuggestion
	for rows.Next() {
		var s domain.ContactSuggestion
		if err := rows.Scan(&s.Name, &s.Email, &s.Count); err != nil {
			return nil, apperr.DatabaseError("scan contact suggestion", err)
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, nil
}

// SuggestKeywords tokenizes subjects and returns the most frequent
// tokens longer than three characters that contain the fragment.
func (a *MessageAdapter) SuggestKeywords(ctx context.Context, mailboxID int64, fragment string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := a.db.QueryxContext(ctx, fmt.Sprintf(`
		SELECT token FROM (
			SELECT LOWER(token) AS token, COUNT(*) AS cnt
			FROM messages,
				regexp_split_to_table(subject, '[^[:alnum:]]+') AS token
			WHERE mailbox_id = $1 AND deleted_at IS NULL
				AND LENGTH(token) > 3
			GROUP BY LOWER(token)
		) tokens
		WHERE token LIKE $2
		ORDER BY cnt DESC, token ASC
		LIMIT %d`, limit),
		mailboxID, "%"+strings.ToLower(fragment)+"%")
	if err != nil {
		return nil, apperr.DatabaseError("suggest keywords", err)
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, apperr.DatabaseError("scan keyword suggestion", err)
		}
		keywords = append(keywords, k)
	}
	return keywords, nil
}

func scoredItems(rows []messageRow) []*out.ScoredMessage {
	results := make([]*out.ScoredMessage, len(rows))
	for i := range rows {
		results[i] = &out.ScoredMessage{
			Item:  rows[i].toListItem(),
			Score: rows[i].Score,
		}
	}
	return results
}

// vectorLiteral encodes an embedding as a pgvector text literal,
// e.g. "[0.1,0.2]".
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
