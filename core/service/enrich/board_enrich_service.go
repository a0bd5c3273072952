// Package enrich backfills message embeddings for semantic search.
package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"
	"mailboard_server/pkg/logger"
)

// maxContentChars bounds how much body text goes into the embedding.
const maxContentChars = 2000

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Service finds messages without embeddings and fills them in batches.
type Service struct {
	messageRepo out.MessageRepository
	ai          out.AIClient
	batchSize   int
}

// NewService creates a new enrichment Service.
func NewService(messageRepo out.MessageRepository, ai out.AIClient, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Service{
		messageRepo: messageRepo,
		ai:          ai,
		batchSize:   batchSize,
	}
}

// Run embeds one batch of messages. Returns how many were enriched.
func (s *Service) Run(ctx context.Context) (int, error) {
	pending, err := s.messageRepo.MissingEmbeddings(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	start := time.Now()
	texts := make([]string, len(pending))
	for i, msg := range pending {
		texts[i] = EmbeddingText(msg)
	}

	embeddings, err := s.ai.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, err
	}

	enriched := 0
	for i, msg := range pending {
		if i >= len(embeddings) {
			break
		}
		if err := s.messageRepo.UpdateEmbedding(ctx, msg.ID, embeddings[i]); err != nil {
			logger.WithMailbox(msg.MailboxID).WithField("message", msg.ID).WithError(err).
				Warn("Failed to store embedding")
			continue
		}
		enriched++
	}

	logger.WithField("count", enriched).WithDuration(time.Since(start)).Info("Embedding batch complete")
	return enriched, nil
}

// EmbeddingText builds the canonical text a message is embedded from.
// HTML bodies are stripped to text and content is capped so one
// oversized newsletter cannot dominate the batch.
func EmbeddingText(msg *domain.Message) string {
	content := msg.BodyText
	if content == "" && msg.BodyHTML != "" {
		content = StripHTML(msg.BodyHTML)
	}
	if content == "" {
		content = msg.Snippet
	}
	content = truncateUTF8(content, maxContentChars)

	from := msg.SenderName
	if from == "" {
		from = msg.SenderEmail
	}
	return fmt.Sprintf("Subject: %s\nFrom: %s\nContent: %s", msg.Subject, from, content)
}

// truncateUTF8 caps s at max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// StripHTML reduces an HTML body to whitespace-normalized text.
func StripHTML(html string) string {
	text := htmlTagRe.ReplaceAllString(html, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	text = strings.ReplaceAll(text, "&#39;", "'")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
