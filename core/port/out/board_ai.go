package out

import (
	"context"

	"mailboard_server/core/domain"
)

// AIClient is the outbound port for embeddings and message analysis.
type AIClient interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Analyze(ctx context.Context, subject, body string) (*domain.MessageInsights, error)
}

// SearchHistory is the outbound port for per-user recent searches.
type SearchHistory interface {
	Record(ctx context.Context, userID int64, query string) error
	Recent(ctx context.Context, userID int64, limit int) ([]string, error)
}
