// Package ai implements the OpenAI-backed AI client.
package ai

import (
	"context"
	"fmt"
	"time"

	"mailboard_server/core/domain"
	"mailboard_server/core/port/out"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultEmbeddingDims  = 768
)

const analyzeSystemPrompt = `You analyze emails for a Kanban-style inbox.
Respond with a JSON object of this shape:
{"summary": "...", "urgency": 0, "action_items": [{"text": "...", "due_date": "YYYY-MM-DD"}]}
The summary is at most three sentences, in the language of the email,
mentioning concrete dates and amounts when present. Urgency is an
integer from 0 (ignorable) to 10 (drop everything). Omit due_date when
the email names none.`

// Client wraps the OpenAI API for embeddings and summaries.
type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	embeddingDims  int
	maxTokens      int
	temperature    float32
	timeout        time.Duration
}

// ClientConfig holds OpenAI client configuration.
type ClientConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	EmbeddingDims  int
	MaxTokens      int
	Temperature    float64
	TimeoutSec     int
}

// NewClient creates a new AI client.
func NewClient(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	dims := cfg.EmbeddingDims
	if dims == 0 {
		dims = DefaultEmbeddingDims
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	timeoutSec := cfg.TimeoutSec
	if timeoutSec == 0 {
		timeoutSec = 60
	}

	return &Client{
		client:         openai.NewClient(cfg.APIKey),
		model:          model,
		embeddingModel: embeddingModel,
		embeddingDims:  dims,
		maxTokens:      maxTokens,
		temperature:    float32(cfg.Temperature),
		timeout:        time.Duration(timeoutSec) * time.Second,
	}
}

// EmbedText embeds a single text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds a batch of texts in one request. The result is
// index-aligned with the input.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(c.embeddingModel),
		Input:      texts,
		Dimensions: c.embeddingDims,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	result := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		result[i] = data.Embedding
	}
	return result, nil
}

// Analyze produces a summary, an urgency score and action items for
// an email in one structured completion.
func (c *Client) Analyze(ctx context.Context, subject, body string) (*domain.MessageInsights, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf("Subject: %s\n\nBody:\n%s", subject, truncateBody(body, 4000))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analyzeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analyze request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return &domain.MessageInsights{}, nil
	}

	var payload struct {
		Summary     string              `json:"summary"`
		Urgency     *int                `json:"urgency"`
		ActionItems []domain.ActionItem `json:"action_items"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &payload); err != nil {
		return nil, fmt.Errorf("analyze response parse failed: %w", err)
	}

	insights := &domain.MessageInsights{
		Summary:     payload.Summary,
		ActionItems: payload.ActionItems,
	}
	if payload.Urgency != nil && *payload.Urgency >= 0 && *payload.Urgency <= 10 {
		insights.Urgency = payload.Urgency
	}
	return insights, nil
}

// truncateBody truncates text to maxLen runes.
func truncateBody(body string, maxLen int) string {
	runes := []rune(body)
	if len(runes) <= maxLen {
		return body
	}
	return string(runes[:maxLen]) + "..."
}

// Interface compliance
var _ out.AIClient = (*Client)(nil)
