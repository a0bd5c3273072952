// Package cache implements Redis-backed adapters.
package cache

import (
	"context"
	"fmt"
	"strings"

	"mailboard_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

const (
	searchHistoryPrefix = "search:recent:"
	searchHistoryCap    = 50
)

// SearchHistoryAdapter keeps per-user recent searches in a Redis list,
// newest first, deduplicated.
type SearchHistoryAdapter struct {
	client *redis.Client
}

// NewSearchHistoryAdapter creates a new search history adapter.
func NewSearchHistoryAdapter(client *redis.Client) *SearchHistoryAdapter {
	return &SearchHistoryAdapter{client: client}
}

func (a *SearchHistoryAdapter) key(userID int64) string {
	return fmt.Sprintf("%s%d", searchHistoryPrefix, userID)
}

// Record pushes a query to the front of the user's history.
func (a *SearchHistoryAdapter) Record(ctx context.Context, userID int64, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	key := a.key(userID)
	pipe := a.client.TxPipeline()
	pipe.LRem(ctx, key, 0, query)
	pipe.LPush(ctx, key, query)
	pipe.LTrim(ctx, key, 0, searchHistoryCap-1)
	_, err := pipe.Exec(ctx)
	return err
}

// Recent returns up to limit recent queries, newest first.
func (a *SearchHistoryAdapter) Recent(ctx context.Context, userID int64, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	queries, err := a.client.LRange(ctx, a.key(userID), 0, int64(limit-1)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return queries, err
}

// Interface compliance
var _ out.SearchHistory = (*SearchHistoryAdapter)(nil)
