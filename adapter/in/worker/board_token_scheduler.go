package worker

import (
	"context"
	"time"

	"mailboard_server/core/service/auth"
	"mailboard_server/pkg/logger"
)

// TokenRefreshScheduler proactively refreshes OAuth tokens before they
// expire so syncs never start with a dead token.
type TokenRefreshScheduler struct {
	tokens   *auth.TokenService
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewTokenRefreshScheduler creates a new token refresh scheduler.
func NewTokenRefreshScheduler(tokens *auth.TokenService, interval time.Duration) *TokenRefreshScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TokenRefreshScheduler{
		tokens:   tokens,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the scheduler loop.
func (s *TokenRefreshScheduler) Start() {
	logger.Info("Token refresh scheduler starting, interval %s", s.interval)
	go s.run()
}

// Stop stops the scheduler.
func (s *TokenRefreshScheduler) Stop() {
	logger.Info("Token refresh scheduler stopping")
	s.cancel()
}

func (s *TokenRefreshScheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("Token refresh scheduler stopped")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, 2*time.Minute)
			if _, err := s.tokens.RefreshExpiring(ctx); err != nil {
				logger.WithError(err).Error("Token refresh pass failed")
			}
			cancel()
		}
	}
}

// SetInterval sets the refresh interval (for testing).
func (s *TokenRefreshScheduler) SetInterval(interval time.Duration) {
	s.interval = interval
}
