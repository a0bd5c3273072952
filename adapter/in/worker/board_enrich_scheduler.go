package worker

import (
	"context"
	"time"

	"mailboard_server/core/service/enrich"
	"mailboard_server/pkg/logger"
)

// EnrichScheduler backfills message embeddings in periodic batches.
type EnrichScheduler struct {
	enrichSvc *enrich.Service
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewEnrichScheduler creates a new enrichment scheduler.
func NewEnrichScheduler(enrichSvc *enrich.Service, interval time.Duration) *EnrichScheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EnrichScheduler{
		enrichSvc: enrichSvc,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the scheduler loop.
func (s *EnrichScheduler) Start() {
	logger.Info("Enrichment scheduler starting, interval %s", s.interval)
	go s.run()
}

// Stop stops the scheduler.
func (s *EnrichScheduler) Stop() {
	logger.Info("Enrichment scheduler stopping")
	s.cancel()
}

func (s *EnrichScheduler) run() {
	// Let the first sync land some messages before burning API quota.
	time.Sleep(30 * time.Second)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("Enrichment scheduler stopped")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
			if _, err := s.enrichSvc.Run(ctx); err != nil {
				logger.WithError(err).Error("Embedding batch failed")
			}
			cancel()
		}
	}
}

// SetInterval sets the tick interval (for testing).
func (s *EnrichScheduler) SetInterval(interval time.Duration) {
	s.interval = interval
}
