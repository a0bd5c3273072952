package worker

import (
	"context"
	"time"

	"mailboard_server/core/service/snooze"
	"mailboard_server/pkg/logger"
)

// SnoozeScheduler returns due snoozed messages to the board once a
// minute.
type SnoozeScheduler struct {
	snoozeSvc *snooze.Service
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewSnoozeScheduler creates a new snooze scheduler.
func NewSnoozeScheduler(snoozeSvc *snooze.Service, interval time.Duration) *SnoozeScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SnoozeScheduler{
		snoozeSvc: snoozeSvc,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the scheduler loop.
func (s *SnoozeScheduler) Start() {
	logger.Info("Snooze scheduler starting, interval %s", s.interval)
	go s.run()
}

// Stop stops the scheduler.
func (s *SnoozeScheduler) Stop() {
	logger.Info("Snooze scheduler stopping")
	s.cancel()
}

func (s *SnoozeScheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("Snooze scheduler stopped")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
			if _, err := s.snoozeSvc.Run(ctx); err != nil {
				logger.WithError(err).Error("Snooze wake pass failed")
			}
			cancel()
		}
	}
}

// SetInterval sets the tick interval (for testing).
func (s *SnoozeScheduler) SetInterval(interval time.Duration) {
	s.interval = interval
}
