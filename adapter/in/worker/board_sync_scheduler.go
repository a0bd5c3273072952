// Package worker hosts the background schedulers.
package worker

import (
	"context"
	"time"

	"mailboard_server/core/service/sync"
	"mailboard_server/pkg/logger"
)

// SyncScheduler drives periodic incremental syncs, retry backoff and
// the stuck-sync watchdog for every mailbox.
type SyncScheduler struct {
	syncSvc        *sync.SyncService
	syncInterval   time.Duration
	watchdogCutoff time.Duration
	ctx            context.Context
	cancel         context.CancelFunc
}

// NewSyncScheduler creates a new sync scheduler.
func NewSyncScheduler(syncSvc *sync.SyncService, syncInterval, watchdogCutoff time.Duration) *SyncScheduler {
	if syncInterval <= 0 {
		syncInterval = 3 * time.Minute
	}
	if watchdogCutoff <= 0 {
		watchdogCutoff = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncScheduler{
		syncSvc:        syncSvc,
		syncInterval:   syncInterval,
		watchdogCutoff: watchdogCutoff,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start starts the scheduler loop.
func (s *SyncScheduler) Start() {
	logger.Info("Sync scheduler starting, interval %s", s.syncInterval)
	go s.run()
}

// Stop stops the scheduler.
func (s *SyncScheduler) Stop() {
	logger.Info("Sync scheduler stopping")
	s.cancel()
}

func (s *SyncScheduler) run() {
	syncTicker := time.NewTicker(s.syncInterval)
	defer syncTicker.Stop()

	// Retries and the watchdog tick faster than the sync interval so a
	// 60s backoff does not wait three minutes to fire.
	maintenanceTicker := time.NewTicker(30 * time.Second)
	defer maintenanceTicker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("Sync scheduler stopped")
			return
		case <-syncTicker.C:
			s.tickSync()
		case <-maintenanceTicker.C:
			s.tickMaintenance()
		}
	}
}

func (s *SyncScheduler) tickSync() {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Minute)
	defer cancel()

	if err := s.syncSvc.SyncAll(ctx); err != nil {
		logger.WithError(err).Error("Scheduled sync pass failed")
	}
}

func (s *SyncScheduler) tickMaintenance() {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Minute)
	defer cancel()

	if err := s.syncSvc.RunRetries(ctx); err != nil {
		logger.WithError(err).Error("Retry pass failed")
	}
	if err := s.syncSvc.RunWatchdog(ctx, s.watchdogCutoff); err != nil {
		logger.WithError(err).Error("Watchdog pass failed")
	}
}

// SetInterval sets the sync interval (for testing).
func (s *SyncScheduler) SetInterval(interval time.Duration) {
	s.syncInterval = interval
}
