package bootstrap

import (
	"mailboard_server/adapter/in/worker"
	"mailboard_server/config"
	"mailboard_server/pkg/logger"
)

// Worker bundles the background schedulers: periodic mailbox sync,
// token refresh, snooze wake-ups and embedding enrichment.
type Worker struct {
	deps *Dependencies

	syncScheduler   *worker.SyncScheduler
	tokenScheduler  *worker.TokenRefreshScheduler
	snoozeScheduler *worker.SnoozeScheduler
	enrichScheduler *worker.EnrichScheduler
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}
	w := &Worker{
		deps:            deps,
		syncScheduler:   worker.NewSyncScheduler(deps.SyncService, cfg.SyncInterval, cfg.SyncWatchdogCutoff),
		tokenScheduler:  worker.NewTokenRefreshScheduler(deps.TokenService, cfg.TokenRefreshHorizon/2),
		snoozeScheduler: worker.NewSnoozeScheduler(deps.SnoozeService, cfg.SnoozeTickInterval),
		enrichScheduler: worker.NewEnrichScheduler(deps.EnrichService, cfg.EnrichInterval),
	}
	return w, cleanup, nil
}

// Start launches every scheduler. Non-blocking.
func (w *Worker) Start() {
	w.syncScheduler.Start()
	w.tokenScheduler.Start()
	w.snoozeScheduler.Start()
	w.enrichScheduler.Start()
	logger.Info("Worker schedulers started")
}

// Stop signals every scheduler and waits for in-flight runs.
func (w *Worker) Stop() {
	w.syncScheduler.Stop()
	w.tokenScheduler.Stop()
	w.snoozeScheduler.Stop()
	w.enrichScheduler.Stop()
	logger.Info("Worker schedulers stopped")
}
