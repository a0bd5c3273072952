// Package metrics exposes connection pool statistics for the health
// endpoints.
package metrics

import (
	"database/sql"
	"sync"
	"time"
)

// PoolStats is a point-in-time snapshot of a database pool.
type PoolStats struct {
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	MaxOpenConnections int           `json:"max_open_connections"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// Saturated reports whether the pool is running at its limit with
// callers queueing for connections.
func (s PoolStats) Saturated() bool {
	return s.MaxOpenConnections > 0 &&
		s.InUse >= s.MaxOpenConnections &&
		s.WaitCount > 0
}

func snapshot(db *sql.DB) PoolStats {
	if db == nil {
		return PoolStats{}
	}
	st := db.Stats()
	return PoolStats{
		OpenConnections:    st.OpenConnections,
		InUse:              st.InUse,
		Idle:               st.Idle,
		MaxOpenConnections: st.MaxOpenConnections,
		WaitCount:          st.WaitCount,
		WaitDuration:       st.WaitDuration,
	}
}

// PoolMonitor tracks registered pools by name.
type PoolMonitor struct {
	mu    sync.RWMutex
	pools map[string]*sql.DB
}

func NewPoolMonitor() *PoolMonitor {
	return &PoolMonitor{pools: make(map[string]*sql.DB)}
}

func (m *PoolMonitor) Register(name string, db *sql.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[name] = db
}

// AllStats returns a snapshot of every registered pool.
func (m *PoolMonitor) AllStats() map[string]PoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]PoolStats, len(m.pools))
	for name, db := range m.pools {
		result[name] = snapshot(db)
	}
	return result
}

var (
	globalMonitor     *PoolMonitor
	globalMonitorOnce sync.Once
)

func globalPoolMonitor() *PoolMonitor {
	globalMonitorOnce.Do(func() {
		globalMonitor = NewPoolMonitor()
	})
	return globalMonitor
}

// RegisterPool registers a pool with the global monitor.
func RegisterPool(name string, db *sql.DB) {
	globalPoolMonitor().Register(name, db)
}

// AllPoolStats returns snapshots from the global monitor.
func AllPoolStats() map[string]PoolStats {
	return globalPoolMonitor().AllStats()
}
