package database

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"cellar/logger"
)

// HealthMonitor pings the pool in the background and remembers the outcome.
// The pool itself re-dials broken connections; the monitor only reports.
type HealthMonitor struct {
	db       *gorm.DB
	interval time.Duration
	log      *logger.Logger

	mutex           sync.RWMutex
	isHealthy       bool
	lastHealthCheck time.Time
	lastError       error
	failures        int

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewHealthMonitor creates a monitor for db
func NewHealthMonitor(db *gorm.DB, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthMonitor{
		db:       db,
		interval: interval,
		log:      logger.New("HealthMonitor"),
		stopChan: make(chan struct{}),
	}
}

// Start runs one check immediately and then one per interval until ctx ends or Stop is called
func (hm *HealthMonitor) Start(ctx context.Context) {
	hm.Check(ctx)
	go hm.healthCheckLoop(ctx)
}

// Stop ends the background loop
func (hm *HealthMonitor) Stop() {
	hm.stopOnce.Do(func() { close(hm.stopChan) })
}

func (hm *HealthMonitor) healthCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(hm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-hm.stopChan:
			return
		case <-ticker.C:
			hm.Check(ctx)
		}
	}
}

// Check pings the database once and records the result
func (hm *HealthMonitor) Check(ctx context.Context) bool {
	err := CheckDatabaseConnection(ctx, hm.db)

	hm.mutex.Lock()
	defer hm.mutex.Unlock()

	if err != nil {
		hm.failures++
		if hm.isHealthy || hm.failures == 1 {
			hm.log.Warning("Check", "database unhealthy: %v", err)
		}
		hm.isHealthy = false
		hm.lastError = err
		return false
	}

	if !hm.isHealthy && hm.failures > 0 {
		hm.log.Info("Check", "database recovered after %d failed checks", hm.failures)
	}
	hm.isHealthy = true
	hm.failures = 0
	hm.lastError = nil
	hm.lastHealthCheck = time.Now()
	return true
}

// IsHealthy returns the current health status
func (hm *HealthMonitor) IsHealthy() bool {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()
	return hm.isHealthy
}

// GetLastHealthCheck returns the time of the last successful health check
func (hm *HealthMonitor) GetLastHealthCheck() time.Time {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()
	return hm.lastHealthCheck
}

// LastError returns the error of the most recent failed check, or nil
func (hm *HealthMonitor) LastError() error {
	hm.mutex.RLock()
	defer hm.mutex.RUnlock()
	return hm.lastError
}
