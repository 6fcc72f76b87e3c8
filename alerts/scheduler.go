/*
scheduler.go - In-process deadline alert scheduler

PURPOSE:
  Periodically runs Engine.Scan for single-binary deployments. Production
  setups usually trigger the scan from cron (rosterctl scan) or the admin
  endpoint instead. Overlapping scans share the store's milestone claims,
  so a reminder still goes out once.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Scans once immediately on start
  - Keeps the last report for the admin API

CONFIGURATION:
  - CheckInterval: How often to scan (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - engine.go: Milestone rules
  - api/handlers.go: ScanAlerts endpoint (manual trigger)
*/
package alerts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/crew-roster/generic"
)

// Scheduler runs the alert scan on a ticker.
type Scheduler struct {
	Engine        *Engine
	CheckInterval time.Duration
	Enabled       bool
	// Today returns the scan date. Defaults to generic.Today.
	Today func() generic.TimePoint

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu  sync.RWMutex
	last    *ScanReport
	lastErr error
	lastRun time.Time
}

// NewScheduler creates a new scheduler.
func NewScheduler(engine *Engine, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Engine:        engine,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Today:         generic.Today,
		logger:        logger.Named("alert-scheduler"),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.logger.Info("started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight scan.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info("stopped")
	}
}

func (s *Scheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow scans immediately and records the report.
func (s *Scheduler) RunNow(ctx context.Context) (ScanReport, error) {
	report, err := s.Engine.Scan(ctx, s.Today())
	if err != nil {
		s.logger.Error("scan finished with errors", zap.Error(err))
	}

	s.lastMu.Lock()
	s.last = &report
	s.lastErr = err
	s.lastRun = time.Now()
	s.lastMu.Unlock()

	return report, err
}

// LastRun returns the most recent report, or nil before the first scan.
func (s *Scheduler) LastRun() (*ScanReport, time.Time, error) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last, s.lastRun, s.lastErr
}

// GetNextRunTime returns when the next scheduled check will occur.
func (s *Scheduler) GetNextRunTime() time.Time {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.lastRun.IsZero() {
		return time.Now()
	}
	return s.lastRun.Add(s.CheckInterval)
}
