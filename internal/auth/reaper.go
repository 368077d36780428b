package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/epiwatch/epiwatch-api/internal/metrics"
	"github.com/epiwatch/epiwatch-api/internal/repository"
)

// ReaperConfig holds configuration for the session reaper
type ReaperConfig struct {
	// Interval between sweeps (default: 5 minutes)
	Interval time.Duration
	// FailedAttemptRetention is how long failed login attempts are kept
	// (default: 24 hours)
	FailedAttemptRetention time.Duration
	// Enabled controls whether the background loop runs at all
	Enabled bool
}

// DefaultReaperConfig returns default configuration
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Interval:               5 * time.Minute,
		FailedAttemptRetention: 24 * time.Hour,
		Enabled:                true,
	}
}

// SweepResult holds the outcome of a single sweep
type SweepResult struct {
	StartTime       time.Time
	EndTime         time.Time
	SessionsRemoved int64
	AttemptsRemoved int64
}

// Reaper periodically purges expired sessions. It is maintenance, not
// correctness: Validate already treats expired rows as invalid whether
// or not they have been physically removed.
type Reaper struct {
	sessions repository.SessionRepository
	config   ReaperConfig
	logger   *slog.Logger

	stopChan   chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	lastRun    time.Time
	lastResult *SweepResult

	now func() time.Time
}

// NewReaper creates a new session reaper
func NewReaper(sessions repository.SessionRepository, config ReaperConfig, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.FailedAttemptRetention <= 0 {
		config.FailedAttemptRetention = 24 * time.Hour
	}
	return &Reaper{
		sessions: sessions,
		config:   config,
		logger:   logger,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Sweep deletes every session whose expires_at is at or before the
// current time and returns the number of rows removed. Expired failed
// login attempts ride along on the same schedule.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	start := r.now().UTC()

	removed, err := r.sessions.DeleteExpired(ctx, start)
	if err != nil {
		return 0, err
	}
	metrics.SessionsReaped.Add(float64(removed))

	attempts, err := r.sessions.DeleteOldFailedAttempts(ctx, start.Add(-r.config.FailedAttemptRetention))
	if err != nil {
		// Sessions are already gone; report the partial result.
		r.logger.Warn("failed to prune old login attempts", "error", err)
		attempts = 0
	}

	result := &SweepResult{
		StartTime:       start,
		EndTime:         r.now().UTC(),
		SessionsRemoved: removed,
		AttemptsRemoved: attempts,
	}

	r.mu.Lock()
	r.lastRun = start
	r.lastResult = result
	r.mu.Unlock()

	return removed, nil
}

// Start begins the periodic sweep loop
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	if !r.config.Enabled {
		r.logger.Info("session reaper is disabled")
		return
	}

	r.running = true
	r.stopChan = make(chan struct{})
	r.wg.Add(1)

	go r.run()

	r.logger.Info("session reaper started", "interval", r.config.Interval)
}

// Stop stops the periodic sweep loop and waits for it to exit
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("session reaper stopped")
}

// IsRunning reports whether the background loop is active
func (r *Reaper) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastResult returns the outcome of the most recent sweep, if any
func (r *Reaper) LastResult() *SweepResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastResult
}

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweepOnce()
		case <-r.stopChan:
			return
		}
	}
}

// sweepOnce runs a single sweep with a bounded context. A failed sweep
// is logged and retried on the next tick; it never takes the process down.
func (r *Reaper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := r.Sweep(ctx)
	if err != nil {
		r.logger.Error("session sweep failed, will retry on next tick", "error", err)
		return
	}

	if removed > 0 {
		r.logger.Info("session sweep completed", "sessions_removed", removed)
	}
}
