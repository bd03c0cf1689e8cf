package chunk

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitrine-app/archive-ingest/internal/lock"
	"github.com/vitrine-app/archive-ingest/internal/metrics"
)

// SweeperConfig contains stale-session sweeper settings.
type SweeperConfig struct {
	// Interval is how often a sweep pass runs.
	Interval time.Duration

	// Retention is how long an untouched session survives.
	Retention time.Duration
}

// DefaultSweeperConfig returns the standard sweep cadence: hourly passes,
// 24-hour retention.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:  1 * time.Hour,
		Retention: 24 * time.Hour,
	}
}

// Sweeper deletes abandoned chunk sessions older than the retention window.
// It runs a pass immediately on Start and then on every interval tick.
type Sweeper struct {
	store   SessionStore
	locker  lock.Locker
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  SweeperConfig

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSweeper creates a Sweeper.
func NewSweeper(store SessionStore, locker lock.Locker, m *metrics.Metrics, logger zerolog.Logger, config SweeperConfig) *Sweeper {
	return &Sweeper{
		store:    store,
		locker:   locker,
		metrics:  m,
		logger:   logger.With().Str("service", "sweeper").Logger(),
		config:   config,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the sweep scheduler.
func (sw *Sweeper) Start() {
	sw.mu.Lock()
	if sw.running {
		sw.mu.Unlock()
		return
	}
	sw.running = true
	sw.mu.Unlock()

	sw.logger.Info().
		Dur("interval", sw.config.Interval).
		Dur("retention", sw.config.Retention).
		Msg("starting stale-session sweeper")

	go sw.runLoop()
}

// Stop stops the sweep scheduler and waits for the loop to exit.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.stopChan)
	<-sw.doneChan

	sw.logger.Info().Msg("stale-session sweeper stopped")
}

// runLoop is the main sweep loop.
func (sw *Sweeper) runLoop() {
	defer close(sw.doneChan)

	// Run immediately on start to clear sessions abandoned while down.
	sw.RunOnce(context.Background())

	ticker := time.NewTicker(sw.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.RunOnce(context.Background())
		case <-sw.stopChan:
			return
		}
	}
}

// RunOnce executes a single sweep pass and returns the number of sessions
// removed. Failures on individual entries are logged and do not halt the
// sweep of remaining entries.
func (sw *Sweeper) RunOnce(ctx context.Context) int {
	// Only one sweeper instance runs a pass at a time. Another holder
	// means a pass is already underway, so this one is skipped.
	sweepLock := lock.NewLock(sw.locker, lock.Keys.SessionSweep())
	acquired, err := sweepLock.Acquire(ctx, sw.config.Interval)
	if err != nil {
		sw.logger.Error().Err(err).Msg("failed to acquire sweep lock")
		return 0
	}
	if !acquired {
		sw.logger.Debug().Msg("sweep already running elsewhere, skipping pass")
		return 0
	}
	defer func() {
		if err := sweepLock.Release(ctx); err != nil {
			sw.logger.Error().Err(err).Msg("failed to release sweep lock")
		}
	}()

	cutoff := time.Now().Add(-sw.config.Retention)

	expired, err := sw.store.ListExpired(ctx, cutoff)
	if err != nil {
		sw.logger.Error().Err(err).Msg("failed to list expired sessions")
		return 0
	}

	swept := 0
	for _, id := range expired {
		if err := sw.store.Delete(ctx, id); err != nil {
			sw.logger.Error().Err(err).Str("session_id", id).Msg("failed to delete expired session")
			continue
		}
		swept++
		sw.logger.Debug().Str("session_id", id).Msg("swept expired session")
	}

	sw.metrics.RecordSweep(swept)
	if swept > 0 {
		sw.logger.Info().Int("swept", swept).Msg("stale-session sweep completed")
	}
	return swept
}
