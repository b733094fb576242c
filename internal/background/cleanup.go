package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/gradegate/internal/auth"
)

// CounterPurger deletes rate-limit counters idle since before
type CounterPurger interface {
	PurgeIdle(ctx context.Context, before time.Time) (int64, error)
}

// AttemptPurger deletes login attempt records older than before
type AttemptPurger interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// CleanupConfig controls how often cleanup runs and what it keeps
type CleanupConfig struct {
	Interval         time.Duration
	CounterRetention time.Duration
	AuditRetention   time.Duration
}

// CleanupManager periodically removes idle rate-limit counters and expired
// login attempt records. Counters are nil when they live in Redis, where keys expire on their own.
type CleanupManager struct {
	counters CounterPurger
	attempts AttemptPurger
	config   CleanupConfig
	clock    auth.Clock
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	counters CounterPurger,
	attempts AttemptPurger,
	config CleanupConfig,
	clock auth.Clock,
	logger *slog.Logger,
) *CleanupManager {
	return &CleanupManager{
		counters: counters,
		attempts: attempts,
		config:   config,
		clock:    clock,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start runs cleanup immediately and then on every interval until ctx is done or Stop is called
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.config.Interval)
	defer ticker.Stop()

	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single cleanup pass
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.clock.Now()

	if cm.counters != nil {
		purged, err := cm.counters.PurgeIdle(cleanupCtx, now.Add(-cm.config.CounterRetention))
		if err != nil {
			cm.logger.Error("failed to purge idle rate-limit counters", slog.Any("error", err))
		} else if purged > 0 {
			cm.logger.Info("idle rate-limit counters purged", slog.Int64("rows_deleted", purged))
		}
	}

	if cm.attempts != nil {
		deleted, err := cm.attempts.DeleteOlderThan(cleanupCtx, now.Add(-cm.config.AuditRetention))
		if err != nil {
			cm.logger.Error("failed to delete expired login attempts", slog.Any("error", err))
		} else if deleted > 0 {
			cm.logger.Info("expired login attempts deleted", slog.Int64("rows_deleted", deleted))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
