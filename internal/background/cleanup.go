package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Purger removes expired records and reports how many were dropped
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// EventPruner removes security events older than a cutoff
type EventPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically drops expired in-memory codes, expired email
// verification tokens and aged security events. Any collaborator may be nil.
type CleanupManager struct {
	codes     Purger
	tokens    Purger
	events    EventPruner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(codes, tokens Purger, events EventPruner, retention, interval time.Duration, logger *slog.Logger) *CleanupManager {
	return &CleanupManager{
		codes:     codes,
		tokens:    tokens,
		events:    events,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start runs a cleanup pass immediately and then on every interval until
// ctx is cancelled or Stop is called
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
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

	if cm.codes != nil {
		purged, err := cm.codes.PurgeExpired(cleanupCtx)
		if err != nil {
			cm.logger.Error("failed to purge expired codes", slog.Any("error", err))
		} else if purged > 0 {
			cm.logger.Info("expired codes purged", slog.Int64("count", purged))
		}
	}

	if cm.tokens != nil {
		purged, err := cm.tokens.PurgeExpired(cleanupCtx)
		if err != nil {
			cm.logger.Error("failed to purge expired verification tokens", slog.Any("error", err))
		} else if purged > 0 {
			cm.logger.Info("expired verification tokens purged", slog.Int64("count", purged))
		}
	}

	if cm.events != nil && cm.retention > 0 {
		deleted, err := cm.events.DeleteOlderThan(cleanupCtx, cm.now().Add(-cm.retention))
		if err != nil {
			cm.logger.Error("failed to prune security events", slog.Any("error", err))
		} else if deleted > 0 {
			cm.logger.Info("aged security events pruned", slog.Int64("count", deleted))
		}
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
