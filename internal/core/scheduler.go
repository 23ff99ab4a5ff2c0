package core

// scheduler.go runs background maintenance.
//
// The validation log grows with every import. StartLogRetention purges
// entries older than the retention window once at start and then on every
// tick. A failed purge is logged and retried on the next tick; it never
// stops the service.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/treedata/internal/config"
)

// StartLogRetention blocks, purging old validation log entries until ctx
// is cancelled. A non-positive retention disables purging.
func (s *Service) StartLogRetention(ctx context.Context, cfg config.ValidationLogConfig) {
	if cfg.RetentionDays <= 0 {
		slog.Info("validation log retention disabled")
		return
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	slog.Info("validation log retention started",
		"retention_days", cfg.RetentionDays,
		"check_interval", interval,
	)

	s.purgeValidationLog(ctx, cfg.Retention())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("validation log retention stopped")
			return
		case <-ticker.C:
			s.purgeValidationLog(ctx, cfg.Retention())
		}
	}
}

// purgeValidationLog performs one purge and returns the number removed.
func (s *Service) purgeValidationLog(ctx context.Context, retention time.Duration) int64 {
	start := time.Now()
	cutoff := s.now().Add(-retention)

	purged, err := s.store.PurgeValidationLog(ctx, cutoff)
	if err != nil {
		slog.Error("validation log purge failed", "error", err)
		return 0
	}

	slog.Info("purged validation log entries",
		"entries_purged", purged,
		"cutoff", cutoff.UTC().Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return purged
}
