package dashboard

// scheduler.go keeps the loaded datasets in step with the files on disk.
//
// The scheduler checks every source once on start and then every interval,
// reloading only those whose size or modification time changed. A failed
// reload is logged and the previous dataset keeps serving.

import (
	"context"
	"time"
)

// StartReloadScheduler runs until ctx is cancelled. interval must be
// positive.
func (s *Service) StartReloadScheduler(ctx context.Context, interval time.Duration) {
	s.logger.Info("reload scheduler started",
		"interval", interval.String(),
		"sources", s.catalog.Len(),
	)

	s.runReloadJob(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reload scheduler stopped")
			return
		case <-ticker.C:
			s.runReloadJob(ctx)
		}
	}
}

// runReloadJob performs one check-and-reload cycle.
func (s *Service) runReloadJob(ctx context.Context) {
	start := time.Now()

	reloaded, err := s.ReloadChanged(ctx)
	if err != nil {
		s.logger.Error("reload check failed", "error", err)
	}
	if reloaded > 0 {
		s.logger.Info("changed sources reloaded",
			"sources_reloaded", reloaded,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	s.logger.Debug("reload check completed", "duration_ms", time.Since(start).Milliseconds())
}
