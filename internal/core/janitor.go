package core

// janitor.go provides background cleanup of finished conversions.
//
// Finished conversions stay in the registry so clients can still fetch
// results, readings, and the SQL script after the fact. The janitor sweeps
// out conversions that have been finished longer than the TTL; their
// summaries survive in the recent-history ring. Running conversions are
// never swept.
//
// The janitor is designed to be long-running and context-aware for graceful
// shutdown.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultJobTTL is how long a finished conversion stays queryable.
const DefaultJobTTL = 15 * time.Minute

// DefaultSweepInterval is how often the janitor runs.
const DefaultSweepInterval = time.Minute

// JanitorConfig holds configuration for the registry janitor.
// Zero values fall back to the package defaults.
type JanitorConfig struct {
	JobTTL        time.Duration // How long finished conversions stay queryable
	SweepInterval time.Duration // How often to sweep
}

// StartJanitor starts a background goroutine that periodically removes
// finished conversions older than the TTL from the registry.
// It runs immediately on start, then every SweepInterval.
// The janitor stops when the context is cancelled.
func (s *Service) StartJanitor(ctx context.Context, cfg JanitorConfig) {
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = DefaultJobTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	slog.Info("janitor started",
		"job_ttl", cfg.JobTTL,
		"sweep_interval", cfg.SweepInterval,
	)

	// Run immediately on startup
	s.sweepExpired(cfg.JobTTL)

	// Then run periodically
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("janitor stopped")
			return
		case <-ticker.C:
			s.sweepExpired(cfg.JobTTL)
		}
	}
}

// sweepExpired removes conversions finished before now minus ttl.
func (s *Service) sweepExpired(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)
	removed := s.jobs.removeFinishedBefore(cutoff)
	if removed > 0 {
		slog.Debug("swept finished conversions",
			"removed", removed,
			"remaining", s.jobs.count(),
		)
	}
}
