package jobs

import (
	"context"
	"time"

	"scout/internal/metrics"
)

// RetentionStats captures the number of records deleted by one TTL sweep.
type RetentionStats struct {
	JobsDeleted      int   `json:"jobsDeleted"`
	ArtifactsDeleted int64 `json:"artifactsDeleted"`
}

// RunRetention deletes old terminal jobs and, when an artifact index is
// configured, expired artifact rows, so neither grows without bound.
func (s *Scheduler) RunRetention(ctx context.Context) RetentionStats {
	var stats RetentionStats
	if !s.cfg.Retention.Enabled {
		return stats
	}

	now := time.Now().UTC()

	if days := s.cfg.Retention.JobDays; days > 0 {
		cutoff := now.AddDate(0, 0, -days)
		if n := s.store.DeleteOlderThan(cutoff); n > 0 {
			stats.JobsDeleted = n
			metrics.RecordRetentionJobs(n)
		}
	}

	if s.index != nil {
		if days := s.cfg.Retention.ArtifactDays; days > 0 {
			cutoff := now.AddDate(0, 0, -days)
			if n, err := s.index.DeleteArtifactsOlderThan(ctx, cutoff); err == nil && n > 0 {
				stats.ArtifactsDeleted = n
				metrics.RecordRetentionArtifacts(n)
			} else if err != nil {
				s.logger.Warn("artifact retention sweep failed", "error", err)
			}
		}
	}

	return stats
}

// StartRetention runs periodic TTL sweeps until ctx is cancelled. Callers
// typically run this in its own goroutine alongside the HTTP server.
func (s *Scheduler) StartRetention(ctx context.Context) {
	if !s.cfg.Retention.Enabled {
		return
	}

	interval := time.Duration(s.cfg.Scheduler.RetentionSweepMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats := s.RunRetention(ctx)
		if stats.JobsDeleted > 0 || stats.ArtifactsDeleted > 0 {
			s.logger.Info("retention sweep",
				"jobs_deleted", stats.JobsDeleted,
				"artifacts_deleted", stats.ArtifactsDeleted)
		}
	}
}
