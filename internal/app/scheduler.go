/**
 * @description
 * Cron scheduler setup for the portal housekeeping jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler. Both jobs share the
// sweep schedule.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.SessionSweepSchedule, s.jobs.SweepIdleSessions); err != nil {
		s.logger.Error("failed to schedule session sweep job", "error", err)
	} else {
		s.logger.Info("scheduled session sweep job", "schedule", s.config.SessionSweepSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.SessionSweepSchedule, s.jobs.PurgeExpiredFlows); err != nil {
		s.logger.Error("failed to schedule flow purge job", "error", err)
	} else {
		s.logger.Info("scheduled flow purge job", "schedule", s.config.SessionSweepSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
