/**
 * @description
 * Scheduled housekeeping for the portal: releasing abandoned wizard sessions and
 * purging expired flow state.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/config"
)

// Housekeeper defines the service operations the jobs drive.
type Housekeeper interface {
	SweepIdleSessions(idle time.Duration) int
	PurgeExpiredFlows(ctx context.Context) (int, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	service Housekeeper
	logger  *slog.Logger
	config  config.Config
}

// NewJobs creates a new Jobs runner.
func NewJobs(service Housekeeper, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		service: service,
		logger:  logger,
		config:  cfg,
	}
}

// SweepIdleSessions releases verification, OTP and calculation sessions the
// agent walked away from.
func (j *Jobs) SweepIdleSessions() {
	released := j.service.SweepIdleSessions(j.config.SessionIdle())
	if released > 0 {
		j.logger.Info("released idle wizard sessions", "count", released)
	}
}

// PurgeExpiredFlows removes persisted flow states past their lifetime.
func (j *Jobs) PurgeExpiredFlows() {
	ctx := context.Background()

	purged, err := j.service.PurgeExpiredFlows(ctx)
	if err != nil {
		j.logger.Error("failed to purge expired flow state", "error", err)
		return
	}
	if purged > 0 {
		j.logger.Info("purged expired flow state", "count", purged)
	}
}
