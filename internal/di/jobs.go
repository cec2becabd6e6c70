// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/aristath/atelier/internal/clientdata"
	"github.com/aristath/atelier/internal/config"
	"github.com/aristath/atelier/internal/modules/rates"
	"github.com/aristath/atelier/internal/scheduler"
	"github.com/rs/zerolog"
)

// Expired upstream responses are purged at 03:30 every day.
const clientDataCleanupSchedule = "0 30 3 * * *"

// RegisterJobs creates the background jobs and, when sched is non-nil,
// schedules them. Returns JobInstances for manual triggering.
func RegisterJobs(container *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{
		RatesSync:         rates.NewSyncJob(container.RatesService, 0, log),
		ClientDataCleanup: clientdata.NewCleanupJob(container.ClientDataRepo, log),
	}

	if sched == nil {
		return instances, nil
	}

	if err := sched.AddJob(cfg.Rates.SyncSchedule, instances.RatesSync); err != nil {
		return nil, fmt.Errorf("failed to register rates sync job: %w", err)
	}
	if err := sched.AddJob(clientDataCleanupSchedule, instances.ClientDataCleanup); err != nil {
		return nil, fmt.Errorf("failed to register client data cleanup job: %w", err)
	}

	log.Info().Int("jobs", 2).Msg("Jobs registered")
	return instances, nil
}
