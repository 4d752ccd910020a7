// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/quanport/internal/config"
	"github.com/aristath/quanport/internal/modules/marketdata"
	"github.com/aristath/quanport/internal/modules/statistics"
	"github.com/aristath/quanport/internal/scheduler"
)

// RegisterJobs creates the background jobs and registers them with the scheduler.
// Returns JobInstances for manual triggering via API.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}
	if container.StatsCache == nil {
		return nil, fmt.Errorf("services not initialized")
	}

	container.Scheduler = scheduler.New(log)
	instances := &JobInstances{}

	// Statistics cache purge
	instances.CachePurge = statistics.NewPurgeJob(container.StatsCache, log)
	if err := container.Scheduler.AddJob(cfg.CachePurgeSchedule, instances.CachePurge); err != nil {
		return nil, fmt.Errorf("failed to register cache purge job: %w", err)
	}

	// Price import
	if container.Importer != nil {
		instances.PriceImport = marketdata.NewImportJob(container.Importer, log)
		if err := container.Scheduler.AddJob(cfg.Import.Schedule, instances.PriceImport); err != nil {
			return nil, fmt.Errorf("failed to register price import job: %w", err)
		}
	}

	// Database maintenance
	instances.CheckDatabase = scheduler.NewCheckDatabaseJob(container.HistoryDB, log)
	instances.CheckWAL = scheduler.NewCheckWALCheckpointsJob(container.HistoryDB, log)
	for _, job := range []scheduler.Job{instances.CheckDatabase, instances.CheckWAL} {
		if err := container.Scheduler.AddJob(cfg.MaintenanceSchedule, job); err != nil {
			return nil, fmt.Errorf("failed to register %s job: %w", job.Name(), err)
		}
	}

	log.Info().Int("jobs", container.Scheduler.Len()).Msg("Jobs registered")
	return instances, nil
}
