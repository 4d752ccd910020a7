/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server for access to services.
 */
package di

import (
	"github.com/aristath/quanport/internal/database"
	"github.com/aristath/quanport/internal/modules/backtest"
	"github.com/aristath/quanport/internal/modules/marketdata"
	"github.com/aristath/quanport/internal/modules/selection"
	"github.com/aristath/quanport/internal/modules/statistics"
	"github.com/aristath/quanport/internal/scheduler"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: history.db (securities, daily closes, import fingerprints)
 * - Repositories: price history access
 * - Services: statistics cache, selection solvers, backtests, price import
 * - Scheduler: cron jobs for cache purging, imports and database maintenance
 */
type Container struct {
	// Databases
	HistoryDB *database.DB

	// Repositories
	MarketDataRepo *marketdata.Repository

	// Services
	PriceProvider    *marketdata.Provider
	StatsBuilder     *statistics.Builder
	StatsCache       *statistics.Cache
	SelectionService *selection.Service
	BacktestService  *backtest.Service
	Importer         *marketdata.Importer // nil when no import source is configured

	Scheduler *scheduler.Scheduler
	Workers   int
}

// JobInstances holds the scheduled jobs for manual triggering via API
type JobInstances struct {
	CachePurge    scheduler.Job
	PriceImport   scheduler.Job // nil when no import source is configured
	CheckDatabase scheduler.Job
	CheckWAL      scheduler.Job
}

// Close stops the scheduler and closes the databases
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.HistoryDB != nil {
		return c.HistoryDB.Close()
	}
	return nil
}
