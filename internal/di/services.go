// Package di provides dependency injection for service implementations.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/aristath/quanport/internal/config"
	"github.com/aristath/quanport/internal/modules/backtest"
	"github.com/aristath/quanport/internal/modules/marketdata"
	"github.com/aristath/quanport/internal/modules/selection"
	"github.com/aristath/quanport/internal/modules/statistics"
)

// InitializeServices creates all services and stores them in the container
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.MarketDataRepo == nil {
		return fmt.Errorf("repositories not initialized")
	}

	container.Workers = resolveWorkers(cfg.Workers, log)

	// Statistics: price provider -> builder -> cache
	container.PriceProvider = marketdata.NewProvider(container.MarketDataRepo, cfg.Statistics.LookbackDays, log)
	container.StatsBuilder = statistics.NewBuilder(cfg.Statistics.AnnualizationFactor, log)
	container.StatsCache = statistics.NewCache(
		container.PriceProvider,
		container.StatsBuilder,
		statistics.CacheConfig{
			TTL:         cfg.Statistics.CacheTTL,
			MaxEntries:  cfg.Statistics.CacheMaxEntries,
			LoadTimeout: cfg.RequestTimeout,
		},
		log,
	)

	container.SelectionService = selection.NewService(container.StatsCache, selection.ServiceConfig{
		MaxAssets:       cfg.Selection.MaxAssets,
		MaxCombinations: cfg.Selection.MaxCombinations,
		RunnersUp:       cfg.Selection.RunnersUp,
		Workers:         container.Workers,
		RequestTimeout:  cfg.RequestTimeout,
		Sampler: selection.SamplerConfig{
			Iterations:    cfg.Sampler.Iterations,
			Patience:      cfg.Sampler.Patience,
			BatchSize:     cfg.Sampler.BatchSize,
			Shots:         cfg.Sampler.Shots,
			EliteFraction: cfg.Sampler.EliteFraction,
			Smoothing:     cfg.Sampler.Smoothing,
			Seed:          cfg.Sampler.Seed,
		},
	}, log)

	container.BacktestService = backtest.NewService(container.PriceProvider, backtest.ServiceConfig{
		BenchmarkSymbol: cfg.Backtest.BenchmarkSymbol,
		MinTradingDays:  cfg.Backtest.MinTradingDays,
		DefaultDays:     cfg.Backtest.DefaultDays,
		MaxDays:         cfg.Backtest.MaxDays,
	}, log)

	importer, err := newImporter(container, cfg, log)
	if err != nil {
		return err
	}
	container.Importer = importer

	log.Info().Int("workers", container.Workers).Msg("All services initialized")
	return nil
}

// newImporter builds the price importer from the configured sources, or returns nil when none is set.
// Imported symbols drop out of the statistics cache so the next request sees the new prices.
func newImporter(container *Container, cfg *config.Config, log zerolog.Logger) (*marketdata.Importer, error) {
	if !cfg.Import.Enabled() {
		log.Info().Msg("No price import source configured, importer disabled")
		return nil, nil
	}

	var sources []marketdata.Source
	if cfg.Import.Dir != "" {
		sources = append(sources, marketdata.NewDirSource(cfg.Import.Dir))
	}
	if cfg.Import.S3Bucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s3Source, err := marketdata.NewS3Source(ctx, marketdata.S3Config{
			Bucket:          cfg.Import.S3Bucket,
			Prefix:          cfg.Import.S3Prefix,
			Region:          cfg.Import.AWSRegion,
			Endpoint:        cfg.Import.S3Endpoint,
			AccessKeyID:     cfg.Import.AWSAccessKeyID,
			SecretAccessKey: cfg.Import.AWSSecretAccessKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 import source: %w", err)
		}
		sources = append(sources, s3Source)
	}

	importer := marketdata.NewImporter(container.MarketDataRepo, log, sources...)
	importer.OnImport(func(symbols []string) {
		container.StatsCache.InvalidateSymbols(symbols)
	})
	return importer, nil
}

// resolveWorkers returns the configured worker count, or one per logical CPU when unset
func resolveWorkers(configured int, log zerolog.Logger) int {
	if configured > 0 {
		return configured
	}
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		log.Warn().Err(err).Msg("Failed to count CPUs, using a single worker")
		return 1
	}
	return n
}
