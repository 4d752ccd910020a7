// Package main is the entry point for the quanport portfolio selection service.
// It chooses fixed-size asset subsets that trade expected return against risk,
// comparing an exact enumeration with an approximate sampling solver, and
// backtests the chosen subsets over stored daily prices.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/quanport/internal/config"
	"github.com/aristath/quanport/internal/di"
	"github.com/aristath/quanport/internal/server"
	"github.com/aristath/quanport/pkg/logger"
)

// main orchestrates startup:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes logging
// 3. Wires all dependencies via the DI container (history.db, services, jobs)
// 4. Runs an initial price import when a source is configured
// 5. Starts the scheduler and the HTTP server
// 6. Waits for a shutdown signal and shuts down gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.DevMode,
		Service: "quanport",
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting quanport")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// Fill the history store before the first request when an import source exists
	if jobs.PriceImport != nil {
		if err := container.Scheduler.RunNow(jobs.PriceImport); err != nil {
			log.Warn().Err(err).Msg("Initial price import failed")
		}
	}

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:            log,
		Config:         cfg,
		Container:      container,
		Jobs:           jobs,
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stops the scheduler, waiting for running jobs, then closes history.db
	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close history database")
	}

	log.Info().Msg("Server stopped")
}
