// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for history.db (always absolute)
	LogLevel       string
	Port           int
	DevMode        bool
	RequestTimeout time.Duration
	Workers        int      // 0 = one per logical CPU
	AllowedOrigins []string // CORS and websocket origins; empty allows any

	Statistics StatisticsConfig
	Selection  SelectionConfig
	Sampler    SamplerConfig
	Backtest   BacktestConfig
	Import     ImportConfig

	CachePurgeSchedule  string
	MaintenanceSchedule string // history.db integrity and WAL checks
}

// StatisticsConfig controls how asset statistics are built and cached
type StatisticsConfig struct {
	CacheTTL            time.Duration
	CacheMaxEntries     int
	LookbackDays        int
	AnnualizationFactor float64
}

// SelectionConfig bounds the size of optimization problems
type SelectionConfig struct {
	MaxAssets       int
	MaxCombinations int64
	RunnersUp       int
}

// SamplerConfig tunes the approximate sampling solver
type SamplerConfig struct {
	Iterations    int
	Patience      int
	BatchSize     int
	Shots         int
	EliteFraction float64
	Smoothing     float64
	Seed          uint64
}

// BacktestConfig tunes the backtest engine
type BacktestConfig struct {
	BenchmarkSymbol string
	MinTradingDays  int
	DefaultDays     int
	MaxDays         int
}

// ImportConfig describes where price history CSV files are imported from
type ImportConfig struct {
	Dir                string
	S3Bucket           string
	S3Prefix           string
	S3Endpoint         string // optional, for S3-compatible stores such as R2 or MinIO
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	Schedule           string
}

// Enabled reports whether any import source is configured
func (c ImportConfig) Enabled() bool {
	return c.Dir != "" || c.S3Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           getEnvAsInt("GO_PORT", 8001),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		Workers:        getEnvAsInt("WORKERS", 0),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS"),
		Statistics: StatisticsConfig{
			CacheTTL:            getEnvAsDuration("STATS_CACHE_TTL", 5*time.Minute),
			CacheMaxEntries:     getEnvAsInt("STATS_CACHE_MAX_ENTRIES", 256),
			LookbackDays:        getEnvAsInt("LOOKBACK_DAYS", 60),
			AnnualizationFactor: getEnvAsFloat("ANNUALIZATION_FACTOR", 252),
		},
		Selection: SelectionConfig{
			MaxAssets:       getEnvAsInt("MAX_ASSETS", 20),
			MaxCombinations: int64(getEnvAsInt("MAX_COMBINATIONS", 1_000_000)),
			RunnersUp:       getEnvAsInt("RUNNERS_UP", 5),
		},
		Sampler: SamplerConfig{
			Iterations:    getEnvAsInt("SAMPLER_ITERATIONS", 100),
			Patience:      getEnvAsInt("SAMPLER_PATIENCE", 20),
			BatchSize:     getEnvAsInt("SAMPLER_BATCH_SIZE", 64),
			Shots:         getEnvAsInt("SAMPLER_SHOTS", 1024),
			EliteFraction: getEnvAsFloat("SAMPLER_ELITE_FRACTION", 0.2),
			Smoothing:     getEnvAsFloat("SAMPLER_SMOOTHING", 0.7),
			Seed:          uint64(getEnvAsInt("SAMPLER_SEED", 42)),
		},
		Backtest: BacktestConfig{
			BenchmarkSymbol: getEnv("BENCHMARK_SYMBOL", "^GSPC"),
			MinTradingDays:  getEnvAsInt("BACKTEST_MIN_DAYS", 10),
			DefaultDays:     getEnvAsInt("BACKTEST_DEFAULT_DAYS", 90),
			MaxDays:         getEnvAsInt("BACKTEST_MAX_DAYS", 365),
		},
		Import: ImportConfig{
			Dir:                getEnv("PRICE_IMPORT_DIR", ""),
			S3Bucket:           getEnv("PRICE_IMPORT_S3_BUCKET", ""),
			S3Prefix:           getEnv("PRICE_IMPORT_S3_PREFIX", ""),
			S3Endpoint:         getEnv("PRICE_IMPORT_S3_ENDPOINT", ""),
			AWSRegion:          getEnv("AWS_REGION", "eu-north-1"),
			AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Schedule:           getEnv("PRICE_IMPORT_SCHEDULE", "@hourly"),
		},
		CachePurgeSchedule:  getEnv("CACHE_PURGE_SCHEDULE", "@every 1m"),
		MaintenanceSchedule: getEnv("DB_MAINTENANCE_SCHEDULE", "0 0 3 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that numeric settings are within usable ranges
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Statistics.CacheTTL <= 0 {
		return fmt.Errorf("STATS_CACHE_TTL must be positive, got %s", c.Statistics.CacheTTL)
	}
	if c.Statistics.LookbackDays < 2 {
		return fmt.Errorf("LOOKBACK_DAYS must be at least 2, got %d", c.Statistics.LookbackDays)
	}
	if c.Statistics.AnnualizationFactor <= 0 {
		return fmt.Errorf("ANNUALIZATION_FACTOR must be positive, got %g", c.Statistics.AnnualizationFactor)
	}
	// Patterns are 32-bit masks
	if c.Selection.MaxAssets < 2 || c.Selection.MaxAssets > 32 {
		return fmt.Errorf("MAX_ASSETS must be between 2 and 32, got %d", c.Selection.MaxAssets)
	}
	if c.Selection.MaxCombinations <= 0 {
		return fmt.Errorf("MAX_COMBINATIONS must be positive, got %d", c.Selection.MaxCombinations)
	}
	if c.Sampler.Iterations <= 0 || c.Sampler.BatchSize <= 0 || c.Sampler.Shots <= 0 {
		return fmt.Errorf("sampler iterations, batch size and shots must be positive")
	}
	if c.Sampler.EliteFraction <= 0 || c.Sampler.EliteFraction > 1 {
		return fmt.Errorf("SAMPLER_ELITE_FRACTION must be in (0, 1], got %g", c.Sampler.EliteFraction)
	}
	if c.Sampler.Smoothing <= 0 || c.Sampler.Smoothing > 1 {
		return fmt.Errorf("SAMPLER_SMOOTHING must be in (0, 1], got %g", c.Sampler.Smoothing)
	}
	if c.Backtest.MinTradingDays < 2 {
		return fmt.Errorf("BACKTEST_MIN_DAYS must be at least 2, got %d", c.Backtest.MinTradingDays)
	}
	if c.Backtest.MaxDays < c.Backtest.MinTradingDays {
		return fmt.Errorf("BACKTEST_MAX_DAYS (%d) is below BACKTEST_MIN_DAYS (%d)", c.Backtest.MaxDays, c.Backtest.MinTradingDays)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
