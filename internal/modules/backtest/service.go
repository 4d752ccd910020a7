package backtest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/quanport/internal/domain"
	"github.com/aristath/quanport/internal/utils"
)

const (
	// DefaultDays is the window used when a request does not name one
	DefaultDays = 90
	// DefaultMaxDays caps the window of a single request
	DefaultMaxDays = 365
)

// Request is the body of POST /api/backtest
type Request struct {
	Symbols    []string `json:"symbols"`
	SelectionA []int    `json:"selectionA"`
	SelectionB []int    `json:"selectionB,omitempty"`
	Days       int      `json:"days"`
}

// PriceLoader loads aligned closes for a universe and a benchmark series.
// Implemented by marketdata.Provider.
type PriceLoader interface {
	LoadAligned(ctx context.Context, symbols []string, points int) ([]domain.Asset, error)
	LoadBenchmark(ctx context.Context, symbol string, points int) (*domain.Asset, error)
}

// ServiceConfig configures the backtest service
type ServiceConfig struct {
	BenchmarkSymbol string
	MinTradingDays  int
	DefaultDays     int
	MaxDays         int
}

// Service loads price history and runs the engine
type Service struct {
	prices          PriceLoader
	engine          *Engine
	benchmarkSymbol string
	defaultDays     int
	maxDays         int
	log             zerolog.Logger
}

// NewService creates a backtest service
func NewService(prices PriceLoader, cfg ServiceConfig, log zerolog.Logger) *Service {
	engine := NewEngine(cfg.MinTradingDays, log)
	if cfg.DefaultDays <= 0 {
		cfg.DefaultDays = DefaultDays
	}
	if cfg.MaxDays < engine.MinTradingDays() {
		cfg.MaxDays = DefaultMaxDays
	}
	return &Service{
		prices:          prices,
		engine:          engine,
		benchmarkSymbol: cfg.BenchmarkSymbol,
		defaultDays:     cfg.DefaultDays,
		maxDays:         cfg.MaxDays,
		log:             log.With().Str("service", "backtest").Logger(),
	}
}

// ClampDays maps a requested window onto [MinTradingDays, MaxDays]; 0 picks the default
func (s *Service) ClampDays(days int) int {
	if days <= 0 {
		days = s.defaultDays
	}
	if days < s.engine.MinTradingDays() {
		days = s.engine.MinTradingDays()
	}
	if days > s.maxDays {
		days = s.maxDays
	}
	return days
}

// Run backtests the request's selections over the stored price history
func (s *Service) Run(ctx context.Context, req Request) (*Series, error) {
	symbols := utils.NormalizeSymbols(req.Symbols)
	if len(symbols) == 0 || len(symbols) != len(req.Symbols) {
		return nil, domain.NewValidationError("symbols", "symbols must be a non-empty list of non-empty strings")
	}
	seen := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if _, dup := seen[sym]; dup {
			return nil, domain.NewValidationError("symbols", "duplicate symbol %s", sym)
		}
		seen[sym] = struct{}{}
	}

	days := s.ClampDays(req.Days)

	assets, err := s.prices.LoadAligned(ctx, symbols, days)
	if err != nil {
		return nil, fmt.Errorf("failed to load price history: %w", err)
	}

	// Load extra benchmark history so calendar differences do not shorten the window
	benchmark, err := s.prices.LoadBenchmark(ctx, s.benchmarkSymbol, days+days/2)
	if err != nil {
		s.log.Warn().Err(err).Str("benchmark", s.benchmarkSymbol).Msg("Failed to load benchmark, using a zero curve")
		benchmark = nil
	}

	series, err := s.engine.Run(Input{
		Assets:     assets,
		SelectionA: req.SelectionA,
		SelectionB: req.SelectionB,
		Days:       days,
		Benchmark:  benchmark,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Strs("symbols", symbols).
		Int("days", len(series.Dates)).
		Float64("total_return_a", series.Summary["seriesA"].TotalReturn).
		Msg("Backtest complete")

	return series, nil
}
