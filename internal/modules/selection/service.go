package selection

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/quanport/internal/domain"
	"github.com/aristath/quanport/internal/modules/statistics"
	"github.com/aristath/quanport/internal/utils"
)

// DefaultMaxAssets bounds the symbol count of a single request
const DefaultMaxAssets = 20

// OptimizeRequest is the input of Optimize
type OptimizeRequest struct {
	Symbols        []string `json:"symbols"`
	Budget         int      `json:"budget"`
	RiskFactor     float64  `json:"riskFactor"`
	UseApproximate bool     `json:"useApproximate"`
}

// StatisticsProvider returns statistics for symbols in the requested order.
// Implemented by statistics.Cache.
type StatisticsProvider interface {
	Get(ctx context.Context, symbols []string) (*statistics.AssetStatistics, error)
}

// ServiceConfig configures the selection service
type ServiceConfig struct {
	MaxAssets       int
	MaxCombinations int64
	RunnersUp       int
	Workers         int
	RequestTimeout  time.Duration
	Sampler         SamplerConfig
}

// Service validates requests, fetches statistics through the cache and runs the solvers
type Service struct {
	stats          StatisticsProvider
	exact          *ExactSolver
	sampler        *Sampler
	maxAssets      int
	requestTimeout time.Duration
	log            zerolog.Logger
}

// NewService creates a selection service
func NewService(stats StatisticsProvider, cfg ServiceConfig, log zerolog.Logger) *Service {
	if cfg.MaxAssets <= 0 || cfg.MaxAssets > MaxPatternAssets {
		cfg.MaxAssets = DefaultMaxAssets
	}
	return &Service{
		stats:          stats,
		exact:          NewExactSolver(cfg.MaxCombinations, cfg.RunnersUp, cfg.Workers, log),
		sampler:        NewSampler(cfg.Sampler, log),
		maxAssets:      cfg.MaxAssets,
		requestTimeout: cfg.RequestTimeout,
		log:            log.With().Str("service", "selection").Logger(),
	}
}

// ValidateSymbols normalizes symbols and checks count and uniqueness
func (s *Service) ValidateSymbols(symbols []string) ([]string, error) {
	normalized := utils.NormalizeSymbols(symbols)
	if len(normalized) != len(symbols) {
		return nil, domain.NewValidationError("symbols", "symbols must be non-empty strings")
	}
	if len(normalized) < 2 {
		return nil, domain.NewValidationError("symbols", "at least 2 symbols are required, got %d", len(normalized))
	}
	if len(normalized) > s.maxAssets {
		return nil, domain.NewValidationError("symbols", "at most %d symbols are allowed, got %d", s.maxAssets, len(normalized))
	}
	seen := make(map[string]struct{}, len(normalized))
	for _, sym := range normalized {
		if _, dup := seen[sym]; dup {
			return nil, domain.NewValidationError("symbols", "duplicate symbol %s", sym)
		}
		seen[sym] = struct{}{}
	}
	return normalized, nil
}

// Validate checks an optimize request before any work starts
func (s *Service) Validate(req OptimizeRequest) ([]string, error) {
	symbols, err := s.ValidateSymbols(req.Symbols)
	if err != nil {
		return nil, err
	}
	n := len(symbols)
	if req.Budget < 1 || req.Budget >= n {
		return nil, domain.NewValidationError("budget", "must be between 1 and %d, got %d", n-1, req.Budget)
	}
	if math.IsNaN(req.RiskFactor) || req.RiskFactor < 0 || req.RiskFactor > 1 {
		return nil, domain.NewValidationError("riskFactor", "must be between 0 and 1, got %v", req.RiskFactor)
	}
	if err := CheckCombinations(n, req.Budget, s.exact.MaxCombinations()); err != nil {
		return nil, err
	}
	return symbols, nil
}

func (s *Service) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout > 0 {
		return context.WithTimeout(ctx, s.requestTimeout)
	}
	return context.WithCancel(ctx)
}

// Optimize runs the exact solver and, when requested, the sampler, then assembles
// the comparison. progress receives sampler iterations and may be nil.
func (s *Service) Optimize(ctx context.Context, req OptimizeRequest, progress func(IterationUpdate)) (*OptimizeResponse, error) {
	symbols, err := s.Validate(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withBudget(ctx)
	defer cancel()

	runID := uuid.New().String()
	log := s.log.With().Str("run_id", runID).Logger()

	stats, err := s.stats.Get(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}

	enc, err := NewEncoder(stats, req.Budget, req.RiskFactor)
	if err != nil {
		return nil, err
	}

	exactTimer := utils.NewTimer("exact_solve", log)
	exact, err := s.exact.Solve(ctx, enc)
	if err != nil {
		return nil, err
	}
	exactTime := exactTimer.Stop()

	in := AssembleInput{
		RunID:      runID,
		Stats:      stats,
		Budget:     req.Budget,
		RiskFactor: req.RiskFactor,
		Exact:      exact,
		ExactTime:  exactTime,
	}

	if req.UseApproximate {
		samplerTimer := utils.NewTimer("sampler_solve", log)
		approx, err := s.sampler.Solve(ctx, enc, progress)
		if err != nil {
			// The classical result stands; report the sampler as not converged
			log.Warn().Err(err).Msg("Sampler interrupted, falling back to uniform distribution")
			partial := approx
			approx = s.sampler.Fallback(enc, "cancelled: "+err.Error())
			if partial != nil {
				approx.History = partial.History
				approx.Iterations = partial.Iterations
			}
		}
		in.Approximate = approx
		in.ApproximateTime = samplerTimer.Stop()
	}

	resp := Assemble(in)

	event := log.Info().
		Strs("symbols", symbols).
		Int("budget", req.Budget).
		Float64("risk_factor", req.RiskFactor).
		Str("classical", resp.Classical.Pattern).
		Float64("classical_objective", resp.Classical.ObjectiveValue)
	if resp.Approximate != nil {
		event = event.Str("approximate", resp.Approximate.Pattern).Bool("converged", resp.Approximate.Converged)
	}
	if resp.ObjectiveGap != nil {
		event = event.Float64("objective_gap", *resp.ObjectiveGap)
	}
	event.Msg("Optimization complete")

	return resp, nil
}

// RiskReturn reports each asset's return and volatility plus the efficient frontier
// of equal-weight subsets, bounded by the enumeration ceiling.
func (s *Service) RiskReturn(ctx context.Context, symbols []string) (*RiskReturnResponse, error) {
	symbols, err := s.ValidateSymbols(symbols)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withBudget(ctx)
	defer cancel()

	stats, err := s.stats.Get(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}

	frontier, truncated, err := EfficientFrontier(ctx, stats, s.exact.MaxCombinations())
	if err != nil {
		return nil, err
	}
	if truncated {
		s.log.Warn().Strs("symbols", symbols).Msg("Efficient frontier truncated at the enumeration ceiling")
	}

	return &RiskReturnResponse{
		Assets:            AssetPoints(stats),
		EfficientFrontier: frontier,
		Truncated:         truncated,
	}, nil
}
