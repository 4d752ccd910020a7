// Package backtest replays historical prices for selected subsets of a universe.
package backtest

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/aristath/quanport/internal/domain"
)

const (
	// DefaultMinTradingDays is the shortest window a backtest will run on
	DefaultMinTradingDays = 10
	// TradingDaysPerYear annualizes daily volatility
	TradingDaysPerYear = 252

	dateLayout = "2006-01-02"
)

// Input is one backtest request over an aligned universe.
// Every asset in Assets must share the same date axis.
type Input struct {
	Assets     []domain.Asset
	SelectionA []int
	SelectionB []int // optional
	Days       int
	Benchmark  *domain.Asset // optional
}

// Summary describes one cumulative-return curve
type Summary struct {
	TotalReturn float64 `json:"totalReturn"`
	Volatility  float64 `json:"volatility"` // annualized
	MaxDrawdown float64 `json:"maxDrawdown"`
}

// Series holds cumulative-return curves aligned by index to Dates. Every curve starts at 0.
type Series struct {
	Dates           []string           `json:"dates"`
	SeriesA         []float64          `json:"seriesA"`
	SeriesB         []float64          `json:"seriesB,omitempty"`
	EqualWeight     []float64          `json:"equalWeight"`
	Benchmark       []float64          `json:"benchmark"`
	BenchmarkSymbol string             `json:"benchmarkSymbol,omitempty"`
	Summary         map[string]Summary `json:"summary"`
}

// Engine computes backtest curves
type Engine struct {
	minDays int
	log     zerolog.Logger
}

// NewEngine creates a backtest engine
func NewEngine(minTradingDays int, log zerolog.Logger) *Engine {
	if minTradingDays < 2 {
		minTradingDays = DefaultMinTradingDays
	}
	return &Engine{
		minDays: minTradingDays,
		log:     log.With().Str("component", "backtest_engine").Logger(),
	}
}

// MinTradingDays returns the shortest window the engine accepts
func (e *Engine) MinTradingDays() int {
	return e.minDays
}

// Run computes equal-weight curves for selection A, the optional selection B,
// the whole universe and the benchmark over the last min(Days, available) rows.
func (e *Engine) Run(in Input) (*Series, error) {
	if err := e.validate(in); err != nil {
		return nil, err
	}

	symbols := make([]string, len(in.Assets))
	for i, a := range in.Assets {
		symbols[i] = a.Symbol
	}

	rows, bench := e.commonRows(in)
	if len(rows) > in.Days {
		rows = rows[len(rows)-in.Days:]
		if bench != nil {
			bench = bench[len(bench)-in.Days:]
		}
	}
	if len(rows) < e.minDays {
		err := &domain.InsufficientHistoryError{Symbols: symbols, Available: len(rows), Required: e.minDays}
		if len(rows) > 0 {
			first := in.Assets[0].Prices
			err.From = first[rows[0]].Date.Format(dateLayout)
			err.To = first[rows[len(rows)-1]].Date.Format(dateLayout)
		}
		return nil, err
	}

	series := &Series{
		Dates:   make([]string, len(rows)),
		Summary: make(map[string]Summary, 4),
	}
	for t, row := range rows {
		series.Dates[t] = in.Assets[0].Prices[row].Date.Format(dateLayout)
	}

	all := make([]int, len(in.Assets))
	for i := range all {
		all[i] = i
	}

	var returns []float64
	series.SeriesA, returns = cumulative(portfolioReturns(in.Assets, in.SelectionA, rows))
	series.Summary["seriesA"] = summarize(series.SeriesA, returns)

	if len(in.SelectionB) > 0 {
		series.SeriesB, returns = cumulative(portfolioReturns(in.Assets, in.SelectionB, rows))
		series.Summary["seriesB"] = summarize(series.SeriesB, returns)
	}

	series.EqualWeight, returns = cumulative(portfolioReturns(in.Assets, all, rows))
	series.Summary["equalWeight"] = summarize(series.EqualWeight, returns)

	if bench != nil {
		series.BenchmarkSymbol = in.Benchmark.Symbol
		series.Benchmark, returns = cumulative(simpleReturns(bench))
		series.Summary["benchmark"] = summarize(series.Benchmark, returns)
	} else {
		series.Benchmark = make([]float64, len(rows))
		series.Summary["benchmark"] = Summary{}
	}

	e.log.Debug().
		Strs("symbols", symbols).
		Int("days", len(rows)).
		Bool("benchmark", bench != nil).
		Msg("Backtest computed")

	return series, nil
}

func (e *Engine) validate(in Input) error {
	if len(in.Assets) == 0 {
		return domain.NewValidationError("symbols", "at least one symbol is required")
	}
	if in.Days < 1 {
		return domain.NewValidationError("days", "must be positive, got %d", in.Days)
	}
	n := len(in.Assets[0].Prices)
	for _, a := range in.Assets[1:] {
		if len(a.Prices) != n {
			return fmt.Errorf("assets are not aligned: %s has %d prices, %s has %d",
				in.Assets[0].Symbol, n, a.Symbol, len(a.Prices))
		}
	}
	if len(in.SelectionA) == 0 {
		return domain.NewValidationError("selectionA", "must select at least one asset")
	}
	if err := validateSelection("selectionA", in.SelectionA, len(in.Assets)); err != nil {
		return err
	}
	return validateSelection("selectionB", in.SelectionB, len(in.Assets))
}

func validateSelection(field string, selection []int, n int) error {
	seen := make(map[int]struct{}, len(selection))
	for _, idx := range selection {
		if idx < 0 || idx >= n {
			return domain.NewValidationError(field, "index %d out of range [0, %d)", idx, n)
		}
		if _, dup := seen[idx]; dup {
			return domain.NewValidationError(field, "duplicate index %d", idx)
		}
		seen[idx] = struct{}{}
	}
	return nil
}

// commonRows returns the universe rows that also have a benchmark close, and
// those closes. Without a usable benchmark every row is kept and bench is nil.
func (e *Engine) commonRows(in Input) ([]int, []float64) {
	prices := in.Assets[0].Prices
	all := make([]int, len(prices))
	for i := range all {
		all[i] = i
	}
	if in.Benchmark == nil || len(in.Benchmark.Prices) == 0 {
		return all, nil
	}

	byDay := make(map[string]float64, len(in.Benchmark.Prices))
	for _, p := range in.Benchmark.Prices {
		byDay[p.Date.UTC().Format(dateLayout)] = p.Close
	}

	rows := make([]int, 0, len(prices))
	bench := make([]float64, 0, len(prices))
	for i, p := range prices {
		if c, ok := byDay[p.Date.UTC().Format(dateLayout)]; ok {
			rows = append(rows, i)
			bench = append(bench, c)
		}
	}

	// A benchmark sharing too few dates with the universe is dropped instead
	// of shrinking the window below the minimum
	if len(rows) < e.minDays && len(all) >= e.minDays {
		e.log.Warn().
			Str("benchmark", in.Benchmark.Symbol).
			Int("common_days", len(rows)).
			Msg("Benchmark shares too few dates with the universe, ignoring it")
		return all, nil
	}
	return rows, bench
}

// portfolioReturns returns the equal-weight mean of the selected assets' simple
// returns between consecutive rows.
func portfolioReturns(assets []domain.Asset, selection []int, rows []int) []float64 {
	out := make([]float64, len(rows)-1)
	w := 1 / float64(len(selection))
	for t := 1; t < len(rows); t++ {
		var sum float64
		for _, idx := range selection {
			prev := assets[idx].Prices[rows[t-1]].Close
			cur := assets[idx].Prices[rows[t]].Close
			sum += ratioReturn(prev, cur)
		}
		out[t-1] = sum * w
	}
	return out
}

func simpleReturns(closes []float64) []float64 {
	out := make([]float64, len(closes)-1)
	for t := 1; t < len(closes); t++ {
		out[t-1] = ratioReturn(closes[t-1], closes[t])
	}
	return out
}

func ratioReturn(prev, cur float64) float64 {
	if prev <= 0 {
		return 0
	}
	return cur/prev - 1
}

// cumulative compounds daily returns into a curve starting at 0
func cumulative(returns []float64) ([]float64, []float64) {
	curve := make([]float64, len(returns)+1)
	wealth := 1.0
	for t, r := range returns {
		wealth *= 1 + r
		curve[t+1] = wealth - 1
	}
	return curve, returns
}

func summarize(curve, returns []float64) Summary {
	return Summary{
		TotalReturn: curve[len(curve)-1],
		Volatility:  AnnualizedVolatility(returns),
		MaxDrawdown: MaxDrawdown(curve),
	}
}

// AnnualizedVolatility is the population standard deviation of daily returns
// scaled by the square root of the trading year.
func AnnualizedVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	std := talib.StdDev(returns, len(returns), 1.0)
	return std[len(std)-1] * math.Sqrt(TradingDaysPerYear)
}

// MaxDrawdown returns the largest peak-to-trough loss of a cumulative-return curve,
// as a positive fraction of the peak wealth.
func MaxDrawdown(curve []float64) float64 {
	if len(curve) < 2 {
		return 0
	}

	maxDrawdown := 0.0
	peak := 1 + curve[0]
	for _, c := range curve {
		wealth := 1 + c
		if wealth > peak {
			peak = wealth
		}
		if peak > 0 {
			if dd := (peak - wealth) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	return maxDrawdown
}
