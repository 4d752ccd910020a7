// Package statistics turns aligned price histories into the expected-return vector
// and covariance matrix used by the selection solvers, and caches the result per
// symbol set.
package statistics

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/quanport/internal/domain"
)

const (
	// DefaultAnnualizationFactor scales daily statistics to yearly ones (trading days per year)
	DefaultAnnualizationFactor = 252.0

	// MinPricePoints is the shortest series that yields at least one period return
	MinPricePoints = 2

	// psdFloor is the smallest eigenvalue tolerated before the covariance is shifted
	psdFloor = 1e-8
)

// AssetStatistics holds per-asset expected returns and the pairwise covariance
// matrix for a fixed, ordered list of symbols.
type AssetStatistics struct {
	Symbols         []string    `json:"symbols"`
	Names           []string    `json:"names"`
	ExpectedReturns []float64   `json:"expected_returns"`
	Covariance      [][]float64 `json:"covariance"`
	Observations    int         `json:"observations"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Size returns the number of assets
func (s *AssetStatistics) Size() int {
	return len(s.Symbols)
}

// Volatility returns the standard deviation of asset i
func (s *AssetStatistics) Volatility(i int) float64 {
	return math.Sqrt(math.Max(s.Covariance[i][i], 0))
}

// Subset returns the statistics re-ordered to match symbols.
// Every symbol must be present in s.
func (s *AssetStatistics) Subset(symbols []string) (*AssetStatistics, error) {
	index := make(map[string]int, len(s.Symbols))
	for i, sym := range s.Symbols {
		index[sym] = i
	}

	positions := make([]int, len(symbols))
	for i, sym := range symbols {
		pos, ok := index[sym]
		if !ok {
			return nil, fmt.Errorf("symbol %s not present in statistics", sym)
		}
		positions[i] = pos
	}

	out := &AssetStatistics{
		Symbols:         make([]string, len(symbols)),
		Names:           make([]string, len(symbols)),
		ExpectedReturns: make([]float64, len(symbols)),
		Covariance:      make([][]float64, len(symbols)),
		Observations:    s.Observations,
		CreatedAt:       s.CreatedAt,
	}
	for i, pi := range positions {
		out.Symbols[i] = s.Symbols[pi]
		if pi < len(s.Names) {
			out.Names[i] = s.Names[pi]
		}
		out.ExpectedReturns[i] = s.ExpectedReturns[pi]
		out.Covariance[i] = make([]float64, len(symbols))
		for j, pj := range positions {
			out.Covariance[i][j] = s.Covariance[pi][pj]
		}
	}
	return out, nil
}

// Builder computes AssetStatistics from price histories
type Builder struct {
	annualization float64
	log           zerolog.Logger
}

// NewBuilder creates a statistics builder.
// annualization scales mean and covariance; pass 1 for raw per-period statistics.
func NewBuilder(annualization float64, log zerolog.Logger) *Builder {
	if annualization <= 0 {
		annualization = DefaultAnnualizationFactor
	}
	return &Builder{
		annualization: annualization,
		log:           log.With().Str("component", "statistics_builder").Logger(),
	}
}

// Build computes simple period returns for every asset, then the per-asset mean
// return and the sample covariance matrix across the set.
//
// All series must have the same length (aligned by date) and at least two prices.
func (b *Builder) Build(assets []domain.Asset) (*AssetStatistics, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("no assets provided")
	}

	length := len(assets[0].Prices)
	for _, a := range assets {
		if len(a.Prices) < MinPricePoints {
			return nil, &domain.InsufficientDataError{Symbol: a.Symbol, Points: len(a.Prices), Required: MinPricePoints}
		}
		if len(a.Prices) != length {
			return nil, &domain.InsufficientDataError{
				Symbol: a.Symbol,
				Points: len(a.Prices),
				Reason: fmt.Sprintf("series has %d points but %s has %d after alignment", len(a.Prices), assets[0].Symbol, length),
			}
		}
	}

	n := len(assets)
	periods := length - 1

	// Observations in rows, assets in columns
	returns := mat.NewDense(periods, n, nil)
	for j, a := range assets {
		for t := 1; t < length; t++ {
			prev := a.Prices[t-1].Close
			if prev == 0 || math.IsNaN(prev) || math.IsInf(prev, 0) {
				return nil, &domain.InsufficientDataError{
					Symbol: a.Symbol,
					Points: length,
					Reason: fmt.Sprintf("invalid price %v on %s", prev, a.Prices[t-1].Date.Format("2006-01-02")),
				}
			}
			returns.Set(t-1, j, a.Prices[t].Close/prev-1)
		}
	}

	mu := make([]float64, n)
	col := make([]float64, periods)
	for j := 0; j < n; j++ {
		mat.Col(col, j, returns)
		mu[j] = stat.Mean(col, nil) * b.annualization
	}

	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}
	// A single return has no sample variance; leave the matrix at zero
	if periods > 1 {
		var sym mat.SymDense
		stat.CovarianceMatrix(&sym, returns, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				cov[i][j] = sym.At(i, j) * b.annualization
			}
		}
	}

	shift := ensurePositiveSemiDefinite(cov)
	if shift > 0 {
		b.log.Debug().Float64("shift", shift).Int("assets", n).Msg("Shifted covariance diagonal to restore positive semi-definiteness")
	}

	symbols := make([]string, n)
	names := make([]string, n)
	for i, a := range assets {
		symbols[i] = a.Symbol
		names[i] = a.DisplayName()
	}

	return &AssetStatistics{
		Symbols:         symbols,
		Names:           names,
		ExpectedReturns: mu,
		Covariance:      cov,
		Observations:    periods,
	}, nil
}

// ensurePositiveSemiDefinite symmetrizes cov in place and, if its smallest eigenvalue
// is below psdFloor, adds (psdFloor - λmin) to the diagonal. Returns the shift applied.
func ensurePositiveSemiDefinite(cov [][]float64) float64 {
	n := len(cov)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (cov[i][j] + cov[j][i]) / 2
			cov[i][j], cov[j][i] = v, v
			sym.SetSym(i, j, v)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		return 0
	}
	values := eig.Values(nil)
	minEig := math.Inf(1)
	for _, v := range values {
		minEig = math.Min(minEig, v)
	}
	if minEig >= psdFloor {
		return 0
	}

	shift := psdFloor - minEig
	for i := 0; i < n; i++ {
		cov[i][i] += shift
	}
	return shift
}
