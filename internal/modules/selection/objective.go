package selection

import (
	"math"
	"math/bits"

	"github.com/aristath/quanport/internal/domain"
	"github.com/aristath/quanport/internal/modules/statistics"
)

// Candidate is a scored inclusion pattern
type Candidate struct {
	Pattern        Pattern `json:"-"`
	Key            string  `json:"pattern"`
	Indices        []int   `json:"indices"`
	ExpectedReturn float64 `json:"expectedReturn"`
	Risk           float64 `json:"risk"` // equal-weight portfolio variance
	Volatility     float64 `json:"volatility"`
	Objective      float64 `json:"objectiveValue"`
}

// Encoder scores size-k inclusion patterns:
//
//	objective(S) = q·risk(S) − (1−q)·return(S)
//
// with return(S) the mean expected return over S and risk(S) = (1/k²)·Σ_{i,j∈S} cov[i][j].
// Lower is better. Both solvers score through the same Encoder.
type Encoder struct {
	stats *statistics.AssetStatistics
	k     int
	q     float64
}

// NewEncoder validates the budget and risk factor against stats
func NewEncoder(stats *statistics.AssetStatistics, k int, q float64) (*Encoder, error) {
	n := stats.Size()
	if n < 2 {
		return nil, domain.NewValidationError("symbols", "at least 2 symbols are required, got %d", n)
	}
	if n > MaxPatternAssets {
		return nil, domain.NewValidationError("symbols", "at most %d symbols are supported, got %d", MaxPatternAssets, n)
	}
	if k < 1 || k >= n {
		return nil, domain.NewValidationError("budget", "must be between 1 and %d, got %d", n-1, k)
	}
	if math.IsNaN(q) || q < 0 || q > 1 {
		return nil, domain.NewValidationError("riskFactor", "must be between 0 and 1, got %v", q)
	}
	return &Encoder{stats: stats, k: k, q: q}, nil
}

// Size returns the number of assets
func (e *Encoder) Size() int { return e.stats.Size() }

// Budget returns k
func (e *Encoder) Budget() int { return e.k }

// RiskFactor returns q
func (e *Encoder) RiskFactor() float64 { return e.q }

// Statistics returns the statistics being scored
func (e *Encoder) Statistics() *statistics.AssetStatistics { return e.stats }

// Objective returns the objective of p
func (e *Encoder) Objective(p Pattern) float64 {
	ret, risk := Metrics(e.stats, p)
	return e.q*risk - (1-e.q)*ret
}

// Evaluate returns the fully scored candidate for p
func (e *Encoder) Evaluate(p Pattern) Candidate {
	ret, risk := Metrics(e.stats, p)
	return Candidate{
		Pattern:        p,
		Key:            p.Key(e.stats.Size()),
		Indices:        p.Indices(),
		ExpectedReturn: ret,
		Risk:           risk,
		Volatility:     math.Sqrt(math.Max(risk, 0)),
		Objective:      e.q*risk - (1-e.q)*ret,
	}
}

// Metrics returns the equal-weight mean return and variance of the assets in p.
// Summation order is fixed by index, so equal patterns always score identically.
func Metrics(stats *statistics.AssetStatistics, p Pattern) (ret, risk float64) {
	k := p.Count()
	if k == 0 {
		return 0, 0
	}
	var sumRet, sumCov float64
	for vi := uint32(p); vi != 0; vi &= vi - 1 {
		i := bits.TrailingZeros32(vi)
		sumRet += stats.ExpectedReturns[i]
		row := stats.Covariance[i]
		for vj := uint32(p); vj != 0; vj &= vj - 1 {
			sumCov += row[bits.TrailingZeros32(vj)]
		}
	}
	kf := float64(k)
	return sumRet / kf, sumCov / (kf * kf)
}
