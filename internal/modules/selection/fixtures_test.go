package selection

import (
	"fmt"
	"math/rand/v2"

	"github.com/aristath/quanport/internal/modules/statistics"
)

// scenarioStats is the four-asset example with a diagonal covariance:
// {A,C} minimizes the objective at q = 0.5.
func scenarioStats() *statistics.AssetStatistics {
	return &statistics.AssetStatistics{
		Symbols:         []string{"A", "B", "C", "D"},
		Names:           []string{"Alpha", "Beta", "Gamma", "Delta"},
		ExpectedReturns: []float64{0.10, 0.08, 0.12, 0.05},
		Covariance: [][]float64{
			{0.04, 0, 0, 0},
			{0, 0.02, 0, 0},
			{0, 0, 0.05, 0},
			{0, 0, 0, 0.01},
		},
	}
}

// randomStats builds n assets with random returns and a random PSD covariance (G·Gᵀ/n)
func randomStats(n int, seed uint64) *statistics.AssetStatistics {
	rng := rand.New(rand.NewPCG(seed, seed+1))

	g := make([][]float64, n)
	for i := range g {
		g[i] = make([]float64, n)
		for j := range g[i] {
			g[i][j] = rng.NormFloat64() * 0.2
		}
	}

	stats := &statistics.AssetStatistics{
		Symbols:         make([]string, n),
		Names:           make([]string, n),
		ExpectedReturns: make([]float64, n),
		Covariance:      make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		stats.Symbols[i] = fmt.Sprintf("S%02d", i)
		stats.Names[i] = fmt.Sprintf("Asset %d", i)
		stats.ExpectedReturns[i] = rng.NormFloat64()*0.1 + 0.05
		stats.Covariance[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for l := 0; l < n; l++ {
				sum += g[i][l] * g[j][l]
			}
			stats.Covariance[i][j] = sum / float64(n)
		}
	}
	return stats
}

// bruteForceObjective evaluates the objective straight from the definition
func bruteForceObjective(stats *statistics.AssetStatistics, indices []int, q float64) float64 {
	k := float64(len(indices))
	var ret, risk float64
	for _, i := range indices {
		ret += stats.ExpectedReturns[i]
		for _, j := range indices {
			risk += stats.Covariance[i][j]
		}
	}
	return q*risk/(k*k) - (1-q)*ret/k
}
