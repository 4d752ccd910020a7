package selection

import (
	"context"
	"math"
	"sort"

	"github.com/aristath/quanport/internal/modules/statistics"
)

// AssetPoint is a single asset on the risk/return plane
type AssetPoint struct {
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
	Return float64 `json:"return"`
	Risk   float64 `json:"risk"` // volatility
}

// FrontierPoint is a non-dominated equal-weight subset
type FrontierPoint struct {
	Return  float64  `json:"return"`
	Risk    float64  `json:"risk"` // volatility
	Budget  int      `json:"budget"`
	Pattern string   `json:"pattern"`
	Symbols []string `json:"symbols"`
}

// RiskReturnResponse is the payload of the risk/return query
type RiskReturnResponse struct {
	Assets            []AssetPoint    `json:"assets"`
	EfficientFrontier []FrontierPoint `json:"efficientFrontier"`
	Truncated         bool            `json:"truncated,omitempty"`
}

// AssetPoints returns each asset's expected return and volatility
func AssetPoints(stats *statistics.AssetStatistics) []AssetPoint {
	points := make([]AssetPoint, stats.Size())
	for i, sym := range stats.Symbols {
		points[i] = AssetPoint{
			Symbol: sym,
			Name:   stats.Names[i],
			Return: stats.ExpectedReturns[i],
			Risk:   stats.Volatility(i),
		}
	}
	return points
}

// EfficientFrontier returns the Pareto set of equal-weight subsets of every
// size 1..n−1, sorted by risk. Budgets are processed smallest subset count first
// and skipped once the running total would pass limit; truncated reports a skip.
func EfficientFrontier(ctx context.Context, stats *statistics.AssetStatistics, limit int64) ([]FrontierPoint, bool, error) {
	n := stats.Size()

	type budget struct {
		k     int
		count int64
	}
	budgets := make([]budget, 0, n)
	for k := 1; k < n; k++ {
		count, ok := Binomial(n, k)
		if !ok {
			count = math.MaxInt64
		}
		budgets = append(budgets, budget{k: k, count: count})
	}
	sort.SliceStable(budgets, func(a, b int) bool { return budgets[a].count < budgets[b].count })

	type point struct {
		pattern  Pattern
		ret, vol float64
	}
	var (
		points    []point
		total     int64
		truncated bool
	)
	for _, b := range budgets {
		if b.count > limit-total {
			truncated = true
			continue
		}
		total += b.count
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		for _, p := range Combinations(n, b.k) {
			ret, variance := Metrics(stats, p)
			points = append(points, point{pattern: p, ret: ret, vol: math.Sqrt(math.Max(variance, 0))})
		}
	}

	// Lowest risk first; at equal risk the higher return dominates
	sort.SliceStable(points, func(a, b int) bool {
		if points[a].vol != points[b].vol {
			return points[a].vol < points[b].vol
		}
		return points[a].ret > points[b].ret
	})

	frontier := make([]FrontierPoint, 0)
	bestReturn := math.Inf(-1)
	for _, pt := range points {
		if pt.ret <= bestReturn {
			continue
		}
		bestReturn = pt.ret

		indices := pt.pattern.Indices()
		symbols := make([]string, len(indices))
		for j, i := range indices {
			symbols[j] = stats.Symbols[i]
		}
		frontier = append(frontier, FrontierPoint{
			Return:  pt.ret,
			Risk:    pt.vol,
			Budget:  len(indices),
			Pattern: pt.pattern.Key(n),
			Symbols: symbols,
		})
	}
	return frontier, truncated, nil
}
