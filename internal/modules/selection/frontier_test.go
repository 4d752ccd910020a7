package selection

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEfficientFrontier_Scenario(t *testing.T) {
	frontier, truncated, err := EfficientFrontier(context.Background(), scenarioStats(), DefaultMaxCombinations)
	require.NoError(t, err)
	assert.False(t, truncated)
	require.NotEmpty(t, frontier)

	// Diversified B+D beats D alone on risk; C alone has the highest return
	keys := make([]string, len(frontier))
	for i, pt := range frontier {
		keys[i] = pt.Pattern
	}
	assert.Equal(t, []string{"0101", "1101", "0111", "1011", "1110", "1010", "0010"}, keys)
	assert.Equal(t, []string{"B", "D"}, frontier[0].Symbols)
	assert.InDelta(t, math.Sqrt(0.0075), frontier[0].Risk, 1e-12)
	last := frontier[len(frontier)-1]
	assert.Equal(t, []string{"C"}, last.Symbols)
	assert.InDelta(t, 0.12, last.Return, 1e-12)

	for i := 1; i < len(frontier); i++ {
		assert.Greater(t, frontier[i].Risk, frontier[i-1].Risk-1e-15)
		assert.Greater(t, frontier[i].Return, frontier[i-1].Return)
	}
}

func TestEfficientFrontier_IsParetoSet(t *testing.T) {
	stats := randomStats(7, 21)
	frontier, _, err := EfficientFrontier(context.Background(), stats, DefaultMaxCombinations)
	require.NoError(t, err)

	// No subset has both lower risk and higher return than a frontier point
	for _, pt := range frontier {
		for k := 1; k < 7; k++ {
			for _, p := range Combinations(7, k) {
				ret, variance := Metrics(stats, p)
				vol := math.Sqrt(variance)
				dominates := vol < pt.Risk-1e-12 && ret > pt.Return+1e-12
				assert.False(t, dominates, "%s dominates %s", p.Key(7), pt.Pattern)
			}
		}
	}
}

func TestEfficientFrontier_Truncated(t *testing.T) {
	// C(6,1)=6, C(6,5)=6, C(6,2)=15, C(6,4)=15, C(6,3)=20
	frontier, truncated, err := EfficientFrontier(context.Background(), randomStats(6, 2), 30)
	require.NoError(t, err)
	assert.True(t, truncated)
	for _, pt := range frontier {
		assert.Contains(t, []int{1, 2, 5}, pt.Budget)
	}
}

func TestAssetPoints(t *testing.T) {
	points := AssetPoints(scenarioStats())
	require.Len(t, points, 4)
	assert.Equal(t, "A", points[0].Symbol)
	assert.Equal(t, "Alpha", points[0].Name)
	assert.InDelta(t, 0.10, points[0].Return, 1e-15)
	assert.InDelta(t, 0.2, points[0].Risk, 1e-12)
}
