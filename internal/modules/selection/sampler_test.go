package selection

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumDistribution(dist map[string]float64) float64 {
	var sum float64
	for _, p := range dist {
		sum += p
	}
	return sum
}

func TestSampler_Scenario(t *testing.T) {
	enc, err := NewEncoder(scenarioStats(), 2, 0.5)
	require.NoError(t, err)

	result, err := NewSampler(DefaultSamplerConfig(), zerolog.Nop()).Solve(context.Background(), enc, nil)
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.Equal(t, "1010", result.Best.Key)
	assert.Equal(t, "1010", result.Selection.Key)
	assert.InDelta(t, -0.04375, result.History[len(result.History)-1], 1e-15)
	assert.InDelta(t, 1.0, sumDistribution(result.Distribution), 1e-6)
	assert.Greater(t, result.Distribution["1010"], 0.5)
}

func TestSampler_HistoryNonIncreasingAndDistributionNormalized(t *testing.T) {
	for _, tc := range []struct{ n, k int }{{6, 3}, {10, 4}, {12, 6}, {16, 5}} {
		enc, err := NewEncoder(randomStats(tc.n, uint64(tc.n*tc.k)), tc.k, 0.5)
		require.NoError(t, err)

		result, err := NewSampler(DefaultSamplerConfig(), zerolog.Nop()).Solve(context.Background(), enc, nil)
		require.NoError(t, err)

		require.NotEmpty(t, result.History)
		assert.Len(t, result.History, result.Iterations)
		for i := 1; i < len(result.History); i++ {
			assert.LessOrEqual(t, result.History[i], result.History[i-1], "n=%d k=%d iteration %d", tc.n, tc.k, i)
		}
		assert.InDelta(t, 1.0, sumDistribution(result.Distribution), 1e-6)

		// The reported selection is the most probable pattern
		for key, p := range result.Distribution {
			assert.LessOrEqual(t, p, result.Distribution[result.Selection.Key], key)
			pattern, err := ParsePattern(key)
			require.NoError(t, err)
			assert.Equal(t, tc.k, pattern.Count())
		}
	}
}

func TestSampler_NeverBeatsExact(t *testing.T) {
	exact := newTestExactSolver(2)
	sampler := NewSampler(DefaultSamplerConfig(), zerolog.Nop())

	for seed := uint64(1); seed <= 5; seed++ {
		enc, err := NewEncoder(randomStats(9, seed), 4, 0.5)
		require.NoError(t, err)

		e, err := exact.Solve(context.Background(), enc)
		require.NoError(t, err)
		s, err := sampler.Solve(context.Background(), enc, nil)
		require.NoError(t, err)

		gap, ok := ObjectiveGap(e.Best.Objective, s.Selection.Objective)
		require.True(t, ok)
		assert.GreaterOrEqual(t, gap, 0.0)
		assert.GreaterOrEqual(t, s.Best.Objective, e.Best.Objective)
	}
}

func TestSampler_Deterministic(t *testing.T) {
	enc, err := NewEncoder(randomStats(10, 42), 3, 0.7)
	require.NoError(t, err)

	a, err := NewSampler(DefaultSamplerConfig(), zerolog.Nop()).Solve(context.Background(), enc, nil)
	require.NoError(t, err)
	b, err := NewSampler(DefaultSamplerConfig(), zerolog.Nop()).Solve(context.Background(), enc, nil)
	require.NoError(t, err)

	assert.Equal(t, a.History, b.History)
	assert.Equal(t, a.Distribution, b.Distribution)
	assert.Equal(t, a.Selection, b.Selection)
}

func TestSampler_EarlyStopAndProgress(t *testing.T) {
	enc, err := NewEncoder(scenarioStats(), 2, 0.5)
	require.NoError(t, err)

	cfg := DefaultSamplerConfig()
	cfg.Patience = 5

	var updates []IterationUpdate
	result, err := NewSampler(cfg, zerolog.Nop()).Solve(context.Background(), enc, func(u IterationUpdate) {
		updates = append(updates, u)
	})
	require.NoError(t, err)

	assert.True(t, result.EarlyStopped)
	assert.Less(t, result.Iterations, cfg.Iterations)
	require.Len(t, updates, result.Iterations)
	for i, u := range updates {
		assert.Equal(t, i+1, u.Iteration)
		assert.Equal(t, result.History[i], u.BestObjective)
		assert.Len(t, u.Probabilities, 4)
		var sum float64
		for _, p := range u.Probabilities {
			assert.GreaterOrEqual(t, p, minProbability)
			assert.LessOrEqual(t, p, maxProbability)
			sum += p
		}
		// Inclusion probabilities track the budget
		assert.InDelta(t, 2.0, sum, 0.01)
	}
}

func TestSampler_FallbackOnDivergence(t *testing.T) {
	stats := scenarioStats()
	stats.ExpectedReturns[0] = math.NaN()

	enc, err := NewEncoder(stats, 2, 0.5)
	require.NoError(t, err)

	result, err := NewSampler(DefaultSamplerConfig(), zerolog.Nop()).Solve(context.Background(), enc, nil)
	require.NoError(t, err)

	assert.False(t, result.Converged)
	assert.NotEmpty(t, result.FallbackReason)
	assert.InDelta(t, 1.0, sumDistribution(result.Distribution), 1e-6)

	// Uniform over the distinct patterns
	var first float64
	for _, p := range result.Distribution {
		if first == 0 {
			first = p
		}
		assert.InDelta(t, first, p, 1e-12)
	}

	// Best finite pattern excludes the broken asset: BC beats CD and BD
	assert.False(t, result.Selection.Pattern.Has(0))
	assert.Equal(t, "0110", result.Selection.Key)
	for i := 1; i < len(result.History); i++ {
		assert.LessOrEqual(t, result.History[i], result.History[i-1])
	}
}

func TestSampler_Cancelled(t *testing.T) {
	enc, err := NewEncoder(scenarioStats(), 2, 0.5)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	partial, err := NewSampler(DefaultSamplerConfig(), zerolog.Nop()).Solve(ctx, enc, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, partial)
	assert.Empty(t, partial.History)
}

func TestSamplerConfig_Defaults(t *testing.T) {
	cfg := NewSampler(SamplerConfig{}, zerolog.Nop()).Config()
	assert.Equal(t, 100, cfg.Iterations)
	assert.Equal(t, 20, cfg.Patience)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, 1024, cfg.Shots)
	assert.Equal(t, 0.2, cfg.EliteFraction)
	assert.Equal(t, 0.7, cfg.Smoothing)
}
