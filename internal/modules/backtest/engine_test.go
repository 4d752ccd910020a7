package backtest

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quanport/internal/domain"
	testhelpers "github.com/aristath/quanport/internal/testing"
)

func threeAssetUniverse() []domain.Asset {
	return []domain.Asset{
		testhelpers.NewAsset("A", "Alpha", 100, 110, 99),
		testhelpers.NewAsset("B", "Beta", 50, 50, 55),
		testhelpers.NewAsset("C", "Gamma", 10, 20, 10),
	}
}

func TestRun_HandComputedCurves(t *testing.T) {
	engine := NewEngine(3, zerolog.Nop())

	series, err := engine.Run(Input{
		Assets:     threeAssetUniverse(),
		SelectionA: []int{0, 1},
		SelectionB: []int{2},
		Days:       90,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04"}, series.Dates)
	assert.InDeltaSlice(t, []float64{0, 0.05, 0.05}, series.SeriesA, 1e-12)
	assert.InDeltaSlice(t, []float64{0, 1, 0}, series.SeriesB, 1e-12)
	assert.InDeltaSlice(t, []float64{0, 1.1 / 3, 10.25/9 - 1}, series.EqualWeight, 1e-12)
	assert.Equal(t, []float64{0, 0, 0}, series.Benchmark)
	assert.Empty(t, series.BenchmarkSymbol)

	assert.InDelta(t, 0.5, series.Summary["seriesB"].MaxDrawdown, 1e-12)
	assert.InDelta(t, 0.05, series.Summary["seriesA"].TotalReturn, 1e-12)
	assert.Equal(t, Summary{}, series.Summary["benchmark"])
}

func TestRun_CurvesStartAtZeroWithEqualLength(t *testing.T) {
	assets := testhelpers.RandomWalkUniverse([]string{"AAA", "BBB", "CCC", "DDD", "EEE"}, 120, 3)
	bench := testhelpers.RandomWalkAsset("^GSPC", 120, 0.0003, 0.01, 99)
	engine := NewEngine(DefaultMinTradingDays, zerolog.Nop())

	series, err := engine.Run(Input{
		Assets:     assets,
		SelectionA: []int{0, 2},
		SelectionB: []int{1, 3, 4},
		Days:       30,
		Benchmark:  &bench,
	})
	require.NoError(t, err)

	require.Len(t, series.Dates, 30)
	for name, curve := range map[string][]float64{
		"seriesA":     series.SeriesA,
		"seriesB":     series.SeriesB,
		"equalWeight": series.EqualWeight,
		"benchmark":   series.Benchmark,
	} {
		assert.Len(t, curve, 30, name)
		assert.Equal(t, 0.0, curve[0], name)
		assert.Contains(t, series.Summary, name)
	}
	assert.Equal(t, "^GSPC", series.BenchmarkSymbol)

	// Window is the most recent rows
	assert.Equal(t, assets[0].Prices[119].Date.Format("2006-01-02"), series.Dates[29])
	single, err := engine.Run(Input{Assets: assets, SelectionA: []int{0}, Days: 30})
	require.NoError(t, err)
	assert.InDelta(t, assets[0].Prices[119].Close/assets[0].Prices[90].Close-1, single.SeriesA[29], 1e-9)
}

func TestRun_IntersectsBenchmarkDates(t *testing.T) {
	assets := testhelpers.RandomWalkUniverse([]string{"AAA", "BBB"}, 12, 1)
	full := testhelpers.RandomWalkAsset("^GSPC", 12, 0, 0.01, 2)
	missing := full.Prices[5].Date.Format("2006-01-02")
	bench := domain.Asset{Symbol: "^GSPC"}
	for i, p := range full.Prices {
		if i != 5 {
			bench.Prices = append(bench.Prices, p)
		}
	}

	series, err := NewEngine(10, zerolog.Nop()).Run(Input{
		Assets:     assets,
		SelectionA: []int{0},
		Days:       90,
		Benchmark:  &bench,
	})
	require.NoError(t, err)

	assert.Len(t, series.Dates, 11)
	assert.NotContains(t, series.Dates, missing)
	assert.InDelta(t, full.Prices[11].Close/full.Prices[0].Close-1, series.Benchmark[10], 1e-12)
}

func TestRun_DropsBenchmarkWithTooFewCommonDates(t *testing.T) {
	assets := testhelpers.RandomWalkUniverse([]string{"AAA", "BBB"}, 20, 1)
	bench := testhelpers.NewAsset("^GSPC", "S&P 500", 100, 101, 102)

	series, err := NewEngine(10, zerolog.Nop()).Run(Input{
		Assets:     assets,
		SelectionA: []int{1},
		Days:       90,
		Benchmark:  &bench,
	})
	require.NoError(t, err)

	assert.Len(t, series.Dates, 20)
	assert.Equal(t, make([]float64, 20), series.Benchmark)
	assert.Empty(t, series.BenchmarkSymbol)
}

func TestRun_InsufficientHistory(t *testing.T) {
	assets := testhelpers.RandomWalkUniverse([]string{"AAA", "BBB"}, 5, 1)

	_, err := NewEngine(10, zerolog.Nop()).Run(Input{Assets: assets, SelectionA: []int{0}, Days: 90})

	var historyErr *domain.InsufficientHistoryError
	require.True(t, errors.As(err, &historyErr))
	assert.Equal(t, 5, historyErr.Available)
	assert.Equal(t, 10, historyErr.Required)
	assert.Equal(t, []string{"AAA", "BBB"}, historyErr.Symbols)
	assert.Equal(t, "2024-01-02", historyErr.From)
	assert.Equal(t, "2024-01-06", historyErr.To)
}

func TestRun_ValidationErrors(t *testing.T) {
	assets := threeAssetUniverse()

	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"no assets", Input{SelectionA: []int{0}, Days: 10}, "symbols"},
		{"zero days", Input{Assets: assets, SelectionA: []int{0}}, "days"},
		{"empty selection A", Input{Assets: assets, Days: 10}, "selectionA"},
		{"selection A out of range", Input{Assets: assets, SelectionA: []int{3}, Days: 10}, "selectionA"},
		{"selection A duplicate", Input{Assets: assets, SelectionA: []int{1, 1}, Days: 10}, "selectionA"},
		{"selection B negative", Input{Assets: assets, SelectionA: []int{0}, SelectionB: []int{-1}, Days: 10}, "selectionB"},
	}

	engine := NewEngine(2, zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Run(tt.in)
			var validationErr *domain.ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestRun_MisalignedAssets(t *testing.T) {
	assets := []domain.Asset{
		testhelpers.NewAsset("A", "", 1, 2, 3),
		testhelpers.NewAsset("B", "", 1, 2),
	}

	_, err := NewEngine(2, zerolog.Nop()).Run(Input{Assets: assets, SelectionA: []int{0}, Days: 10})
	require.Error(t, err)
	var validationErr *domain.ValidationError
	assert.False(t, errors.As(err, &validationErr))
}

func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.02, 0}
	expected := math.Sqrt(125e-6) * math.Sqrt(252)

	assert.InDelta(t, expected, AnnualizedVolatility(returns), 1e-9)
	assert.Equal(t, 0.0, AnnualizedVolatility([]float64{0.01}))
	assert.InDelta(t, 0.0, AnnualizedVolatility([]float64{0.01, 0.01, 0.01}), 1e-12)
}

func TestMaxDrawdown(t *testing.T) {
	assert.InDelta(t, 0.25, MaxDrawdown([]float64{0, 0.2, -0.1, 0.3}), 1e-12)
	assert.Equal(t, 0.0, MaxDrawdown([]float64{0, 0.1, 0.2}))
	assert.Equal(t, 0.0, MaxDrawdown([]float64{0}))
	assert.InDelta(t, 0.1, MaxDrawdown([]float64{0, -0.1}), 1e-12)
}
