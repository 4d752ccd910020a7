package testing

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/aristath/quanport/internal/domain"
)

// FixtureStart is the first date used by generated series
var FixtureStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// NewAsset builds an asset with consecutive daily closes starting at FixtureStart
func NewAsset(symbol, name string, closes ...float64) domain.Asset {
	prices := make([]domain.PricePoint, len(closes))
	for i, c := range closes {
		prices[i] = domain.PricePoint{Date: FixtureStart.AddDate(0, 0, i), Close: c}
	}
	return domain.Asset{Symbol: symbol, Name: name, Prices: prices}
}

// RandomWalkAsset builds a deterministic geometric random walk of n closes
// with the given daily drift and volatility.
func RandomWalkAsset(symbol string, n int, drift, vol float64, seed uint64) domain.Asset {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	closes := make([]float64, n)
	price := 100.0
	for i := range closes {
		closes[i] = price
		price *= math.Exp(drift + vol*rng.NormFloat64())
	}
	return NewAsset(symbol, symbol+" Corp", closes...)
}

// RandomWalkUniverse builds one random-walk asset per symbol with varied drift and volatility
func RandomWalkUniverse(symbols []string, n int, seed uint64) []domain.Asset {
	assets := make([]domain.Asset, len(symbols))
	for i, s := range symbols {
		drift := 0.0002 * float64(i%5)
		vol := 0.01 + 0.004*float64(i%4)
		assets[i] = RandomWalkAsset(s, n, drift, vol, seed+uint64(i)*7919)
	}
	return assets
}
