// Package domain holds the core types shared across modules.
// It has no infrastructure dependencies.
package domain

import "time"

// PricePoint is a single daily closing price
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Asset is a tradable security with its closing-price history.
// Prices are ordered by date ascending. Assets are immutable once loaded.
type Asset struct {
	Symbol string       `json:"symbol"`
	Name   string       `json:"name"`
	Prices []PricePoint `json:"prices"`
}

// Closes returns the closing prices in date order
func (a Asset) Closes() []float64 {
	out := make([]float64, len(a.Prices))
	for i, p := range a.Prices {
		out[i] = p.Close
	}
	return out
}

// DisplayName returns the asset name, falling back to the symbol
func (a Asset) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Symbol
}
