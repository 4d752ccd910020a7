// Package marketdata stores daily closing prices, aligns them by date and serves
// them to the statistics cache and the backtest engine.
package marketdata

import "time"

// Security is a symbol known to the history store
type Security struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Points    int       `json:"points"`
	FirstDate time.Time `json:"firstDate"`
	LastDate  time.Time `json:"lastDate"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ImportRecord remembers the last imported version of a source file
type ImportRecord struct {
	Source      string
	Fingerprint string
	Rows        int
	ImportedAt  time.Time
}

// ImportSummary reports the outcome of one import pass
type ImportSummary struct {
	Files   int      `json:"files"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Rows    int      `json:"rows"`
	Symbols []string `json:"symbols"`
}
