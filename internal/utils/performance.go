package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// slowThreshold is the duration above which a timed operation is logged at warn level
const slowThreshold = 10 * time.Second

// Timer measures the wall-clock duration of a solver run or request stage
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
}

// NewTimer starts a timer with the given operation name
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
		log:   log,
	}
}

// Elapsed returns the time since the timer started without logging
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Stop logs the duration and returns it
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)

	event := t.log.Debug()
	if duration > slowThreshold {
		event = t.log.Warn()
	}
	event.
		Str("operation", t.name).
		Dur("duration_ms", duration).
		Msg("Operation completed")

	return duration
}

// Milliseconds converts a duration to fractional milliseconds for API payloads
func Milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// MeasureDBQuery measures database query performance
//
// Usage:
//
//	done := utils.MeasureDBQuery("insert_prices", log)
//	defer func() { done(rows) }()
func MeasureDBQuery(queryName string, log zerolog.Logger) func(rowsAffected int64) {
	start := time.Now()

	return func(rowsAffected int64) {
		duration := time.Since(start)

		event := log.Debug()
		if duration > 5*time.Second {
			event = log.Warn()
		}
		event.
			Str("query", queryName).
			Dur("duration_ms", duration).
			Int64("rows_affected", rowsAffected).
			Msg("Database query completed")
	}
}
