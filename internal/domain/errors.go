package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports a request that violates input constraints.
// It is raised before any computation starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for a request field
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientDataError reports a price series too short (or misaligned) to build statistics
type InsufficientDataError struct {
	Symbol   string
	Points   int
	Required int
	Reason   string
}

func (e *InsufficientDataError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("insufficient data for %s: %s", e.Symbol, e.Reason)
	}
	return fmt.Sprintf("insufficient data for %s: %d price points (need at least %d)", e.Symbol, e.Points, e.Required)
}

// InsufficientHistoryError reports a backtest window with too few common trading days
type InsufficientHistoryError struct {
	Symbols   []string
	Available int
	Required  int
	From      string
	To        string
}

func (e *InsufficientHistoryError) Error() string {
	window := ""
	if e.From != "" || e.To != "" {
		window = fmt.Sprintf(" between %s and %s", e.From, e.To)
	}
	return fmt.Sprintf("insufficient history for %s: %d common trading days%s (need at least %d)",
		strings.Join(e.Symbols, ","), e.Available, window, e.Required)
}

// CombinatorialLimitError reports a subset enumeration larger than the safety ceiling
type CombinatorialLimitError struct {
	Assets       int
	Budget       int
	Combinations int64
	Limit        int64
}

func (e *CombinatorialLimitError) Error() string {
	if e.Combinations < 0 {
		return fmt.Sprintf("C(%d,%d) overflows the enumeration ceiling of %d subsets", e.Assets, e.Budget, e.Limit)
	}
	return fmt.Sprintf("C(%d,%d) = %d subsets exceeds the enumeration ceiling of %d", e.Assets, e.Budget, e.Combinations, e.Limit)
}
