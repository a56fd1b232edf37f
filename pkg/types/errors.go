// Package types provides the engine error taxonomy. Every error names the
// offending parameter so callers never have to guess what to fix.
package types

import (
	"fmt"
	"time"
)

// InsufficientDataError reports too few observations for a meaningful
// statistic.
type InsufficientDataError struct {
	Strategy string
	Have     int
	Need     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for strategy %q: have %d trades, need at least %d",
		e.Strategy, e.Have, e.Need)
}

// InvalidConfigurationError reports a contradictory or out-of-range caller
// parameter, checked before any core loop runs.
type InvalidConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v (%s)", e.Field, e.Value, e.Reason)
}

// DegenerateSeriesError marks a zero-variance input series. Simulation does
// not return it as a failure; it is carried on the result flag and available
// for callers that want to treat the condition as fatal.
type DegenerateSeriesError struct {
	Strategy string
}

func (e *DegenerateSeriesError) Error() string {
	return fmt.Sprintf("degenerate series for strategy %q: zero variance, every path is identical", e.Strategy)
}

// InfeasibleConstraintsError reports allocation constraints that cannot be
// satisfied together.
type InfeasibleConstraintsError struct {
	Field  string
	Reason string
}

func (e *InfeasibleConstraintsError) Error() string {
	return fmt.Sprintf("infeasible constraints: %s (%s)", e.Field, e.Reason)
}

// NoOverlapError reports reconciliation inputs whose time windows do not
// intersect.
type NoOverlapError struct {
	LiveStart     time.Time
	LiveEnd       time.Time
	BacktestStart time.Time
	BacktestEnd   time.Time
}

func (e *NoOverlapError) Error() string {
	return fmt.Sprintf("no overlap between live window [%s, %s] and backtest window [%s, %s]",
		e.LiveStart.Format(time.RFC3339), e.LiveEnd.Format(time.RFC3339),
		e.BacktestStart.Format(time.RFC3339), e.BacktestEnd.Format(time.RFC3339))
}
