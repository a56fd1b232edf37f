package robustness

import (
	"context"

	"github.com/atlas-desktop/risk-engine/pkg/types"
)

// EntryTimeEvaluator scores staggered intraday entry schedules against a
// fixed pool of historical trades. The candidate's "entry_minute" selects
// trades whose entry falls within "entry_window" minutes of that
// minute-of-day; searching over entry minutes reproduces the staggered-entry
// tuning workflow for iron-condor style strategies.
type EntryTimeEvaluator struct {
	pool          []types.TradeRecord
	defaultWindow float64 // minutes, used when the candidate has no entry_window
}

// NewEntryTimeEvaluator wraps a historical trade pool. Trades keep their
// original order.
func NewEntryTimeEvaluator(pool []types.TradeRecord, defaultWindowMinutes float64) *EntryTimeEvaluator {
	if defaultWindowMinutes <= 0 {
		defaultWindowMinutes = 5
	}
	return &EntryTimeEvaluator{pool: pool, defaultWindow: defaultWindowMinutes}
}

// Evaluate returns the pool trades whose entry minute-of-day lies within the
// candidate's window.
func (e *EntryTimeEvaluator) Evaluate(_ context.Context, params types.ParamSet) ([]types.TradeRecord, error) {
	center, ok := params["entry_minute"]
	if !ok {
		return nil, &types.InvalidConfigurationError{
			Field: "entry_minute", Reason: "candidate has no entry_minute parameter",
		}
	}
	window := e.defaultWindow
	if w, ok := params["entry_window"]; ok {
		window = w
	}

	var out []types.TradeRecord
	for _, tr := range e.pool {
		minute := float64(tr.EntryTime.Hour()*60 + tr.EntryTime.Minute())
		if minute >= center-window && minute <= center+window {
			out = append(out, tr)
		}
	}
	return out, nil
}
