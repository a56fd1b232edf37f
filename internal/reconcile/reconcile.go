// Package reconcile pairs live executions against backtest predictions for
// the same strategy and window, quantifying how much of the backtested edge
// survives real fills.
package reconcile

import (
	"math"
	"sort"
	"time"

	"github.com/atlas-desktop/risk-engine/pkg/types"
	"go.uber.org/zap"
)

// DefaultTolerance is the widest entry-timestamp gap that still counts as
// the same trade. Live fills and backtest expectations never align exactly.
const DefaultTolerance = 10 * time.Minute

// DefaultSlippageThresholdUSD flags a matched pair whose absolute slippage
// exceeds this many dollars.
const DefaultSlippageThresholdUSD = 100.0

// DefaultSlippageThresholdPct flags a matched pair whose slippage exceeds
// this fraction of the predicted P&L.
const DefaultSlippageThresholdPct = 0.25

// Config bounds matching and flagging.
type Config struct {
	Tolerance            time.Duration `json:"tolerance,omitempty"`
	SlippageThresholdUSD float64       `json:"slippage_threshold_usd,omitempty"`
	SlippageThresholdPct float64       `json:"slippage_threshold_pct,omitempty"`
	RequireMatchingLegs  bool          `json:"require_matching_legs,omitempty"`
}

// Engine matches live trades to backtest trades.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Reconcile pairs live against backtest trades by greedy closest-entry-time
// matching within the tolerance, restricted to the same underlying (and the
// same leg structure when RequireMatchingLegs is set). Every input trade
// appears exactly once in the report, matched or unmatched. Returns
// NoOverlap when the two collections share no time window.
func (e *Engine) Reconcile(live, backtest []types.TradeRecord, cfg Config) (*types.ReconciliationReport, error) {
	if cfg.Tolerance == 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if cfg.Tolerance < 0 {
		return nil, &types.InvalidConfigurationError{
			Field: "tolerance", Value: cfg.Tolerance, Reason: "must be >= 0",
		}
	}
	if cfg.SlippageThresholdUSD == 0 {
		cfg.SlippageThresholdUSD = DefaultSlippageThresholdUSD
	}
	if cfg.SlippageThresholdPct == 0 {
		cfg.SlippageThresholdPct = DefaultSlippageThresholdPct
	}
	if len(live) == 0 || len(backtest) == 0 {
		return nil, &types.InsufficientDataError{Have: len(live) + len(backtest), Need: 2}
	}

	liveStart, liveEnd := window(live)
	btStart, btEnd := window(backtest)
	if liveEnd.Before(btStart) || btEnd.Before(liveStart) {
		return nil, &types.NoOverlapError{
			LiveStart: liveStart, LiveEnd: liveEnd,
			BacktestStart: btStart, BacktestEnd: btEnd,
		}
	}

	// Candidate pairs ordered by entry-time gap; greedy pass takes the
	// closest first, each trade at most once.
	type pairing struct {
		liveIdx, btIdx int
		gap            time.Duration
	}
	var pairs []pairing
	for i, lt := range live {
		for j, bt := range backtest {
			if lt.Underlying != bt.Underlying {
				continue
			}
			if cfg.RequireMatchingLegs && lt.Legs != bt.Legs {
				continue
			}
			gap := lt.EntryTime.Sub(bt.EntryTime)
			if gap < 0 {
				gap = -gap
			}
			if gap <= cfg.Tolerance {
				pairs = append(pairs, pairing{liveIdx: i, btIdx: j, gap: gap})
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].gap != pairs[b].gap {
			return pairs[a].gap < pairs[b].gap
		}
		if pairs[a].liveIdx != pairs[b].liveIdx {
			return pairs[a].liveIdx < pairs[b].liveIdx
		}
		return pairs[a].btIdx < pairs[b].btIdx
	})

	liveUsed := make([]bool, len(live))
	btUsed := make([]bool, len(backtest))
	report := &types.ReconciliationReport{}

	for _, p := range pairs {
		if liveUsed[p.liveIdx] || btUsed[p.btIdx] {
			continue
		}
		liveUsed[p.liveIdx] = true
		btUsed[p.btIdx] = true

		lt, bt := live[p.liveIdx], backtest[p.btIdx]
		livePnL := lt.PnL.InexactFloat64()
		btPnL := bt.PnL.InexactFloat64()
		slip := livePnL - btPnL
		var slipPct float64
		if btPnL != 0 {
			slipPct = slip / math.Abs(btPnL)
		}
		flagged := math.Abs(slip) > cfg.SlippageThresholdUSD ||
			math.Abs(slipPct) > cfg.SlippageThresholdPct

		report.Matched = append(report.Matched, types.MatchedPair{
			Live:        lt,
			Backtest:    bt,
			TimeDelta:   lt.EntryTime.Sub(bt.EntryTime),
			Slippage:    slip,
			SlippagePct: slipPct,
			Flagged:     flagged,
		})
	}
	for i, used := range liveUsed {
		if !used {
			report.UnmatchedLive = append(report.UnmatchedLive, live[i])
		}
	}
	for i, used := range btUsed {
		if !used {
			report.UnmatchedBacktest = append(report.UnmatchedBacktest, backtest[i])
		}
	}

	report.Summary = summarize(report.Matched, live, backtest)

	e.logger.Info("reconciliation complete",
		zap.Int("matched", len(report.Matched)),
		zap.Int("unmatched_live", len(report.UnmatchedLive)),
		zap.Int("unmatched_backtest", len(report.UnmatchedBacktest)),
		zap.Int("flagged", report.Summary.FlaggedCount),
		zap.Float64("realization_rate", report.Summary.RealizationRate),
	)
	return report, nil
}

func summarize(matched []types.MatchedPair, live, backtest []types.TradeRecord) types.ReconciliationSummary {
	var sum types.ReconciliationSummary
	sum.MatchedCount = len(matched)

	for _, m := range matched {
		if m.Flagged {
			sum.FlaggedCount++
		}
		sum.NetSlippage += m.Slippage
	}

	liveWins := 0
	for _, t := range live {
		sum.LivePnL += t.PnL.InexactFloat64()
		if t.PnL.IsPositive() {
			liveWins++
		}
	}
	btWins := 0
	for _, t := range backtest {
		sum.BacktestPnL += t.PnL.InexactFloat64()
		if t.PnL.IsPositive() {
			btWins++
		}
	}
	sum.LiveWinRate = float64(liveWins) / float64(len(live))
	sum.BacktestWinRate = float64(btWins) / float64(len(backtest))
	if sum.BacktestPnL != 0 {
		sum.RealizationRate = sum.LivePnL / sum.BacktestPnL
	}
	return sum
}

// window spans the first entry to the last exit, so collections whose
// entries are merely offset within a session still overlap.
func window(trades []types.TradeRecord) (start, end time.Time) {
	start, end = trades[0].EntryTime, trades[0].ExitTime
	for _, t := range trades {
		if t.EntryTime.Before(start) {
			start = t.EntryTime
		}
		if t.ExitTime.After(end) {
			end = t.ExitTime
		}
		if t.EntryTime.After(end) {
			end = t.EntryTime
		}
	}
	return start, end
}
