// Package types provides shared type definitions for the risk engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// CapitalPolicy controls how the capital base evolves while building a
// return series.
type CapitalPolicy string

const (
	// PolicyFixed keeps the capital base constant across all periods.
	PolicyFixed CapitalPolicy = "fixed"
	// PolicyCompounding grows the base by cumulative P&L after each period.
	PolicyCompounding CapitalPolicy = "compounding"
)

// ResampleMode selects the resampling scheme for simulation draws.
type ResampleMode string

const (
	// ModeIID draws each step independently with replacement.
	ModeIID ResampleMode = "iid"
	// ModeShuffle permutes the observed periods without replacement.
	ModeShuffle ResampleMode = "shuffle"
	// ModeBlock draws contiguous circular blocks to preserve local
	// autocorrelation.
	ModeBlock ResampleMode = "block"
	// ModeStress is IID with a per-step probability of substituting a
	// left-tail draw.
	ModeStress ResampleMode = "stress"
)

// TradeRecord is one closed position as reported by the upstream trade-log
// importer. The engine treats records as read-only.
type TradeRecord struct {
	Strategy   string          `json:"strategy"`
	Underlying string          `json:"underlying"`
	Legs       string          `json:"legs"` // structure/strike description, e.g. "BULL PUT 4500/4450"
	EntryTime  time.Time       `json:"entry_time"`
	ExitTime   time.Time       `json:"exit_time"`
	PnL        decimal.Decimal `json:"pnl"`
	MarginUsed decimal.Decimal `json:"margin_used"`
	Contracts  int             `json:"contracts"`
}

// ReturnPoint is one period of realized P&L within a return series.
type ReturnPoint struct {
	Date time.Time `json:"date"`
	PnL  float64   `json:"pnl"`
}

// ReturnSeries is an ordered per-period P&L series for one strategy,
// normalized against a capital base. Chronologically ordered with no
// duplicate dates; immutable after construction.
type ReturnSeries struct {
	Strategy    string        `json:"strategy"`
	Points      []ReturnPoint `json:"points"`
	CapitalBase float64       `json:"capital_base"`
	Policy      CapitalPolicy `json:"policy"`
}

// Len returns the number of periods in the series.
func (s *ReturnSeries) Len() int { return len(s.Points) }

// Values returns the per-period P&L values in order.
func (s *ReturnSeries) Values() []float64 {
	vals := make([]float64, len(s.Points))
	for i, p := range s.Points {
		vals[i] = p.PnL
	}
	return vals
}

// Start returns the date of the first period.
func (s *ReturnSeries) Start() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[0].Date
}

// End returns the date of the last period.
func (s *ReturnSeries) End() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Date
}

// EquityPath is a cumulative capital curve for one simulation draw. The
// first element is the initial capital, so its length is steps+1.
type EquityPath []float64

// Final returns the ending equity of the path.
func (p EquityPath) Final() float64 {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1]
}

// Distribution summarizes a sampled statistic across simulation draws.
type Distribution struct {
	Mean        float64             `json:"mean"`
	Median      float64             `json:"median"`
	StdDev      float64             `json:"std_dev"`
	Min         float64             `json:"min"`
	Max         float64             `json:"max"`
	Percentiles map[float64]float64 `json:"percentiles"`
}

// SimulationResult aggregates the outcome of one simulation run. For a fixed
// (series, config) pair the result is bit-identical across runs.
type SimulationResult struct {
	Strategy       string       `json:"strategy"`
	Draws          int          `json:"draws"`
	PathLength     int          `json:"path_length"`
	Seed           int64        `json:"seed"`
	Mode           ResampleMode `json:"mode"`
	InitialCapital float64      `json:"initial_capital"`

	FinalEquity    *Distribution `json:"final_equity"`
	MaxDrawdownPct *Distribution `json:"max_drawdown_pct"`
	MaxDrawdownUSD *Distribution `json:"max_drawdown_usd"`

	RuinProbability     float64 `json:"ruin_probability"`
	ProbabilityOfProfit float64 `json:"probability_of_profit"`
	CAGR                float64 `json:"cagr"`
	MARRatio            float64 `json:"mar_ratio"` // CAGR over expected max drawdown

	// Degenerate is set when the input series has zero variance: the run is
	// valid but every path is identical.
	Degenerate bool `json:"degenerate"`

	// SamplePaths holds the retained full equity paths when the run was
	// configured to keep them.
	SamplePaths []EquityPath `json:"sample_paths,omitempty"`
}

// StrategySummary is the per-strategy input to the allocation optimizer.
// Mean and Variance are per-period fractional returns; MaxDrawdown is the
// peak-to-trough fraction observed or simulated for the strategy.
type StrategySummary struct {
	Strategy    string  `json:"strategy"`
	Mean        float64 `json:"mean"`
	Variance    float64 `json:"variance"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// RiskRatio is the MAR-style ratio used to break redundancy between
// correlated strategies: mean return over max drawdown.
func (s StrategySummary) RiskRatio() float64 {
	if s.MaxDrawdown <= 0 {
		return 0
	}
	return s.Mean / s.MaxDrawdown
}

// AllocationWeights maps strategy identifiers to non-negative capital
// weights. Weights sum to at most 1; the remainder is the cash residual.
type AllocationWeights struct {
	Weights      map[string]float64 `json:"weights"`
	CashResidual float64            `json:"cash_residual"`
	Adjustments  []string           `json:"adjustments"`

	// CapitalAllocations holds per-strategy dollar amounts when the caller
	// supplied a total capital figure.
	CapitalAllocations map[string]float64 `json:"capital_allocations,omitempty"`
}

// Sum returns the total invested fraction.
func (w *AllocationWeights) Sum() float64 {
	total := 0.0
	for _, v := range w.Weights {
		total += v
	}
	return total
}

// ParamSet is a named set of strategy parameter values.
type ParamSet map[string]float64

// ParamType classifies a search parameter.
type ParamType string

const (
	ParamTypeContinuous ParamType = "continuous"
	ParamTypeInteger    ParamType = "integer"
	ParamTypeDiscrete   ParamType = "discrete"
)

// Parameter describes one axis of a parameter grid.
type Parameter struct {
	Name     string    `json:"name"`
	Type     ParamType `json:"type"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	Step     float64   `json:"step,omitempty"`
	Discrete []float64 `json:"discrete,omitempty"`
}

// ParameterCandidate is one scored point of the parameter grid. Candidates
// are never mutated after scoring.
type ParameterCandidate struct {
	Name         string   `json:"name"`
	Params       ParamSet `json:"params"`
	RawMetric    float64  `json:"raw_metric"`
	MetricMedian float64  `json:"metric_median"`
	MetricIQR    float64  `json:"metric_iqr"`
	Score        float64  `json:"score"` // median - lambda*IQR
	Resamples    int      `json:"resamples"`
	Trades       int      `json:"trades"`
}

// Better reports whether c ranks ahead of other: primarily by score, ties
// broken by raw metric, then by name for a total order.
func (c ParameterCandidate) Better(other ParameterCandidate) bool {
	if c.Score != other.Score {
		return c.Score > other.Score
	}
	if c.RawMetric != other.RawMetric {
		return c.RawMetric > other.RawMetric
	}
	return c.Name < other.Name
}

// MatchedPair is one live execution matched against its backtest prediction.
type MatchedPair struct {
	Live        TradeRecord   `json:"live"`
	Backtest    TradeRecord   `json:"backtest"`
	TimeDelta   time.Duration `json:"time_delta"`
	Slippage    float64       `json:"slippage"`     // live P&L minus predicted P&L
	SlippagePct float64       `json:"slippage_pct"` // relative to predicted P&L
	Flagged     bool          `json:"flagged"`
}

// ReconciliationSummary aggregates slippage statistics over matched pairs.
type ReconciliationSummary struct {
	LivePnL         float64 `json:"live_pnl"`
	BacktestPnL     float64 `json:"backtest_pnl"`
	NetSlippage     float64 `json:"net_slippage"`
	RealizationRate float64 `json:"realization_rate"` // live P&L as fraction of backtest P&L
	LiveWinRate     float64 `json:"live_win_rate"`
	BacktestWinRate float64 `json:"backtest_win_rate"`
	MatchedCount    int     `json:"matched_count"`
	FlaggedCount    int     `json:"flagged_count"`
}

// ReconciliationReport pairs live and backtest trades for one strategy and
// window. Every input trade appears exactly once, matched or unmatched.
type ReconciliationReport struct {
	Matched           []MatchedPair         `json:"matched"`
	UnmatchedLive     []TradeRecord         `json:"unmatched_live"`
	UnmatchedBacktest []TradeRecord         `json:"unmatched_backtest"`
	Summary           ReconciliationSummary `json:"summary"`
}
