// Package series builds normalized per-strategy return series from closed
// trade records and derives equity-curve analytics from them.
package series

import (
	"sort"
	"time"

	"github.com/atlas-desktop/risk-engine/pkg/types"
	"go.uber.org/zap"
)

// DefaultMinTrades is the smallest trade count that yields a meaningful
// statistic.
const DefaultMinTrades = 2

// Config controls how trade records are normalized into a return series.
type Config struct {
	Policy      types.CapitalPolicy
	CapitalBase float64
	// MinTrades rejects series built from fewer closed trades. Zero means
	// DefaultMinTrades.
	MinTrades int
}

// Builder turns raw trade records into per-strategy return series. It is a
// pure transform: input slices are never mutated.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder creates a series builder.
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger}
}

// Build aggregates one strategy's closed trades into a chronologically
// ordered daily P&L series. Trades closed on the same trading day collapse
// into a single period. Returns InsufficientDataError below the configured
// minimum and InvalidConfigurationError for a non-positive capital base.
func (b *Builder) Build(trades []types.TradeRecord, cfg Config) (*types.ReturnSeries, error) {
	minTrades := cfg.MinTrades
	if minTrades <= 0 {
		minTrades = DefaultMinTrades
	}
	if cfg.CapitalBase <= 0 {
		return nil, &types.InvalidConfigurationError{
			Field: "capital_base", Value: cfg.CapitalBase, Reason: "must be > 0",
		}
	}
	if cfg.Policy == "" {
		cfg.Policy = types.PolicyFixed
	}

	strategy := ""
	if len(trades) > 0 {
		strategy = trades[0].Strategy
	}
	if len(trades) < minTrades {
		return nil, &types.InsufficientDataError{Strategy: strategy, Have: len(trades), Need: minTrades}
	}

	// Collapse to per-day P&L keyed by exit date.
	daily := make(map[time.Time]float64, len(trades))
	for _, tr := range trades {
		day := tr.ExitTime.UTC().Truncate(24 * time.Hour)
		pnl, _ := tr.PnL.Float64()
		daily[day] += pnl
	}

	points := make([]types.ReturnPoint, 0, len(daily))
	for day, pnl := range daily {
		points = append(points, types.ReturnPoint{Date: day, PnL: pnl})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	b.logger.Debug("built return series",
		zap.String("strategy", strategy),
		zap.Int("trades", len(trades)),
		zap.Int("periods", len(points)),
		zap.String("policy", string(cfg.Policy)),
	)

	return &types.ReturnSeries{
		Strategy:    strategy,
		Points:      points,
		CapitalBase: cfg.CapitalBase,
		Policy:      cfg.Policy,
	}, nil
}

// BuildAll groups a mixed trade collection by strategy identifier and builds
// one series per strategy. Strategies below the minimum trade count are
// skipped with a warning rather than failing the whole batch.
func (b *Builder) BuildAll(trades []types.TradeRecord, cfg Config) ([]*types.ReturnSeries, error) {
	byStrategy := make(map[string][]types.TradeRecord)
	order := make([]string, 0)
	for _, tr := range trades {
		if _, seen := byStrategy[tr.Strategy]; !seen {
			order = append(order, tr.Strategy)
		}
		byStrategy[tr.Strategy] = append(byStrategy[tr.Strategy], tr)
	}
	sort.Strings(order)

	out := make([]*types.ReturnSeries, 0, len(order))
	for _, name := range order {
		s, err := b.Build(byStrategy[name], cfg)
		if err != nil {
			if _, skip := err.(*types.InsufficientDataError); skip {
				b.logger.Warn("skipping strategy with too few trades",
					zap.String("strategy", name),
					zap.Int("trades", len(byStrategy[name])),
				)
				continue
			}
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, &types.InsufficientDataError{Strategy: "", Have: 0, Need: cfg.MinTrades}
	}
	return out, nil
}

// Returns converts the series to per-period fractional returns against the
// configured capital policy: fixed divides by the constant base, compounding
// divides by base plus cumulative P&L through the prior period.
func Returns(s *types.ReturnSeries) []float64 {
	out := make([]float64, len(s.Points))
	base := s.CapitalBase
	for i, p := range s.Points {
		out[i] = p.PnL / base
		if s.Policy == types.PolicyCompounding {
			base += p.PnL
			if base <= 0 {
				// A blown-up compounding base would flip return signs;
				// freeze it at the last positive value instead.
				base = s.CapitalBase
			}
		}
	}
	return out
}

// Summarize computes the allocator-facing summary of a series: mean and
// variance of fractional returns plus the historical max drawdown fraction.
func Summarize(s *types.ReturnSeries, initialCapital float64) types.StrategySummary {
	rets := Returns(s)
	n := float64(len(rets))

	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	if n > 0 {
		mean /= n
	}

	variance := 0.0
	for _, r := range rets {
		d := r - mean
		variance += d * d
	}
	if n > 0 {
		variance /= n
	}

	curve := EquityCurve(s, initialCapital)
	_, ddPct := MaxDrawdown(curve)

	return types.StrategySummary{
		Strategy:    s.Strategy,
		Mean:        mean,
		Variance:    variance,
		MaxDrawdown: ddPct,
	}
}
