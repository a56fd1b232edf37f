package montecarlo

import (
	"github.com/atlas-desktop/risk-engine/internal/workers"
	"github.com/atlas-desktop/risk-engine/pkg/types"
	"go.uber.org/zap"
)

// JointConfig extends the single-series configuration with portfolio
// weights. Weights are capital fractions applied to each strategy's dollar
// P&L; a nil map means equal weighting.
type JointConfig struct {
	Config
	Weights map[string]float64 `json:"weights,omitempty"`
}

// JointResult is the outcome of one correlation-preserving portfolio
// simulation.
type JointResult struct {
	Portfolio   *types.SimulationResult            `json:"portfolio"`
	PerStrategy map[string]*types.SimulationResult `json:"per_strategy"`
	Correlation *CorrelationMatrix                 `json:"correlation"`
	Periods     int                                `json:"periods"` // union axis length
}

// SimulateJoint resamples several strategies together. All series are
// aligned on the union of their period dates (zero P&L on dates a strategy
// did not trade) and every step of every draw samples ONE shared index
// across all strategies, so cross-strategy co-movement survives resampling.
// Only fixed capital policies are supported: additive dollar P&L composes
// across strategies, compounding fractions do not.
func (s *Simulator) SimulateJoint(list []*types.ReturnSeries, cfg JointConfig) (*JointResult, error) {
	if len(list) == 0 {
		return nil, &types.InsufficientDataError{Have: 0, Need: 1}
	}
	for _, rs := range list {
		if rs.Policy == types.PolicyCompounding {
			return nil, &types.InvalidConfigurationError{
				Field: "policy", Value: rs.Strategy,
				Reason: "joint simulation requires the fixed capital policy",
			}
		}
	}

	weights := cfg.Weights
	if weights == nil {
		weights = make(map[string]float64, len(list))
		for _, rs := range list {
			weights[rs.Strategy] = 1.0 / float64(len(list))
		}
	}
	for _, rs := range list {
		w, ok := weights[rs.Strategy]
		if !ok {
			return nil, &types.InvalidConfigurationError{
				Field: "weights", Value: rs.Strategy, Reason: "no weight for strategy",
			}
		}
		if w < 0 {
			return nil, &types.InvalidConfigurationError{
				Field: "weights", Value: rs.Strategy, Reason: "weight must be >= 0",
			}
		}
	}

	index := unionIndex(list)
	if err := validate(&cfg.Config, len(index)); err != nil {
		return nil, err
	}

	rows := alignToIndex(list, index)
	k := len(list)
	n := len(index)

	scaled := make([][]float64, k)
	portfolio := make([]float64, n)
	for i := 0; i < k; i++ {
		w := weights[list[i].Strategy]
		scaled[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			scaled[i][j] = w * rows[i][j]
			portfolio[j] += scaled[i][j]
		}
	}

	// Stress tail is drawn from the combined portfolio series, so an
	// injected crash day hits every strategy on the same step.
	tail := leftTailIndices(portfolio, cfg.StressPercentile)
	degenerate := variance(portfolio) == 0

	s.logger.Info("starting joint simulation",
		zap.Int("strategies", k),
		zap.Int("periods", n),
		zap.Int("draws", cfg.Draws),
		zap.String("mode", string(cfg.Mode)),
		zap.Int64("seed", cfg.Seed),
	)

	finals := make([]float64, cfg.Draws)
	ddPct := make([]float64, cfg.Draws)
	ddUSD := make([]float64, cfg.Draws)
	ruined := make([]bool, cfg.Draws)

	stratFinals := make([][]float64, k)
	stratDDPct := make([][]float64, k)
	stratDDUSD := make([][]float64, k)
	for i := 0; i < k; i++ {
		stratFinals[i] = make([]float64, cfg.Draws)
		stratDDPct[i] = make([]float64, cfg.Draws)
		stratDDUSD[i] = make([]float64, cfg.Draws)
	}

	keep := cfg.KeepPaths
	if keep > cfg.Draws {
		keep = cfg.Draws
	}
	var kept []types.EquityPath
	if keep > 0 {
		kept = make([]types.EquityPath, keep)
	}

	src := s.registry.Source(cfg.Seed)
	workers.Range(cfg.Draws, cfg.Workers, func(start, end int) {
		for d := start; d < end; d++ {
			rng := src.Stream(d)
			sp := newSampler(cfg.Config, n, tail, rng)

			var path types.EquityPath
			if d < keep {
				path = make(types.EquityPath, cfg.PathLength+1)
				path[0] = cfg.InitialCapital
			}

			equity := cfg.InitialCapital
			peak := equity
			var maxDDUSD, maxDDPct float64
			breach := false

			stratEquity := make([]float64, k)
			stratPeak := make([]float64, k)
			stratMaxUSD := make([]float64, k)
			stratMaxPct := make([]float64, k)
			for i := 0; i < k; i++ {
				stratEquity[i] = weights[list[i].Strategy] * cfg.InitialCapital
				stratPeak[i] = stratEquity[i]
			}

			for step := 0; step < cfg.PathLength; step++ {
				idx := sp.next()

				equity += portfolio[idx]
				if equity < 0 && !cfg.AllowNegativeEquity {
					equity = 0
				}
				if equity < cfg.RuinFloor {
					breach = true
				}
				if equity > peak {
					peak = equity
				} else {
					dd := peak - equity
					if dd > maxDDUSD {
						maxDDUSD = dd
					}
					if peak > 0 {
						if p := dd / peak; p > maxDDPct {
							maxDDPct = p
						}
					}
				}
				if path != nil {
					path[step+1] = equity
				}

				for i := 0; i < k; i++ {
					stratEquity[i] += scaled[i][idx]
					if stratEquity[i] > stratPeak[i] {
						stratPeak[i] = stratEquity[i]
					} else {
						dd := stratPeak[i] - stratEquity[i]
						if dd > stratMaxUSD[i] {
							stratMaxUSD[i] = dd
						}
						if stratPeak[i] > 0 {
							if p := dd / stratPeak[i]; p > stratMaxPct[i] {
								stratMaxPct[i] = p
							}
						}
					}
				}
			}

			finals[d] = equity
			ddPct[d] = maxDDPct
			ddUSD[d] = maxDDUSD
			ruined[d] = breach
			for i := 0; i < k; i++ {
				stratFinals[i][d] = stratEquity[i]
				stratDDPct[i][d] = stratMaxPct[i]
				stratDDUSD[i][d] = stratMaxUSD[i]
			}
			if path != nil {
				kept[d] = path
			}
		}
	})

	ruinCount := 0
	profitCount := 0
	for d := 0; d < cfg.Draws; d++ {
		if ruined[d] {
			ruinCount++
		}
		if finals[d] > cfg.InitialCapital {
			profitCount++
		}
	}

	port := &types.SimulationResult{
		Strategy:       "portfolio",
		Draws:          cfg.Draws,
		PathLength:     cfg.PathLength,
		Seed:           cfg.Seed,
		Mode:           cfg.Mode,
		InitialCapital: cfg.InitialCapital,

		FinalEquity:    computeDistribution(finals, cfg.Percentiles),
		MaxDrawdownPct: computeDistribution(ddPct, cfg.Percentiles),
		MaxDrawdownUSD: computeDistribution(ddUSD, cfg.Percentiles),

		RuinProbability:     float64(ruinCount) / float64(cfg.Draws),
		ProbabilityOfProfit: float64(profitCount) / float64(cfg.Draws),
		Degenerate:          degenerate,
		SamplePaths:         kept,
	}
	port.CAGR = annualizedGrowth(port.FinalEquity.Mean, cfg.InitialCapital, cfg.StepsPerYear, cfg.PathLength)
	if meanDD := port.MaxDrawdownPct.Mean; meanDD > 0 {
		port.MARRatio = port.CAGR / meanDD
	}

	per := make(map[string]*types.SimulationResult, k)
	for i := 0; i < k; i++ {
		name := list[i].Strategy
		initial := weights[name] * cfg.InitialCapital
		r := &types.SimulationResult{
			Strategy:       name,
			Draws:          cfg.Draws,
			PathLength:     cfg.PathLength,
			Seed:           cfg.Seed,
			Mode:           cfg.Mode,
			InitialCapital: initial,

			FinalEquity:    computeDistribution(stratFinals[i], cfg.Percentiles),
			MaxDrawdownPct: computeDistribution(stratDDPct[i], cfg.Percentiles),
			MaxDrawdownUSD: computeDistribution(stratDDUSD[i], cfg.Percentiles),
		}
		profit := 0
		for d := 0; d < cfg.Draws; d++ {
			if stratFinals[i][d] > initial {
				profit++
			}
		}
		r.ProbabilityOfProfit = float64(profit) / float64(cfg.Draws)
		r.CAGR = annualizedGrowth(r.FinalEquity.Mean, initial, cfg.StepsPerYear, cfg.PathLength)
		if meanDD := r.MaxDrawdownPct.Mean; meanDD > 0 {
			r.MARRatio = r.CAGR / meanDD
		}
		per[name] = r
	}

	s.logger.Info("joint simulation complete",
		zap.Int("strategies", k),
		zap.Float64("ruin_probability", port.RuinProbability),
		zap.Float64("median_final_equity", port.FinalEquity.Median),
	)
	return &JointResult{
		Portfolio:   port,
		PerStrategy: per,
		Correlation: Correlations(list),
		Periods:     n,
	}, nil
}
