// Package montecarlo resamples observed return series into simulated equity
// paths and aggregate risk statistics. Identical inputs (series, config,
// seed) always produce bit-identical results: every draw runs on its own
// deterministic stream derived from (seed, draw index), so draws partition
// freely across workers.
package montecarlo

import (
	"math"
	"math/rand"
	"sort"

	"github.com/atlas-desktop/risk-engine/internal/series"
	"github.com/atlas-desktop/risk-engine/internal/workers"
	"github.com/atlas-desktop/risk-engine/pkg/types"
	"go.uber.org/zap"
)

// DefaultBlockLength is one trading week, the smallest window that keeps
// intra-week volatility clustering together.
const DefaultBlockLength = 5

// DefaultStressPercentile bounds the historical left tail used by stress
// draws.
const DefaultStressPercentile = 5.0

// DefaultStepsPerYear annualizes simulated growth assuming daily periods.
const DefaultStepsPerYear = 252.0

// Config controls one simulation run. The zero value is not usable; Draws
// and InitialCapital are required.
type Config struct {
	InitialCapital float64            `json:"initial_capital"`
	Draws          int                `json:"draws"`
	PathLength     int                `json:"path_length"` // 0 means series length
	Mode           types.ResampleMode `json:"mode"`
	Seed           int64              `json:"seed"`
	RuinFloor      float64            `json:"ruin_floor"`

	BlockLength       int     `json:"block_length,omitempty"`       // block mode
	StressProbability float64 `json:"stress_probability,omitempty"` // stress mode
	StressPercentile  float64 `json:"stress_percentile,omitempty"`  // stress mode

	KeepPaths    int       `json:"keep_paths,omitempty"` // number of full paths to retain
	Workers      int       `json:"workers,omitempty"`
	StepsPerYear float64   `json:"steps_per_year,omitempty"`
	Percentiles  []float64 `json:"percentiles,omitempty"`

	// AllowNegativeEquity lets paths continue below zero for diagnostics;
	// otherwise equity is floored at zero.
	AllowNegativeEquity bool `json:"allow_negative_equity,omitempty"`
}

// Simulator runs Monte Carlo resampling over return series.
type Simulator struct {
	logger   *zap.Logger
	registry *StreamRegistry
}

// NewSimulator creates a simulator using the process-wide stream registry.
func NewSimulator(logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{logger: logger, registry: DefaultRegistry}
}

func validate(cfg *Config, seriesLen int) error {
	if seriesLen < 1 {
		return &types.InsufficientDataError{Have: seriesLen, Need: 1}
	}
	if cfg.Draws <= 0 {
		return &types.InvalidConfigurationError{Field: "draws", Value: cfg.Draws, Reason: "must be > 0"}
	}
	if cfg.PathLength < 0 {
		return &types.InvalidConfigurationError{Field: "path_length", Value: cfg.PathLength, Reason: "must be >= 0"}
	}
	if cfg.PathLength == 0 {
		cfg.PathLength = seriesLen
	}
	if cfg.InitialCapital <= 0 {
		return &types.InvalidConfigurationError{Field: "initial_capital", Value: cfg.InitialCapital, Reason: "must be > 0"}
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = types.ModeIID
	case types.ModeIID, types.ModeShuffle, types.ModeBlock, types.ModeStress:
	default:
		return &types.InvalidConfigurationError{Field: "mode", Value: cfg.Mode, Reason: "unknown resample mode"}
	}
	if cfg.Mode == types.ModeBlock {
		if cfg.BlockLength == 0 {
			cfg.BlockLength = DefaultBlockLength
		}
		if cfg.BlockLength < 1 || cfg.BlockLength > seriesLen {
			return &types.InvalidConfigurationError{
				Field: "block_length", Value: cfg.BlockLength,
				Reason: "must be in [1, series length]",
			}
		}
	}
	if cfg.Mode == types.ModeStress {
		if cfg.StressProbability < 0 || cfg.StressProbability > 1 {
			return &types.InvalidConfigurationError{
				Field: "stress_probability", Value: cfg.StressProbability, Reason: "must be in [0, 1]",
			}
		}
		if cfg.StressPercentile == 0 {
			cfg.StressPercentile = DefaultStressPercentile
		}
		if cfg.StressPercentile < 0 || cfg.StressPercentile >= 100 {
			return &types.InvalidConfigurationError{
				Field: "stress_percentile", Value: cfg.StressPercentile, Reason: "must be in [0, 100)",
			}
		}
	}
	if cfg.StepsPerYear == 0 {
		cfg.StepsPerYear = DefaultStepsPerYear
	}
	if len(cfg.Percentiles) == 0 {
		cfg.Percentiles = DefaultPercentiles
	}
	return nil
}

// Simulate resamples one return series into cfg.Draws equity paths and
// aggregates the outcome. A zero-variance series is flagged Degenerate on
// the result rather than failing the run.
func (s *Simulator) Simulate(rs *types.ReturnSeries, cfg Config) (*types.SimulationResult, error) {
	if err := validate(&cfg, rs.Len()); err != nil {
		return nil, err
	}

	vals := rs.Values()
	var rets []float64
	compounding := rs.Policy == types.PolicyCompounding
	if compounding {
		rets = series.Returns(rs)
	}

	tail := leftTailIndices(vals, cfg.StressPercentile)
	degenerate := variance(vals) == 0

	s.logger.Info("starting simulation",
		zap.String("strategy", rs.Strategy),
		zap.Int("draws", cfg.Draws),
		zap.Int("path_length", cfg.PathLength),
		zap.String("mode", string(cfg.Mode)),
		zap.Int64("seed", cfg.Seed),
	)

	finals := make([]float64, cfg.Draws)
	ddPct := make([]float64, cfg.Draws)
	ddUSD := make([]float64, cfg.Draws)
	ruined := make([]bool, cfg.Draws)

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
			sp := newSampler(cfg, len(vals), tail, rng)

			var path types.EquityPath
			if d < keep {
				path = make(types.EquityPath, cfg.PathLength+1)
				path[0] = cfg.InitialCapital
			}

			equity := cfg.InitialCapital
			peak := equity
			var maxDDUSD, maxDDPct float64
			breach := false

			for step := 0; step < cfg.PathLength; step++ {
				idx := sp.next()
				if compounding {
					equity *= 1 + rets[idx]
				} else {
					equity += vals[idx]
				}
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
			}

			finals[d] = equity
			ddPct[d] = maxDDPct
			ddUSD[d] = maxDDUSD
			ruined[d] = breach
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

	result := &types.SimulationResult{
		Strategy:       rs.Strategy,
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
	result.CAGR = annualizedGrowth(result.FinalEquity.Mean, cfg.InitialCapital, cfg.StepsPerYear, cfg.PathLength)
	if meanDD := result.MaxDrawdownPct.Mean; meanDD > 0 {
		result.MARRatio = result.CAGR / meanDD
	}

	s.logger.Info("simulation complete",
		zap.String("strategy", rs.Strategy),
		zap.Float64("ruin_probability", result.RuinProbability),
		zap.Float64("median_final_equity", result.FinalEquity.Median),
		zap.Bool("degenerate", degenerate),
	)
	return result, nil
}

// annualizedGrowth converts mean final equity into a CAGR estimate given the
// number of simulated steps.
func annualizedGrowth(meanFinal, initial, stepsPerYear float64, steps int) float64 {
	if initial <= 0 || meanFinal <= 0 || steps <= 0 {
		return 0
	}
	years := float64(steps) / stepsPerYear
	if years <= 0 {
		return 0
	}
	return math.Pow(meanFinal/initial, 1/years) - 1
}

// leftTailIndices returns positions of values at or below the given
// percentile of the observed distribution. Falls back to the single worst
// value when the cut is empty.
func leftTailIndices(vals []float64, percentile float64) []int {
	if len(vals) == 0 {
		return nil
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	cut := percentileOf(sorted, percentile)

	var tail []int
	for i, v := range vals {
		if v <= cut {
			tail = append(tail, i)
		}
	}
	if len(tail) == 0 {
		worst := 0
		for i, v := range vals {
			if v < vals[worst] {
				worst = i
			}
		}
		tail = []int{worst}
	}
	return tail
}

// sampler produces the shared per-step period index for one draw. Block
// sampling is circular: blocks wrap around the series end, so a block length
// equal to the series length yields rotated copies of the original series.
type sampler struct {
	mode types.ResampleMode
	n    int
	rng  *rand.Rand

	block      int
	blockStart int
	blockPos   int

	perm    []int
	permPos int

	stressProb float64
	tail       []int
}

func newSampler(cfg Config, n int, tail []int, rng *rand.Rand) *sampler {
	sp := &sampler{
		mode:       cfg.Mode,
		n:          n,
		rng:        rng,
		block:      cfg.BlockLength,
		blockPos:   cfg.BlockLength, // force a fresh block on first step
		stressProb: cfg.StressProbability,
		tail:       tail,
	}
	return sp
}

func (sp *sampler) next() int {
	switch sp.mode {
	case types.ModeShuffle:
		if sp.perm == nil || sp.permPos == len(sp.perm) {
			sp.perm = sp.rng.Perm(sp.n)
			sp.permPos = 0
		}
		idx := sp.perm[sp.permPos]
		sp.permPos++
		return idx
	case types.ModeBlock:
		if sp.blockPos >= sp.block {
			sp.blockStart = sp.rng.Intn(sp.n)
			sp.blockPos = 0
		}
		idx := (sp.blockStart + sp.blockPos) % sp.n
		sp.blockPos++
		return idx
	case types.ModeStress:
		if sp.rng.Float64() < sp.stressProb {
			return sp.tail[sp.rng.Intn(len(sp.tail))]
		}
		return sp.rng.Intn(sp.n)
	default: // ModeIID
		return sp.rng.Intn(sp.n)
	}
}
