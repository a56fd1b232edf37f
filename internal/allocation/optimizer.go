// Package allocation sizes capital across strategies using fractional Kelly
// weights with correlation-based redundancy down-weighting. The optimizer
// deliberately avoids covariance-matrix inversion: on small, noisy samples a
// pairwise redundancy rule is numerically stable where full mean-variance
// optimization is not.
package allocation

import (
	"fmt"
	"math"
	"sort"

	"github.com/atlas-desktop/risk-engine/internal/montecarlo"
	"github.com/atlas-desktop/risk-engine/pkg/types"
	"go.uber.org/zap"
)

// DefaultKellyFraction halves full Kelly to dampen estimation-error
// amplification.
const DefaultKellyFraction = 0.5

// DefaultCorrelationThreshold marks a strategy pair redundant.
const DefaultCorrelationThreshold = 0.7

// DefaultMaxWeight caps any single strategy's share of capital.
const DefaultMaxWeight = 0.4

// Constraints bound the optimizer's output.
type Constraints struct {
	KellyFraction        float64            `json:"kelly_fraction,omitempty"`
	CorrelationThreshold float64            `json:"correlation_threshold,omitempty"`
	MaxWeight            float64            `json:"max_weight,omitempty"` // default cap per strategy
	MaxWeightPerStrategy map[string]float64 `json:"max_weight_per_strategy,omitempty"`
	MinStrategies        int                `json:"min_strategies,omitempty"`
	FullyInvested        bool               `json:"fully_invested,omitempty"`
	TotalCapital         float64            `json:"total_capital,omitempty"` // book size in dollars; enables dollar allocations
}

func (c *Constraints) cap(strategy string) float64 {
	if w, ok := c.MaxWeightPerStrategy[strategy]; ok {
		return w
	}
	if c.MaxWeight > 0 {
		return c.MaxWeight
	}
	return DefaultMaxWeight
}

// Optimizer computes capital allocations from strategy summaries.
type Optimizer struct {
	logger *zap.Logger
}

// NewOptimizer creates an allocation optimizer.
func NewOptimizer(logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{logger: logger}
}

// Optimize computes per-strategy weights. Summaries with non-positive mean
// or zero variance receive zero weight. Pairs whose correlation magnitude
// exceeds the threshold have the strategy with the worse risk ratio
// down-weighted in proportion to the excess correlation. Weights are clipped
// to per-strategy caps and renormalized so the total invested fraction is at
// most 1 (exactly 1 when FullyInvested is set).
func (o *Optimizer) Optimize(summaries []types.StrategySummary, corr *montecarlo.CorrelationMatrix, cons Constraints) (*types.AllocationWeights, error) {
	if len(summaries) == 0 {
		return nil, &types.InsufficientDataError{Have: 0, Need: 1}
	}
	if cons.KellyFraction == 0 {
		cons.KellyFraction = DefaultKellyFraction
	}
	if cons.KellyFraction < 0 || cons.KellyFraction > 1 {
		return nil, &types.InvalidConfigurationError{
			Field: "kelly_fraction", Value: cons.KellyFraction, Reason: "must be in (0, 1]",
		}
	}
	if cons.CorrelationThreshold == 0 {
		cons.CorrelationThreshold = DefaultCorrelationThreshold
	}
	if cons.CorrelationThreshold < 0 || cons.CorrelationThreshold >= 1 {
		return nil, &types.InvalidConfigurationError{
			Field: "correlation_threshold", Value: cons.CorrelationThreshold, Reason: "must be in [0, 1)",
		}
	}
	if cons.TotalCapital < 0 {
		return nil, &types.InvalidConfigurationError{
			Field: "total_capital", Value: cons.TotalCapital, Reason: "must be >= 0",
		}
	}
	if cons.MinStrategies > len(summaries) {
		return nil, &types.InfeasibleConstraintsError{
			Field:  "min_strategies",
			Reason: fmt.Sprintf("requires %d strategies, only %d supplied", cons.MinStrategies, len(summaries)),
		}
	}

	out := &types.AllocationWeights{Weights: make(map[string]float64, len(summaries))}

	raw := make(map[string]float64, len(summaries))
	for _, s := range summaries {
		switch {
		case s.Variance <= 0:
			raw[s.Strategy] = 0
			out.Adjustments = append(out.Adjustments,
				fmt.Sprintf("%s: zero variance, excluded from sizing", s.Strategy))
		case s.Mean <= 0:
			raw[s.Strategy] = 0
			out.Adjustments = append(out.Adjustments,
				fmt.Sprintf("%s: non-positive mean return, excluded from sizing", s.Strategy))
		default:
			raw[s.Strategy] = cons.KellyFraction * s.Mean / s.Variance
		}
	}

	// Redundancy pass: for each over-correlated pair, scale down the
	// strategy with the worse mean/drawdown ratio. The scale approaches
	// zero as the pair approaches perfect correlation.
	if corr != nil {
		for i := 0; i < len(summaries); i++ {
			for j := i + 1; j < len(summaries); j++ {
				a, b := summaries[i], summaries[j]
				rho := math.Abs(corr.At(a.Strategy, b.Strategy))
				if rho <= cons.CorrelationThreshold {
					continue
				}
				worse := a
				if b.RiskRatio() < a.RiskRatio() {
					worse = b
				}
				scale := 1 - (rho-cons.CorrelationThreshold)/(1-cons.CorrelationThreshold)
				raw[worse.Strategy] *= scale
				out.Adjustments = append(out.Adjustments,
					fmt.Sprintf("%s: down-weighted to %.0f%% for correlation %.2f with %s",
						worse.Strategy, scale*100, rho, other(a, b, worse).Strategy))
			}
		}
	}

	for _, s := range summaries {
		w := raw[s.Strategy]
		if capW := cons.cap(s.Strategy); w > capW {
			w = capW
			out.Adjustments = append(out.Adjustments,
				fmt.Sprintf("%s: clipped to per-strategy cap %.2f", s.Strategy, capW))
		}
		out.Weights[s.Strategy] = w
	}

	total := out.Sum()
	if total > 1 {
		for k := range out.Weights {
			out.Weights[k] /= total
		}
		total = 1
	}
	if cons.FullyInvested && total < 1 {
		var err error
		total, err = o.scaleToFull(out, cons)
		if err != nil {
			return nil, err
		}
	}
	out.CashResidual = 1 - total

	invested := 0
	for _, w := range out.Weights {
		if w > 0 {
			invested++
		}
	}
	if invested < cons.MinStrategies {
		return nil, &types.InfeasibleConstraintsError{
			Field: "min_strategies",
			Reason: fmt.Sprintf("only %d strategies receive capital after clipping, need %d",
				invested, cons.MinStrategies),
		}
	}

	if cons.TotalCapital > 0 {
		out.CapitalAllocations = make(map[string]float64, len(out.Weights))
		for k, w := range out.Weights {
			out.CapitalAllocations[k] = w * cons.TotalCapital
		}
	}

	o.logger.Info("allocation computed",
		zap.Int("strategies", len(summaries)),
		zap.Int("invested", invested),
		zap.Float64("cash_residual", out.CashResidual),
		zap.Int("adjustments", len(out.Adjustments)),
	)
	return out, nil
}

// scaleToFull raises weights proportionally until the book is fully
// invested, freezing strategies as they hit their caps.
func (o *Optimizer) scaleToFull(out *types.AllocationWeights, cons Constraints) (float64, error) {
	names := make([]string, 0, len(out.Weights))
	for k := range out.Weights {
		names = append(names, k)
	}
	sort.Strings(names)

	capped := make(map[string]bool, len(names))
	for iter := 0; iter < len(names); iter++ {
		total := out.Sum()
		if total >= 1-1e-12 {
			return 1, nil
		}
		free := 0.0
		for _, k := range names {
			if !capped[k] && out.Weights[k] > 0 {
				free += out.Weights[k]
			}
		}
		if free == 0 {
			break
		}
		scale := (1 - (total - free)) / free
		for _, k := range names {
			if capped[k] || out.Weights[k] == 0 {
				continue
			}
			w := out.Weights[k] * scale
			if capW := cons.cap(k); w >= capW {
				w = capW
				capped[k] = true
			}
			out.Weights[k] = w
		}
	}
	total := out.Sum()
	if total < 1-1e-9 {
		return 0, &types.InfeasibleConstraintsError{
			Field:  "fully_invested",
			Reason: fmt.Sprintf("caps limit total investment to %.4f", total),
		}
	}
	return 1, nil
}

func other(a, b, worse types.StrategySummary) types.StrategySummary {
	if worse.Strategy == a.Strategy {
		return b
	}
	return a
}
