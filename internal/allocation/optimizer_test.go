package allocation_test

import (
	"errors"
	"testing"

	"github.com/atlas-desktop/risk-engine/internal/allocation"
	"github.com/atlas-desktop/risk-engine/internal/montecarlo"
	"github.com/atlas-desktop/risk-engine/pkg/types"
	"go.uber.org/zap"
)

func matrix(names []string, values [][]float64) *montecarlo.CorrelationMatrix {
	return &montecarlo.CorrelationMatrix{Strategies: names, Values: values}
}

func TestKellyWeightsProportionalToEdge(t *testing.T) {
	opt := allocation.NewOptimizer(zap.NewNop())
	summaries := []types.StrategySummary{
		{Strategy: "a", Mean: 0.002, Variance: 0.01, MaxDrawdown: 0.1},
		{Strategy: "b", Mean: 0.004, Variance: 0.01, MaxDrawdown: 0.1},
	}

	w, err := opt.Optimize(summaries, nil, allocation.Constraints{})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	// Half Kelly: 0.5 * mean/variance.
	if got := w.Weights["a"]; got != 0.1 {
		t.Errorf("weight a = %v, want 0.1", got)
	}
	if got := w.Weights["b"]; got != 0.2 {
		t.Errorf("weight b = %v, want 0.2", got)
	}
	if diff := w.CashResidual - 0.7; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("cash residual = %v, want 0.7", w.CashResidual)
	}
}

func TestRedundantPairDownWeighted(t *testing.T) {
	opt := allocation.NewOptimizer(zap.NewNop())
	// Near-identical strategies at correlation 0.95: the slightly worse one
	// must receive materially less weight, not a near-equal split.
	summaries := []types.StrategySummary{
		{Strategy: "meic_0930", Mean: 0.0040, Variance: 0.02, MaxDrawdown: 0.10},
		{Strategy: "meic_0945", Mean: 0.0039, Variance: 0.02, MaxDrawdown: 0.10},
	}
	corr := matrix([]string{"meic_0930", "meic_0945"}, [][]float64{
		{1, 0.95},
		{0.95, 1},
	})

	w, err := opt.Optimize(summaries, corr, allocation.Constraints{})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	better := w.Weights["meic_0930"]
	worse := w.Weights["meic_0945"]
	if worse*2 >= better {
		t.Errorf("redundant pair weights %v / %v, want the worse one materially smaller", better, worse)
	}
	if len(w.Adjustments) == 0 {
		t.Error("down-weighting not recorded in adjustments")
	}
}

func TestWeightsRespectCapsAndSum(t *testing.T) {
	opt := allocation.NewOptimizer(zap.NewNop())
	// Large edges drive raw Kelly weights far above the caps.
	summaries := []types.StrategySummary{
		{Strategy: "a", Mean: 0.05, Variance: 0.01, MaxDrawdown: 0.1},
		{Strategy: "b", Mean: 0.06, Variance: 0.01, MaxDrawdown: 0.1},
		{Strategy: "c", Mean: 0.07, Variance: 0.01, MaxDrawdown: 0.1},
	}
	cons := allocation.Constraints{MaxWeight: 0.4}

	w, err := opt.Optimize(summaries, nil, cons)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	for name, weight := range w.Weights {
		if weight < 0 || weight > 0.4+1e-12 {
			t.Errorf("weight %s = %v outside [0, 0.4]", name, weight)
		}
	}
	if sum := w.Sum(); sum > 1+1e-12 {
		t.Errorf("weights sum to %v, want <= 1", sum)
	}
}

func TestNonPositiveEdgeExcluded(t *testing.T) {
	opt := allocation.NewOptimizer(zap.NewNop())
	summaries := []types.StrategySummary{
		{Strategy: "winner", Mean: 0.003, Variance: 0.01, MaxDrawdown: 0.1},
		{Strategy: "loser", Mean: -0.002, Variance: 0.01, MaxDrawdown: 0.2},
		{Strategy: "flat", Mean: 0.001, Variance: 0, MaxDrawdown: 0},
	}

	w, err := opt.Optimize(summaries, nil, allocation.Constraints{})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if w.Weights["loser"] != 0 {
		t.Errorf("losing strategy weight = %v, want 0", w.Weights["loser"])
	}
	if w.Weights["flat"] != 0 {
		t.Errorf("zero-variance strategy weight = %v, want 0", w.Weights["flat"])
	}
	if len(w.Adjustments) < 2 {
		t.Errorf("exclusions not recorded: %v", w.Adjustments)
	}
}

func TestFullyInvestedScalesToOne(t *testing.T) {
	opt := allocation.NewOptimizer(zap.NewNop())
	summaries := []types.StrategySummary{
		{Strategy: "a", Mean: 0.002, Variance: 0.01, MaxDrawdown: 0.1},
		{Strategy: "b", Mean: 0.002, Variance: 0.01, MaxDrawdown: 0.1},
		{Strategy: "c", Mean: 0.004, Variance: 0.01, MaxDrawdown: 0.1},
	}
	cons := allocation.Constraints{MaxWeight: 0.4, FullyInvested: true}

	w, err := opt.Optimize(summaries, nil, cons)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if sum := w.Sum(); sum < 1-1e-9 || sum > 1+1e-9 {
		t.Errorf("fully invested sum = %v, want 1", sum)
	}
	for name, weight := range w.Weights {
		if weight > 0.4+1e-9 {
			t.Errorf("weight %s = %v exceeds cap", name, weight)
		}
	}
	if w.CashResidual > 1e-9 {
		t.Errorf("cash residual = %v, want 0", w.CashResidual)
	}
}

func TestTotalCapitalProducesDollarAllocations(t *testing.T) {
	opt := allocation.NewOptimizer(zap.NewNop())
	summaries := []types.StrategySummary{
		{Strategy: "a", Mean: 0.002, Variance: 0.01, MaxDrawdown: 0.1},
		{Strategy: "b", Mean: 0.004, Variance: 0.01, MaxDrawdown: 0.1},
	}

	w, err := opt.Optimize(summaries, nil, allocation.Constraints{TotalCapital: 250000})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if got := w.CapitalAllocations["a"]; got != 25000 {
		t.Errorf("capital for a = %v, want 25000", got)
	}
	if got := w.CapitalAllocations["b"]; got != 50000 {
		t.Errorf("capital for b = %v, want 50000", got)
	}

	// Without a book size no dollar figures are produced.
	w, err = opt.Optimize(summaries, nil, allocation.Constraints{})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if w.CapitalAllocations != nil {
		t.Errorf("capital allocations = %v, want none", w.CapitalAllocations)
	}

	_, err = opt.Optimize(summaries, nil, allocation.Constraints{TotalCapital: -1})
	var invalid *types.InvalidConfigurationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidConfigurationError for negative capital, got %v", err)
	}
}

func TestFullyInvestedInfeasibleUnderTightCaps(t *testing.T) {
	opt := allocation.NewOptimizer(zap.NewNop())
	summaries := []types.StrategySummary{
		{Strategy: "a", Mean: 0.002, Variance: 0.01, MaxDrawdown: 0.1},
		{Strategy: "b", Mean: 0.002, Variance: 0.01, MaxDrawdown: 0.1},
	}
	cons := allocation.Constraints{MaxWeight: 0.3, FullyInvested: true}

	_, err := opt.Optimize(summaries, nil, cons)
	var infeasible *types.InfeasibleConstraintsError
	if !errors.As(err, &infeasible) {
		t.Fatalf("expected InfeasibleConstraintsError, got %v", err)
	}
	if infeasible.Field != "fully_invested" {
		t.Errorf("offending field = %q", infeasible.Field)
	}
}

func TestMinStrategiesInfeasible(t *testing.T) {
	opt := allocation.NewOptimizer(zap.NewNop())
	summaries := []types.StrategySummary{
		{Strategy: "winner", Mean: 0.003, Variance: 0.01, MaxDrawdown: 0.1},
		{Strategy: "loser", Mean: -0.002, Variance: 0.01, MaxDrawdown: 0.2},
	}

	_, err := opt.Optimize(summaries, nil, allocation.Constraints{MinStrategies: 2})
	var infeasible *types.InfeasibleConstraintsError
	if !errors.As(err, &infeasible) {
		t.Fatalf("expected InfeasibleConstraintsError, got %v", err)
	}
}

func TestOptimizeRejectsEmptyInput(t *testing.T) {
	opt := allocation.NewOptimizer(zap.NewNop())

	_, err := opt.Optimize(nil, nil, allocation.Constraints{})
	var insufficient *types.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
}
