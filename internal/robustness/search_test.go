package robustness_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atlas-desktop/risk-engine/internal/robustness"
	"github.com/atlas-desktop/risk-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func mkTrades(pnls ...float64) []types.TradeRecord {
	out := make([]types.TradeRecord, len(pnls))
	for i, v := range pnls {
		entry := time.Date(2024, 1, 2, 9, 35, 0, 0, time.UTC).AddDate(0, 0, i)
		out[i] = types.TradeRecord{
			Strategy:   "meic",
			Underlying: "SPX",
			EntryTime:  entry,
			ExitTime:   entry.Add(6 * time.Hour),
			PnL:        decimal.NewFromFloat(v),
			Contracts:  1,
		}
	}
	return out
}

type stubEvaluator struct {
	byID map[float64][]types.TradeRecord
}

func (s stubEvaluator) Evaluate(_ context.Context, ps types.ParamSet) ([]types.TradeRecord, error) {
	return s.byID[ps["id"]], nil
}

func TestExpandGridCartesianProduct(t *testing.T) {
	sets, err := robustness.ExpandGrid([]types.Parameter{
		{Name: "entry_minute", Type: types.ParamTypeInteger, Min: 570, Max: 572},
		{Name: "stop_mult", Type: types.ParamTypeDiscrete, Discrete: []float64{1.5, 2.0}},
	})
	if err != nil {
		t.Fatalf("ExpandGrid failed: %v", err)
	}
	if len(sets) != 6 {
		t.Fatalf("grid size = %d, want 6", len(sets))
	}
	if sets[0]["entry_minute"] != 570 || sets[0]["stop_mult"] != 1.5 {
		t.Errorf("first candidate = %v", sets[0])
	}
	if sets[5]["entry_minute"] != 572 || sets[5]["stop_mult"] != 2.0 {
		t.Errorf("last candidate = %v", sets[5])
	}
}

func TestExpandGridRejectsMissingStep(t *testing.T) {
	_, err := robustness.ExpandGrid([]types.Parameter{
		{Name: "delta", Type: types.ParamTypeContinuous, Min: 0.1, Max: 0.3},
	})
	var invalid *types.InvalidConfigurationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidConfigurationError, got %v", err)
	}
}

func TestCandidateNameSortedKeys(t *testing.T) {
	name := robustness.CandidateName(types.ParamSet{"stop_mult": 1.5, "entry_minute": 570})
	if name != "entry_minute=570,stop_mult=1.5" {
		t.Errorf("candidate name = %q", name)
	}
}

func TestStableCandidateOutranksVolatileOne(t *testing.T) {
	// Both candidates have the same mean P&L per trade, but one realizes it
	// with zero spread. Any positive lambda must rank the stable one first.
	ev := stubEvaluator{byID: map[float64][]types.TradeRecord{
		0: mkTrades(10, 10, 10, 10, 10, 10, 10, 10),
		1: mkTrades(0, 20, 0, 20, 0, 20, 0, 20),
	}}
	grid := []types.Parameter{{Name: "id", Type: types.ParamTypeDiscrete, Discrete: []float64{0, 1}}}

	s := robustness.NewSearcher(zap.NewNop())
	res, err := s.Search(context.Background(), ev, grid, robustness.SearchConfig{
		Metric:    robustness.MetricMeanPnL,
		Lambda:    1.0,
		Resamples: 200,
		Seed:      17,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if res.Evaluated != 2 {
		t.Fatalf("evaluated = %d, want 2", res.Evaluated)
	}
	best := res.Best()
	if best.Params["id"] != 0 {
		t.Errorf("best candidate id = %v, want the zero-spread one", best.Params["id"])
	}
	if best.MetricIQR != 0 {
		t.Errorf("stable candidate IQR = %v, want 0", best.MetricIQR)
	}
	if res.Ranked[1].MetricIQR <= 0 {
		t.Errorf("volatile candidate IQR = %v, want > 0", res.Ranked[1].MetricIQR)
	}
}

func TestSearchDeterministic(t *testing.T) {
	ev := stubEvaluator{byID: map[float64][]types.TradeRecord{
		0: mkTrades(12, -8, 30, -15, 9, 22),
		1: mkTrades(5, 5, -3, 18, -9, 40),
	}}
	grid := []types.Parameter{{Name: "id", Type: types.ParamTypeDiscrete, Discrete: []float64{0, 1}}}
	cfg := robustness.SearchConfig{Seed: 33, Resamples: 50}

	s := robustness.NewSearcher(zap.NewNop())
	a, err := s.Search(context.Background(), ev, grid, cfg)
	if err != nil {
		t.Fatalf("first search failed: %v", err)
	}
	b, err := s.Search(context.Background(), ev, grid, cfg)
	if err != nil {
		t.Fatalf("second search failed: %v", err)
	}
	for i := range a.Ranked {
		if a.Ranked[i].Score != b.Ranked[i].Score || a.Ranked[i].Name != b.Ranked[i].Name {
			t.Errorf("rank %d differs: %+v vs %+v", i, a.Ranked[i], b.Ranked[i])
		}
	}
}

func TestSearchCancellationReturnsPartialRanking(t *testing.T) {
	ev := stubEvaluator{byID: map[float64][]types.TradeRecord{}}
	pool := mkTrades(10, -5, 8, -2)
	ids := make([]float64, 10)
	for i := range ids {
		ids[i] = float64(i)
		ev.byID[float64(i)] = pool
	}
	grid := []types.Parameter{{Name: "id", Type: types.ParamTypeDiscrete, Discrete: ids}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := robustness.NewSearcher(zap.NewNop())
	res, err := s.Search(ctx, ev, grid, robustness.SearchConfig{
		Seed:      1,
		Resamples: 20,
		Workers:   1,
		Progress: func(done, total int) {
			if done == 2 {
				cancel()
			}
		},
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !res.Interrupted {
		t.Error("cancelled search not flagged interrupted")
	}
	if res.Evaluated < 2 || res.Evaluated >= 10 {
		t.Errorf("evaluated = %d, want a partial count", res.Evaluated)
	}
	if len(res.Ranked) != res.Evaluated {
		t.Errorf("ranking holds %d entries for %d evaluations", len(res.Ranked), res.Evaluated)
	}
}

func TestSearchBudgetLimitsEvaluations(t *testing.T) {
	ev := stubEvaluator{byID: map[float64][]types.TradeRecord{}}
	ids := make([]float64, 8)
	for i := range ids {
		ids[i] = float64(i)
		ev.byID[float64(i)] = mkTrades(10, -5, 8)
	}
	grid := []types.Parameter{{Name: "id", Type: types.ParamTypeDiscrete, Discrete: ids}}

	s := robustness.NewSearcher(zap.NewNop())
	res, err := s.Search(context.Background(), ev, grid, robustness.SearchConfig{
		Seed: 1, Resamples: 10, MaxEvaluations: 3,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if res.Evaluated != 3 {
		t.Errorf("evaluated = %d, want 3", res.Evaluated)
	}
	if res.GridSize != 8 {
		t.Errorf("grid size = %d, want 8", res.GridSize)
	}
}

func TestSearchRejectsUnknownMetric(t *testing.T) {
	s := robustness.NewSearcher(zap.NewNop())
	_, err := s.Search(context.Background(), stubEvaluator{}, []types.Parameter{
		{Name: "id", Type: types.ParamTypeDiscrete, Discrete: []float64{0}},
	}, robustness.SearchConfig{Metric: "sharpe_cubed"})

	var invalid *types.InvalidConfigurationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidConfigurationError, got %v", err)
	}
	if invalid.Field != "metric" {
		t.Errorf("offending field = %q", invalid.Field)
	}
}

func TestEntryTimeEvaluatorFiltersByMinute(t *testing.T) {
	early := mkTrades(10, 20) // entries at 09:35
	late := make([]types.TradeRecord, 1)
	late[0] = early[0]
	late[0].EntryTime = time.Date(2024, 1, 5, 10, 5, 0, 0, time.UTC)
	pool := append(append([]types.TradeRecord{}, early...), late...)

	ev := robustness.NewEntryTimeEvaluator(pool, 5)

	got, err := ev.Evaluate(context.Background(), types.ParamSet{"entry_minute": 575})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("filtered %d trades, want the 2 at 09:35", len(got))
	}

	got, err = ev.Evaluate(context.Background(), types.ParamSet{"entry_minute": 605, "entry_window": 2})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("filtered %d trades, want the 1 at 10:05", len(got))
	}
}
