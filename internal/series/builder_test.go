package series_test

import (
	"errors"
	"testing"
	"time"

	"github.com/atlas-desktop/risk-engine/internal/series"
	"github.com/atlas-desktop/risk-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func trade(strategy string, day int, pnl float64) types.TradeRecord {
	exit := time.Date(2024, 1, day, 16, 0, 0, 0, time.UTC)
	return types.TradeRecord{
		Strategy:   strategy,
		Underlying: "SPX",
		EntryTime:  exit.Add(-6 * time.Hour),
		ExitTime:   exit,
		PnL:        decimal.NewFromFloat(pnl),
		MarginUsed: decimal.NewFromInt(5000),
		Contracts:  1,
	}
}

func TestBuildDailyAggregation(t *testing.T) {
	b := series.NewBuilder(zap.NewNop())

	trades := []types.TradeRecord{
		trade("meic", 2, 100),
		trade("meic", 2, -40), // same day, must collapse
		trade("meic", 3, 75),
		trade("meic", 5, -20),
	}

	s, err := b.Build(trades, series.Config{Policy: types.PolicyFixed, CapitalBase: 1000})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if s.Len() != 3 {
		t.Fatalf("expected 3 periods, got %d", s.Len())
	}
	if s.Points[0].PnL != 60 {
		t.Errorf("day 1 P&L = %v, want 60", s.Points[0].PnL)
	}
	for i := 1; i < s.Len(); i++ {
		if !s.Points[i-1].Date.Before(s.Points[i].Date) {
			t.Errorf("points not chronologically ordered at %d", i)
		}
	}
}

func TestBuildInsufficientData(t *testing.T) {
	b := series.NewBuilder(zap.NewNop())

	_, err := b.Build([]types.TradeRecord{trade("solo", 2, 10)}, series.Config{
		Policy: types.PolicyFixed, CapitalBase: 1000,
	})

	var insufficient *types.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if insufficient.Have != 1 || insufficient.Need != series.DefaultMinTrades {
		t.Errorf("error detail = have %d need %d", insufficient.Have, insufficient.Need)
	}
}

func TestBuildRejectsZeroCapitalBase(t *testing.T) {
	b := series.NewBuilder(zap.NewNop())

	_, err := b.Build([]types.TradeRecord{trade("x", 2, 10), trade("x", 3, 10)}, series.Config{
		Policy: types.PolicyFixed, CapitalBase: 0,
	})

	var invalid *types.InvalidConfigurationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidConfigurationError, got %v", err)
	}
	if invalid.Field != "capital_base" {
		t.Errorf("offending field = %q, want capital_base", invalid.Field)
	}
}

func TestBuildAllGroupsByStrategy(t *testing.T) {
	b := series.NewBuilder(zap.NewNop())

	trades := []types.TradeRecord{
		trade("alpha", 2, 100),
		trade("beta", 2, -50),
		trade("alpha", 3, 100),
		trade("beta", 3, -50),
		trade("gamma", 4, 10), // single trade, skipped
	}

	list, err := b.BuildAll(trades, series.Config{Policy: types.PolicyFixed, CapitalBase: 1000})
	if err != nil {
		t.Fatalf("BuildAll failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 series (gamma skipped), got %d", len(list))
	}
	if list[0].Strategy != "alpha" || list[1].Strategy != "beta" {
		t.Errorf("unexpected strategy order: %s, %s", list[0].Strategy, list[1].Strategy)
	}
}

func TestReturnsFixedVsCompounding(t *testing.T) {
	points := []types.ReturnPoint{
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), PnL: 100},
		{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), PnL: 110},
	}

	fixed := &types.ReturnSeries{Points: points, CapitalBase: 1000, Policy: types.PolicyFixed}
	rf := series.Returns(fixed)
	if rf[0] != 0.1 || rf[1] != 0.11 {
		t.Errorf("fixed returns = %v, want [0.1 0.11]", rf)
	}

	comp := &types.ReturnSeries{Points: points, CapitalBase: 1000, Policy: types.PolicyCompounding}
	rc := series.Returns(comp)
	if rc[0] != 0.1 {
		t.Errorf("compounding first return = %v, want 0.1", rc[0])
	}
	// Second period base is 1000+100.
	if rc[1] != 0.1 {
		t.Errorf("compounding second return = %v, want 0.1", rc[1])
	}
}

func TestEquityCurveAndMaxDrawdown(t *testing.T) {
	s := &types.ReturnSeries{
		Points: []types.ReturnPoint{
			{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), PnL: 200},
			{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), PnL: -300},
			{Date: time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), PnL: 400},
		},
		CapitalBase: 1000,
		Policy:      types.PolicyFixed,
	}

	curve := series.EquityCurve(s, 1000)
	want := []float64{1000, 1200, 900, 1300}
	for i, v := range want {
		if curve[i] != v {
			t.Errorf("curve[%d] = %v, want %v", i, curve[i], v)
		}
	}

	usd, pct := series.MaxDrawdown(curve)
	if usd != 300 {
		t.Errorf("max drawdown USD = %v, want 300", usd)
	}
	if pct != 300.0/1200.0 {
		t.Errorf("max drawdown pct = %v, want %v", pct, 300.0/1200.0)
	}
}

func TestTopDrawdowns(t *testing.T) {
	s := &types.ReturnSeries{
		Points: []types.ReturnPoint{
			{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), PnL: -100},
			{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), PnL: 150},
			{Date: time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), PnL: -250},
			{Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), PnL: 50},
		},
		CapitalBase: 1000,
		Policy:      types.PolicyFixed,
	}
	curve := series.EquityCurve(s, 1000)

	dds := series.TopDrawdowns(s, curve, 10)
	if len(dds) != 2 {
		t.Fatalf("expected 2 drawdown segments, got %d", len(dds))
	}
	// Deepest first: the 250 drop that never recovers.
	if dds[0].DepthUSD != 250 {
		t.Errorf("deepest drawdown = %v, want 250", dds[0].DepthUSD)
	}
	if dds[0].Recovered {
		t.Error("open drawdown reported as recovered")
	}
	if !dds[1].Recovered {
		t.Error("first drawdown should be recovered")
	}
}

func TestSummarize(t *testing.T) {
	s := &types.ReturnSeries{
		Strategy: "meic",
		Points: []types.ReturnPoint{
			{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), PnL: 100},
			{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), PnL: -50},
			{Date: time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), PnL: 100},
		},
		CapitalBase: 1000,
		Policy:      types.PolicyFixed,
	}

	sum := series.Summarize(s, 1000)
	if sum.Strategy != "meic" {
		t.Errorf("strategy = %q", sum.Strategy)
	}
	wantMean := (0.1 - 0.05 + 0.1) / 3
	if diff := sum.Mean - wantMean; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("mean = %v, want %v", sum.Mean, wantMean)
	}
	if sum.Variance <= 0 {
		t.Errorf("variance = %v, want > 0", sum.Variance)
	}
	if sum.MaxDrawdown != 50.0/1100.0 {
		t.Errorf("max drawdown = %v, want %v", sum.MaxDrawdown, 50.0/1100.0)
	}
}
