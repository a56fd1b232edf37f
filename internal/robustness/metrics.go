package robustness

import (
	"sort"

	"github.com/atlas-desktop/risk-engine/pkg/types"
)

// Metric names accepted by the search configuration.
const (
	MetricReturnDrawdown = "return_drawdown"
	MetricTotalPnL       = "total_pnl"
	MetricWinRate        = "win_rate"
	MetricMeanPnL        = "mean_pnl"
)

// MetricFunc scores one ordered sequence of trade P&L values.
type MetricFunc func(pnls []float64) float64

func metricFor(name string) (MetricFunc, error) {
	switch name {
	case "", MetricReturnDrawdown:
		return returnDrawdown, nil
	case MetricTotalPnL:
		return totalPnL, nil
	case MetricWinRate:
		return winRate, nil
	case MetricMeanPnL:
		return meanPnL, nil
	default:
		return nil, &types.InvalidConfigurationError{
			Field: "metric", Value: name, Reason: "unknown metric",
		}
	}
}

// returnDrawdown is total P&L over the max drawdown of the cumulative P&L
// curve. A drawdown-free sequence scores its total P&L directly.
func returnDrawdown(pnls []float64) float64 {
	total := 0.0
	peak := 0.0
	equity := 0.0
	maxDD := 0.0
	for _, v := range pnls {
		total += v
		equity += v
		if equity > peak {
			peak = equity
		} else if dd := peak - equity; dd > maxDD {
			maxDD = dd
		}
	}
	if maxDD == 0 {
		return total
	}
	return total / maxDD
}

func totalPnL(pnls []float64) float64 {
	total := 0.0
	for _, v := range pnls {
		total += v
	}
	return total
}

func winRate(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}
	wins := 0
	for _, v := range pnls {
		if v > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(pnls))
}

func meanPnL(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}
	return totalPnL(pnls) / float64(len(pnls))
}

// medianIQR returns the median and interquartile range of sampled metric
// values.
func medianIQR(values []float64) (median, iqr float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return quantile(sorted, 0.5), quantile(sorted, 0.75) - quantile(sorted, 0.25)
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := q * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
