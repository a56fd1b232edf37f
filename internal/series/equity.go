package series

import (
	"sort"
	"time"

	"github.com/atlas-desktop/risk-engine/pkg/types"
)

// EquityCurve derives the historical cumulative capital curve for a series.
// The first point is the initial capital; fixed policy adds dollar P&L,
// compounding applies fractional returns multiplicatively.
func EquityCurve(s *types.ReturnSeries, initialCapital float64) types.EquityPath {
	curve := make(types.EquityPath, s.Len()+1)
	curve[0] = initialCapital

	if s.Policy == types.PolicyCompounding {
		rets := Returns(s)
		for i, r := range rets {
			curve[i+1] = curve[i] * (1 + r)
		}
		return curve
	}
	for i, p := range s.Points {
		curve[i+1] = curve[i] + p.PnL
	}
	return curve
}

// MaxDrawdown returns the deepest peak-to-trough decline of a curve in
// dollars and as a fraction of the peak.
func MaxDrawdown(curve types.EquityPath) (usd, pct float64) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0]
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		dd := peak - v
		if dd > usd {
			usd = dd
		}
		if peak > 0 {
			if p := dd / peak; p > pct {
				pct = p
			}
		}
	}
	return usd, pct
}

// Drawdown describes one peak-to-trough-to-recovery segment of an equity
// curve.
type Drawdown struct {
	Start     time.Time `json:"start"`
	Bottom    time.Time `json:"bottom"`
	Recovery  time.Time `json:"recovery"`
	Recovered bool      `json:"recovered"`
	DepthUSD  float64   `json:"depth_usd"`
	DepthPct  float64   `json:"depth_pct"` // relative to the segment peak
}

// TopDrawdowns segments the historical curve into drawdown periods and
// returns the n deepest, ordered by dollar depth. The curve must align with
// the series (curve[0] is the initial point before the first period).
func TopDrawdowns(s *types.ReturnSeries, curve types.EquityPath, n int) []Drawdown {
	if len(curve) < 2 || len(curve) != s.Len()+1 {
		return nil
	}

	dateAt := func(i int) time.Time {
		// Index 0 predates the series; pin it to the first period date.
		if i <= 0 {
			return s.Points[0].Date
		}
		return s.Points[i-1].Date
	}

	var out []Drawdown
	peak := curve[0]
	peakIdx := 0
	inDD := false
	var current Drawdown
	var bottomVal float64
	var bottomIdx int

	for i := 1; i < len(curve); i++ {
		v := curve[i]
		if v >= peak {
			if inDD {
				current.Bottom = dateAt(bottomIdx)
				current.Recovery = dateAt(i)
				current.Recovered = true
				current.DepthUSD = peak - bottomVal
				if peak > 0 {
					current.DepthPct = (peak - bottomVal) / peak
				}
				out = append(out, current)
				inDD = false
			}
			peak = v
			peakIdx = i
			continue
		}
		if !inDD {
			inDD = true
			current = Drawdown{Start: dateAt(peakIdx)}
			bottomVal = v
			bottomIdx = i
		} else if v < bottomVal {
			bottomVal = v
			bottomIdx = i
		}
	}
	if inDD {
		current.Bottom = dateAt(bottomIdx)
		current.Recovered = false
		current.DepthUSD = peak - bottomVal
		if peak > 0 {
			current.DepthPct = (peak - bottomVal) / peak
		}
		out = append(out, current)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DepthUSD > out[j].DepthUSD })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
