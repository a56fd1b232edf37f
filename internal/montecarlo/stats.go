package montecarlo

import (
	"math"
	"sort"

	"github.com/atlas-desktop/risk-engine/pkg/types"
)

// DefaultPercentiles are the bands reported when the caller does not ask for
// specific ones.
var DefaultPercentiles = []float64{5, 25, 50, 75, 95}

// computeDistribution summarizes sampled values. Percentiles are given in
// percent (5 means the 5th percentile).
func computeDistribution(values []float64, percentiles []float64) *types.Distribution {
	if len(values) == 0 {
		return &types.Distribution{Percentiles: map[float64]float64{}}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := float64(len(values))
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= n

	dist := &types.Distribution{
		Mean:        mean,
		Median:      percentileOf(sorted, 50),
		StdDev:      math.Sqrt(variance),
		Min:         sorted[0],
		Max:         sorted[len(sorted)-1],
		Percentiles: make(map[float64]float64, len(percentiles)),
	}
	for _, p := range percentiles {
		dist.Percentiles[p] = percentileOf(sorted, p)
	}
	return dist
}

// percentileOf reads the p-th percentile from an already-sorted slice using
// linear interpolation between ranks.
func percentileOf(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// variance computes the population variance of raw values.
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	out := 0.0
	for _, v := range values {
		d := v - mean
		out += d * d
	}
	return out / float64(len(values))
}
