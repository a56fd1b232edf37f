package montecarlo

import (
	"math"
	"sort"
	"time"

	"github.com/atlas-desktop/risk-engine/pkg/types"
)

// CorrelationMatrix holds pairwise Pearson correlations of daily P&L between
// strategies, in the order listed by Strategies.
type CorrelationMatrix struct {
	Strategies []string    `json:"strategies"`
	Values     [][]float64 `json:"values"`
}

// At returns the correlation between two strategies by name, or 0 when
// either is unknown.
func (m *CorrelationMatrix) At(a, b string) float64 {
	ai, bi := -1, -1
	for i, s := range m.Strategies {
		if s == a {
			ai = i
		}
		if s == b {
			bi = i
		}
	}
	if ai < 0 || bi < 0 {
		return 0
	}
	return m.Values[ai][bi]
}

// unionIndex merges the period dates of all series into one sorted axis.
func unionIndex(list []*types.ReturnSeries) []time.Time {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, s := range list {
		for _, p := range s.Points {
			if !seen[p.Date] {
				seen[p.Date] = true
				dates = append(dates, p.Date)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// alignToIndex projects each series onto the union axis, filling dates a
// strategy did not trade with zero P&L. Rows follow the order of list.
func alignToIndex(list []*types.ReturnSeries, index []time.Time) [][]float64 {
	pos := make(map[time.Time]int, len(index))
	for i, d := range index {
		pos[d] = i
	}
	rows := make([][]float64, len(list))
	for k, s := range list {
		row := make([]float64, len(index))
		for _, p := range s.Points {
			row[pos[p.Date]] = p.PnL
		}
		rows[k] = row
	}
	return rows
}

// Correlations estimates the pairwise Pearson correlation of union-aligned
// daily P&L. A zero-variance row correlates 0 with everything and 1 with
// itself.
func Correlations(list []*types.ReturnSeries) *CorrelationMatrix {
	index := unionIndex(list)
	rows := alignToIndex(list, index)

	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Strategy
	}

	m := &CorrelationMatrix{Strategies: names, Values: make([][]float64, len(list))}
	for i := range list {
		m.Values[i] = make([]float64, len(list))
		m.Values[i][i] = 1
	}
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			r := pearson(rows[i], rows[j])
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}
	return m
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}
