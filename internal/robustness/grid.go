// Package robustness searches strategy parameter grids for candidates whose
// performance survives bootstrap resampling. A candidate with a high but
// fragile metric ranks below a lower, stable one.
package robustness

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/atlas-desktop/risk-engine/pkg/types"
)

// ExpandGrid produces the full Cartesian product of the parameter axes, in
// deterministic order. Continuous axes require a positive Step; integer axes
// default to a step of 1; discrete axes enumerate their listed values.
func ExpandGrid(params []types.Parameter) ([]types.ParamSet, error) {
	if len(params) == 0 {
		return nil, &types.InvalidConfigurationError{Field: "grid", Reason: "no parameters"}
	}

	axes := make([][]float64, len(params))
	for i, p := range params {
		vals, err := axisValues(p)
		if err != nil {
			return nil, err
		}
		axes[i] = vals
	}

	total := 1
	for _, vals := range axes {
		total *= len(vals)
	}

	out := make([]types.ParamSet, 0, total)
	idx := make([]int, len(axes))
	for {
		ps := make(types.ParamSet, len(params))
		for i, p := range params {
			ps[p.Name] = axes[i][idx[i]]
		}
		out = append(out, ps)

		carry := len(axes) - 1
		for carry >= 0 {
			idx[carry]++
			if idx[carry] < len(axes[carry]) {
				break
			}
			idx[carry] = 0
			carry--
		}
		if carry < 0 {
			return out, nil
		}
	}
}

func axisValues(p types.Parameter) ([]float64, error) {
	if p.Type == types.ParamTypeDiscrete {
		if len(p.Discrete) == 0 {
			return nil, &types.InvalidConfigurationError{
				Field: p.Name, Reason: "discrete parameter lists no values",
			}
		}
		return p.Discrete, nil
	}
	if p.Max < p.Min {
		return nil, &types.InvalidConfigurationError{
			Field: p.Name, Value: p.Max, Reason: "max below min",
		}
	}
	step := p.Step
	if step == 0 && p.Type == types.ParamTypeInteger {
		step = 1
	}
	if step <= 0 {
		return nil, &types.InvalidConfigurationError{
			Field: p.Name, Value: p.Step, Reason: "step must be > 0",
		}
	}
	var vals []float64
	for v := p.Min; v <= p.Max+1e-9; v += step {
		if p.Type == types.ParamTypeInteger {
			vals = append(vals, math.Round(v))
		} else {
			vals = append(vals, v)
		}
	}
	return vals, nil
}

// CandidateName renders a stable human-readable identifier for a parameter
// set, with keys in sorted order.
func CandidateName(ps types.ParamSet) string {
	keys := make([]string, 0, len(ps))
	for k := range ps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, ps[k])
	}
	return strings.Join(parts, ",")
}
