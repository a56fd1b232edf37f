package robustness

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/atlas-desktop/risk-engine/internal/montecarlo"
	"github.com/atlas-desktop/risk-engine/internal/workers"
	"github.com/atlas-desktop/risk-engine/pkg/types"
	"go.uber.org/zap"
)

// DefaultResamples is the bootstrap count per candidate.
const DefaultResamples = 100

// DefaultLambda is the spread penalty in score = median - lambda*IQR.
const DefaultLambda = 1.0

// Evaluator produces trade outcomes for one parameter set. Implementations
// are external collaborators (a backtest runner, a cached result store);
// the search only requires determinism for a given parameter set.
type Evaluator interface {
	Evaluate(ctx context.Context, params types.ParamSet) ([]types.TradeRecord, error)
}

// ProgressFunc receives incremental completion updates during a search.
type ProgressFunc func(done, total int)

// SearchConfig controls scoring and the evaluation budget.
type SearchConfig struct {
	Metric         string       `json:"metric,omitempty"` // default return_drawdown
	Lambda         float64      `json:"lambda,omitempty"`
	Resamples      int          `json:"resamples,omitempty"`
	Seed           int64        `json:"seed"`
	Workers        int          `json:"workers,omitempty"`
	MaxEvaluations int          `json:"max_evaluations,omitempty"` // 0 means the full grid
	Progress       ProgressFunc `json:"-"`
}

// SearchResult is the ranked outcome of a grid search. When the context is
// cancelled between candidate evaluations, Ranked holds the consistent
// partial ranking of everything evaluated so far and Interrupted is set.
type SearchResult struct {
	Ranked      []types.ParameterCandidate `json:"ranked"`
	Evaluated   int                        `json:"evaluated"`
	GridSize    int                        `json:"grid_size"`
	Interrupted bool                       `json:"interrupted"`
}

// Best returns the top-ranked candidate, or nil for an empty result.
func (r *SearchResult) Best() *types.ParameterCandidate {
	if len(r.Ranked) == 0 {
		return nil
	}
	return &r.Ranked[0]
}

// Searcher runs robustness-adjusted parameter searches.
type Searcher struct {
	logger   *zap.Logger
	registry *montecarlo.StreamRegistry
}

// NewSearcher creates a searcher using the process-wide stream registry.
func NewSearcher(logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{logger: logger, registry: montecarlo.DefaultRegistry}
}

// Search evaluates every candidate in the grid: the raw metric on the full
// trade sequence, then the same metric on bootstrap resamples of the trades,
// scored as median minus lambda times interquartile range. Candidates
// partition across workers; cancellation is honored between candidate
// evaluations, never mid-candidate.
func (s *Searcher) Search(ctx context.Context, ev Evaluator, grid []types.Parameter, cfg SearchConfig) (*SearchResult, error) {
	metric, err := metricFor(cfg.Metric)
	if err != nil {
		return nil, err
	}
	if cfg.Lambda == 0 {
		cfg.Lambda = DefaultLambda
	}
	if cfg.Lambda < 0 {
		return nil, &types.InvalidConfigurationError{
			Field: "lambda", Value: cfg.Lambda, Reason: "must be >= 0",
		}
	}
	if cfg.Resamples == 0 {
		cfg.Resamples = DefaultResamples
	}
	if cfg.Resamples < 1 {
		return nil, &types.InvalidConfigurationError{
			Field: "resamples", Value: cfg.Resamples, Reason: "must be >= 1",
		}
	}

	sets, err := ExpandGrid(grid)
	if err != nil {
		return nil, err
	}
	gridSize := len(sets)
	if cfg.MaxEvaluations > 0 && cfg.MaxEvaluations < len(sets) {
		sets = sets[:cfg.MaxEvaluations]
	}

	s.logger.Info("starting parameter search",
		zap.Int("grid_size", gridSize),
		zap.Int("budget", len(sets)),
		zap.Int("resamples", cfg.Resamples),
		zap.String("metric", cfg.Metric),
		zap.Int64("seed", cfg.Seed),
	)

	candidates := make([]types.ParameterCandidate, len(sets))
	evaluated := make([]bool, len(sets))
	var done atomic.Int64
	var progressMu sync.Mutex

	src := s.registry.Source(cfg.Seed)
	runErr := workers.ForEach(ctx, len(sets), cfg.Workers, func(i int) {
		cand, err := s.evaluateCandidate(ctx, ev, sets[i], i, metric, cfg, src)
		if err != nil {
			s.logger.Warn("candidate evaluation failed",
				zap.String("candidate", CandidateName(sets[i])),
				zap.Error(err),
			)
		} else {
			candidates[i] = *cand
			evaluated[i] = true
		}
		n := int(done.Add(1))
		if cfg.Progress != nil {
			progressMu.Lock()
			cfg.Progress(n, len(sets))
			progressMu.Unlock()
		}
	})

	var ranked []types.ParameterCandidate
	for i := range candidates {
		if evaluated[i] {
			ranked = append(ranked, candidates[i])
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Better(ranked[j]) })

	result := &SearchResult{
		Ranked:      ranked,
		Evaluated:   len(ranked),
		GridSize:    gridSize,
		Interrupted: runErr != nil,
	}
	s.logger.Info("parameter search finished",
		zap.Int("evaluated", result.Evaluated),
		zap.Bool("interrupted", result.Interrupted),
	)
	return result, nil
}

// evaluateCandidate scores one parameter set. Bootstrap streams derive from
// (seed, candidate index, resample index), so results do not depend on how
// candidates were partitioned across workers.
func (s *Searcher) evaluateCandidate(ctx context.Context, ev Evaluator, ps types.ParamSet, index int, metric MetricFunc, cfg SearchConfig, src *montecarlo.StreamSource) (*types.ParameterCandidate, error) {
	trades, err := ev.Evaluate(ctx, ps)
	if err != nil {
		return nil, err
	}

	if len(trades) == 0 {
		return nil, &types.InsufficientDataError{Have: 0, Need: 1}
	}

	pnls := make([]float64, len(trades))
	for i, tr := range trades {
		pnls[i] = tr.PnL.InexactFloat64()
	}
	raw := metric(pnls)

	samples := make([]float64, cfg.Resamples)
	resampled := make([]float64, len(pnls))
	for r := 0; r < cfg.Resamples; r++ {
		rng := src.Stream(index*cfg.Resamples + r)
		for j := range resampled {
			resampled[j] = pnls[rng.Intn(len(pnls))]
		}
		samples[r] = metric(resampled)
	}

	median, iqr := medianIQR(samples)
	return &types.ParameterCandidate{
		Name:         CandidateName(ps),
		Params:       ps,
		RawMetric:    raw,
		MetricMedian: median,
		MetricIQR:    iqr,
		Score:        median - cfg.Lambda*iqr,
		Resamples:    cfg.Resamples,
		Trades:       len(trades),
	}, nil
}
