package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/atlas-desktop/risk-engine/internal/allocation"
	"github.com/atlas-desktop/risk-engine/internal/montecarlo"
	"github.com/atlas-desktop/risk-engine/internal/reconcile"
	"github.com/atlas-desktop/risk-engine/internal/robustness"
	"github.com/atlas-desktop/risk-engine/internal/series"
	"github.com/atlas-desktop/risk-engine/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// handleBuildSeries aggregates raw trades into per-strategy return series.
func (s *Server) handleBuildSeries(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Trades      []types.TradeRecord `json:"trades"`
		Policy      types.CapitalPolicy `json:"policy"`
		CapitalBase float64             `json:"capital_base"`
		MinTrades   int                 `json:"min_trades"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	list, err := s.builder.BuildAll(req.Trades, series.Config{
		Policy:      req.Policy,
		CapitalBase: req.CapitalBase,
		MinTrades:   req.MinTrades,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respond(w, http.StatusOK, map[string]interface{}{
		"series": list,
		"count":  len(list),
	})
}

// applyDefaults fills request fields the caller omitted and enforces the
// process-level draw ceiling.
func (s *Server) applyDefaults(cfg *montecarlo.Config, seed *int64) error {
	if cfg.Draws == 0 {
		cfg.Draws = s.engineCfg.DefaultDraws
	}
	if cfg.Draws > s.engineCfg.MaxDraws {
		return &types.InvalidConfigurationError{
			Field: "draws", Value: cfg.Draws,
			Reason: "exceeds the configured maximum",
		}
	}
	if seed != nil {
		cfg.Seed = *seed
	} else {
		cfg.Seed = s.engineCfg.DefaultSeed
	}
	if cfg.RuinFloor == 0 {
		cfg.RuinFloor = s.engineCfg.DefaultRuinFloor
	}
	if cfg.Workers == 0 {
		cfg.Workers = s.engineCfg.SimulationWorkers
	}
	if cfg.KeepPaths > s.engineCfg.MaxKeptPaths {
		cfg.KeepPaths = s.engineCfg.MaxKeptPaths
	}
	return nil
}

// handleSimulate runs one single-strategy Monte Carlo simulation.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Series types.ReturnSeries `json:"series"`
		// Seed shadows the embedded field during decoding so an explicit
		// "seed": 0 is distinguishable from an omitted one. The decoder
		// prefers the shallower of two fields with the same key.
		Config struct {
			montecarlo.Config
			Seed *int64 `json:"seed"`
		} `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	cfg := req.Config.Config
	if err := s.applyDefaults(&cfg, req.Config.Seed); err != nil {
		s.respondError(w, err)
		return
	}

	started := time.Now()
	result, err := s.simulator.Simulate(&req.Series, cfg)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SimulationsTotal.WithLabelValues(string(result.Mode)).Inc()
		s.metrics.SimulationDuration.Observe(time.Since(started).Seconds())
		s.metrics.SimulationDraws.Observe(float64(result.Draws))
	}

	s.respond(w, http.StatusOK, result)
}

// handleSimulateJoint runs a correlation-preserving multi-strategy
// simulation.
func (s *Server) handleSimulateJoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Series []*types.ReturnSeries `json:"series"`
		Config struct {
			montecarlo.JointConfig
			Seed *int64 `json:"seed"`
		} `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	cfg := req.Config.JointConfig
	if err := s.applyDefaults(&cfg.Config, req.Config.Seed); err != nil {
		s.respondError(w, err)
		return
	}

	started := time.Now()
	result, err := s.simulator.SimulateJoint(req.Series, cfg)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SimulationsTotal.WithLabelValues(string(result.Portfolio.Mode)).Inc()
		s.metrics.SimulationDuration.Observe(time.Since(started).Seconds())
		s.metrics.SimulationDraws.Observe(float64(result.Portfolio.Draws))
	}

	s.respond(w, http.StatusOK, result)
}

// handleOptimizeAllocation computes fractional-Kelly capital weights.
func (s *Server) handleOptimizeAllocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Summaries   []types.StrategySummary       `json:"summaries"`
		Correlation *montecarlo.CorrelationMatrix `json:"correlation,omitempty"`
		Constraints allocation.Constraints        `json:"constraints"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	weights, err := s.optimizer.Optimize(req.Summaries, req.Correlation, req.Constraints)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.AllocationsTotal.Inc()
	}

	s.respond(w, http.StatusOK, weights)
}

// handleReconcile pairs live trades against backtest predictions.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Live     []types.TradeRecord `json:"live"`
		Backtest []types.TradeRecord `json:"backtest"`
		Config   reconcile.Config    `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	report, err := s.reconciler.Reconcile(req.Live, req.Backtest, req.Config)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ReconciliationsTotal.Inc()
		s.metrics.ReconcileMatchedRatio.Observe(float64(report.Summary.MatchedCount) / float64(len(req.Live)))
	}

	s.respond(w, http.StatusOK, report)
}

// handleRunSearch starts an asynchronous parameter search over the supplied
// trade pool; progress streams to WebSocket subscribers.
func (s *Server) handleRunSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Trades       []types.TradeRecord     `json:"trades"`
		Grid         []types.Parameter       `json:"grid"`
		Config       robustness.SearchConfig `json:"config"`
		WindowMinute float64                 `json:"entry_window_minutes,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Config.Workers == 0 {
		req.Config.Workers = s.engineCfg.SearchWorkers
	}

	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	state := &SearchState{
		ID:      id,
		Status:  "running",
		Started: time.Now(),
		cancel:  cancel,
	}

	s.mu.Lock()
	s.searches[id] = state
	s.mu.Unlock()

	evaluator := robustness.NewEntryTimeEvaluator(req.Trades, req.WindowMinute)
	cfg := req.Config
	cfg.Progress = func(done, total int) {
		s.broadcast(&Message{
			ID:     uuid.New().String(),
			Type:   "event",
			Method: "search:progress",
			Payload: map[string]interface{}{
				"id":    id,
				"done":  done,
				"total": total,
			},
			Timestamp: time.Now().UnixMilli(),
		})
	}

	go s.runSearchAsync(ctx, state, evaluator, req.Grid, cfg)

	s.respond(w, http.StatusAccepted, map[string]interface{}{
		"id":      id,
		"status":  "running",
		"started": state.Started.Unix(),
	})
}

func (s *Server) runSearchAsync(ctx context.Context, state *SearchState, evaluator robustness.Evaluator, grid []types.Parameter, cfg robustness.SearchConfig) {
	if s.metrics != nil {
		s.metrics.ActiveSearches.Inc()
		defer s.metrics.ActiveSearches.Dec()
	}

	result, err := s.searcher.Search(ctx, evaluator, grid, cfg)

	s.mu.Lock()
	if err != nil {
		state.Status = "failed"
		state.Err = err.Error()
		s.logger.Error("Parameter search failed", zap.String("id", state.ID), zap.Error(err))
	} else {
		state.Result = result
		if result.Interrupted {
			state.Status = "cancelled"
		} else {
			state.Status = "completed"
		}
	}
	status := state.Status
	s.mu.Unlock()

	if s.metrics != nil && err == nil {
		s.metrics.SearchesTotal.Inc()
		s.metrics.SearchCandidates.Observe(float64(result.Evaluated))
	}

	s.broadcast(&Message{
		ID:        uuid.New().String(),
		Type:      "event",
		Method:    "search:complete",
		Payload:   map[string]interface{}{"id": state.ID, "status": status},
		Timestamp: time.Now().UnixMilli(),
	})
}

// handleGetSearch returns the state and (when finished) ranking of a search.
func (s *Server) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	state, ok := s.searches[id]
	if !ok {
		s.mu.RUnlock()
		s.respond(w, http.StatusNotFound, map[string]string{"error": "search not found"})
		return
	}
	response := map[string]interface{}{
		"id":      state.ID,
		"status":  state.Status,
		"started": state.Started.Unix(),
	}
	if state.Result != nil {
		response["result"] = state.Result
	}
	if state.Err != "" {
		response["error"] = state.Err
	}
	s.mu.RUnlock()

	s.respond(w, http.StatusOK, response)
}

// handleCancelSearch cancels a running search; the search still finishes
// with a consistent partial ranking.
func (s *Server) handleCancelSearch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	state, ok := s.searches[id]
	running := ok && state.Status == "running"
	s.mu.RUnlock()

	if !ok {
		s.respond(w, http.StatusNotFound, map[string]string{"error": "search not found"})
		return
	}
	if !running {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "search not running"})
		return
	}

	state.cancel()

	s.respond(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": "cancelling",
	})
}
