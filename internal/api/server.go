// Package api provides the HTTP and WebSocket server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/atlas-desktop/risk-engine/internal/allocation"
	"github.com/atlas-desktop/risk-engine/internal/montecarlo"
	"github.com/atlas-desktop/risk-engine/internal/observability"
	"github.com/atlas-desktop/risk-engine/internal/reconcile"
	"github.com/atlas-desktop/risk-engine/internal/robustness"
	"github.com/atlas-desktop/risk-engine/internal/series"
	"github.com/atlas-desktop/risk-engine/pkg/types"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server is the HTTP/WebSocket API server. All analysis state lives in
// memory; nothing is persisted across restarts.
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     *types.ServerConfig
	engineCfg  *types.EngineConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    map[string]*Client
	metrics    *observability.Metrics

	builder    *series.Builder
	simulator  *montecarlo.Simulator
	optimizer  *allocation.Optimizer
	searcher   *robustness.Searcher
	reconciler *reconcile.Engine

	searches map[string]*SearchState
}

// SearchState tracks one asynchronous parameter search.
type SearchState struct {
	ID      string
	Status  string // running, completed, failed, cancelled
	Started time.Time
	Result  *robustness.SearchResult
	Err     string
	cancel  context.CancelFunc
}

// NewServer creates a new API server.
func NewServer(logger *zap.Logger, config *types.ServerConfig, engineCfg *types.EngineConfig, metrics *observability.Metrics) *Server {
	server := &Server{
		logger:     logger,
		config:     config,
		engineCfg:  engineCfg,
		router:     mux.NewRouter(),
		clients:    make(map[string]*Client),
		metrics:    metrics,
		builder:    series.NewBuilder(logger),
		simulator:  montecarlo.NewSimulator(logger),
		optimizer:  allocation.NewOptimizer(logger),
		searcher:   robustness.NewSearcher(logger),
		reconciler: reconcile.NewEngine(logger),
		searches:   make(map[string]*SearchState),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(s.countRequests)

	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/series/build", s.handleBuildSeries).Methods("POST")
	s.router.HandleFunc("/api/v1/simulate", s.handleSimulate).Methods("POST")
	s.router.HandleFunc("/api/v1/simulate/joint", s.handleSimulateJoint).Methods("POST")
	s.router.HandleFunc("/api/v1/allocation/optimize", s.handleOptimizeAllocation).Methods("POST")
	s.router.HandleFunc("/api/v1/reconcile", s.handleReconcile).Methods("POST")

	s.router.HandleFunc("/api/v1/search/run", s.handleRunSearch).Methods("POST")
	s.router.HandleFunc("/api/v1/search/{id}", s.handleGetSearch).Methods("GET")
	s.router.HandleFunc("/api/v1/search/{id}/cancel", s.handleCancelSearch).Methods("POST")

	if s.config.EnableMetrics && s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	s.router.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
}

// Router exposes the configured handler for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting API server", zap.String("addr", addr))

	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server and cancels running searches.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, state := range s.searches {
		if state.cancel != nil {
			state.cancel()
		}
	}
	for _, client := range s.clients {
		client.Conn.Close()
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// countRequests records per-route request counters.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) respond(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// respondError maps engine errors onto HTTP statuses: configuration and
// data problems are client errors, everything else is a 500.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var invalid *types.InvalidConfigurationError
	var insufficient *types.InsufficientDataError
	var infeasible *types.InfeasibleConstraintsError
	var noOverlap *types.NoOverlapError
	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
	case errors.As(err, &insufficient):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &infeasible):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &noOverlap):
		status = http.StatusUnprocessableEntity
	}

	s.respond(w, status, map[string]string{"error": err.Error()})
}
