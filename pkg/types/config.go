// Package types provides configuration types for the risk engine.
package types

import "time"

// ServerConfig represents the API server configuration.
type ServerConfig struct {
	Host           string        `json:"host" mapstructure:"host"`
	Port           int           `json:"port" mapstructure:"port"`
	WebSocketPath  string        `json:"websocket_path" mapstructure:"websocket_path"`
	ReadTimeout    time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	MaxConnections int           `json:"max_connections" mapstructure:"max_connections"`
	EnableMetrics  bool          `json:"enable_metrics" mapstructure:"enable_metrics"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:           "localhost",
		Port:           8080,
		WebSocketPath:  "/ws",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxConnections: 100,
		EnableMetrics:  true,
	}
}

// EngineConfig carries process-level defaults applied to API requests that
// omit the corresponding field. Engine entry points themselves take explicit
// configuration records and never read ambient state.
type EngineConfig struct {
	DefaultDraws      int     `json:"default_draws" mapstructure:"default_draws"`
	DefaultSeed       int64   `json:"default_seed" mapstructure:"default_seed"`
	DefaultRuinFloor  float64 `json:"default_ruin_floor" mapstructure:"default_ruin_floor"`
	MaxDraws          int     `json:"max_draws" mapstructure:"max_draws"`
	MaxKeptPaths      int     `json:"max_kept_paths" mapstructure:"max_kept_paths"`
	SimulationWorkers int     `json:"simulation_workers" mapstructure:"simulation_workers"`
	SearchWorkers     int     `json:"search_workers" mapstructure:"search_workers"`
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		DefaultDraws:      1000,
		DefaultSeed:       1,
		DefaultRuinFloor:  0,
		MaxDraws:          100000,
		MaxKeptPaths:      500,
		SimulationWorkers: 8,
		SearchWorkers:     8,
	}
}
