// Package main provides the entry point for the risk engine server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atlas-desktop/risk-engine/internal/api"
	"github.com/atlas-desktop/risk-engine/internal/observability"
	"github.com/atlas-desktop/risk-engine/pkg/types"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configFile := flag.String("config", "", "Config file path (yaml)")
	host := flag.String("host", "", "Server host (overrides config)")
	port := flag.Int("port", 0, "Server port (overrides config)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	serverConfig, engineConfig, err := loadConfig(*configFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if *host != "" {
		serverConfig.Host = *host
	}
	if *port != 0 {
		serverConfig.Port = *port
	}

	logger.Info("Starting Atlas Risk Engine",
		zap.String("host", serverConfig.Host),
		zap.Int("port", serverConfig.Port),
		zap.Int("default_draws", engineConfig.DefaultDraws),
		zap.Int("max_draws", engineConfig.MaxDraws),
	)

	metrics := observability.NewMetrics()
	server := api.NewServer(logger, serverConfig, engineConfig, metrics)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	logger.Info("Server started successfully",
		zap.String("ws", fmt.Sprintf("ws://%s:%d%s", serverConfig.Host, serverConfig.Port, serverConfig.WebSocketPath)),
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", serverConfig.Host, serverConfig.Port)),
		zap.Bool("metrics", serverConfig.EnableMetrics),
	)

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// loadConfig reads the optional yaml config file and RISK_ENGINE_* env
// overrides on top of the built-in defaults.
func loadConfig(path string) (*types.ServerConfig, *types.EngineConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("RISK_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	serverDefaults := types.DefaultServerConfig()
	engineDefaults := types.DefaultEngineConfig()
	v.SetDefault("server.host", serverDefaults.Host)
	v.SetDefault("server.port", serverDefaults.Port)
	v.SetDefault("server.websocket_path", serverDefaults.WebSocketPath)
	v.SetDefault("server.read_timeout", serverDefaults.ReadTimeout)
	v.SetDefault("server.write_timeout", serverDefaults.WriteTimeout)
	v.SetDefault("server.max_connections", serverDefaults.MaxConnections)
	v.SetDefault("server.enable_metrics", serverDefaults.EnableMetrics)
	v.SetDefault("engine.default_draws", engineDefaults.DefaultDraws)
	v.SetDefault("engine.default_seed", engineDefaults.DefaultSeed)
	v.SetDefault("engine.default_ruin_floor", engineDefaults.DefaultRuinFloor)
	v.SetDefault("engine.max_draws", engineDefaults.MaxDraws)
	v.SetDefault("engine.max_kept_paths", engineDefaults.MaxKeptPaths)
	v.SetDefault("engine.simulation_workers", engineDefaults.SimulationWorkers)
	v.SetDefault("engine.search_workers", engineDefaults.SearchWorkers)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, err
		}
	}

	var cfg struct {
		Server types.ServerConfig `mapstructure:"server"`
		Engine types.EngineConfig `mapstructure:"engine"`
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, err
	}
	return &cfg.Server, &cfg.Engine, nil
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
