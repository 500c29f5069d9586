// =============================================================================
// Migrator entry point
// =============================================================================
// Command line front end for the migration engine.
//
// Usage:
//
//	migrator migrate                 # apply all pending migrations
//	migrator migrate up              # alias for migrate
//	migrator migrate rollback        # revert the last applied migration
//	migrator migrate reset           # revert every applied migration, then re-apply all
//	migrator migrate apply 3 4       # apply migrations 3 and 4
//	migrator migrate revert 4 3      # revert migrations 4 and 3
//	migrator migrate list            # list available migrations
//	migrator migrate create add-foo  # scaffold a new migration pair
//	migrator version                 # show version information
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kilnhq/migrator/config"
	"github.com/kilnhq/migrator/internal/telemetry"
)

// Version, BuildTime and GitCommit are injected at build time via
// -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("migrator %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`migrator - database migration engine

Usage:
  migrator <command> [options]

Commands:
  migrate   Run or inspect migrations (see 'migrator migrate help')
  version   Show version information
  help      Show this help message

Options:
  --config <path>   Path to configuration file (YAML)

Examples:
  migrator migrate
  migrator migrate --config /etc/migrator/config.yaml
  migrator migrate list --pending
  migrator version`)
}

// initLogger builds a zap.Logger from cfg, falling back to a production
// logger if the configured encoder settings are invalid.
func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format != "console" {
		zapConfig.Encoding = "json"
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// loadConfig loads and validates the config at path, using defaults and
// environment overrides when path is empty.
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// initTelemetry starts OTel providers and returns a shutdown func that is
// always safe to call, even on init failure.
func initTelemetry(cfg *config.Config, logger *zap.Logger) func() {
	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(ctx)
	}
}
