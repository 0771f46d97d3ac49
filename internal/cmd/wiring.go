package cmd

import (
	"fmt"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/broadcast"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/config"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/logging"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/orchestrator"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/procreg"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/progress"
	"github.com/in-the-loop-labs/pair-review-sub008/internal/provider"
)

// app bundles the wired components behind every command.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	registry *provider.Registry
	procs    *procreg.Registry
	engine   *orchestrator.Engine
}

// newApp loads configuration and wires the engine.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewNopLogger()
	if cfg.Logging.Enabled {
		logger, err = logging.NewLogger(cfg.Logging.LogDir(), cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("opening log: %w", err)
		}
	}

	registry := buildRegistry(cfg)
	procs := procreg.NewRegistry(logger)
	hub := broadcast.NewHub()
	tracker := progress.NewTracker(progress.Config{
		Throttle: cfg.Engine.Throttle(),
		Suppress: cfg.Engine.Suppress(),
	}, hub, logger)

	engine, err := orchestrator.NewEngine(cfg, registry, procs, tracker, hub, logger)
	if err != nil {
		logger.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		procs:    procs,
		engine:   engine,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	a.engine.Close()
	a.logger.Close()
}

// buildRegistry constructs the provider registry with configured command
// and model overrides applied.
func buildRegistry(cfg *config.Config) *provider.Registry {
	claude := provider.NewClaude(cfg.Providers.Claude.Command)
	if m := cfg.Providers.Claude.FallbackModel; m != "" {
		claude.FallbackModel = m
	}

	codex := provider.NewCodex(cfg.Providers.Codex.Command)
	if m := cfg.Providers.Codex.FallbackModel; m != "" {
		codex.FallbackModel = m
	}

	return provider.NewRegistry(claude, codex)
}
