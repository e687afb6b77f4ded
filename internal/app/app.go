package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"media-dispatcher/internal/classifier"
	"media-dispatcher/internal/config"
	"media-dispatcher/internal/dispatch"
	"media-dispatcher/internal/expander"
	"media-dispatcher/internal/monitor"
	"media-dispatcher/internal/pipeline"
	"media-dispatcher/internal/platform"
	"media-dispatcher/internal/quota"
	"media-dispatcher/internal/registry"
	"media-dispatcher/internal/server"
	"media-dispatcher/internal/storage"
	"media-dispatcher/internal/utils"
	"media-dispatcher/pkg/models"
)

// App holds the wired components shared by the server, CLI and TUI
type App struct {
	Config       *models.Config
	Storage      *storage.SQLite
	Tracker      quota.Tracker
	Registry     *registry.Registry
	Orchestrator *dispatch.Orchestrator
	Pipeline     *pipeline.Pipeline
	Monitor      *monitor.Monitor
	Registerer   prometheus.Registerer
	Gatherer     prometheus.Gatherer

	client *utils.HTTPClient
	logger zerolog.Logger
}

// Load reads configuration from configPath and builds the application
func Load(ctx context.Context, configPath string) (*App, error) {
	manager := config.NewManager()
	cfg, err := manager.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	return New(ctx, cfg, manager.Logger("app"))
}

// New builds every component from cfg. The caller must Close the result.
func New(ctx context.Context, cfg *models.Config, logger zerolog.Logger) (*App, error) {
	store, err := storage.NewSQLite(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("error initializing storage: %w", err)
	}

	tracker, err := quota.New(ctx, quota.Options{
		Backend:       cfg.Quota.Backend,
		Limit:         cfg.Quota.Limit,
		Window:        time.Duration(cfg.Quota.WindowSeconds) * time.Second,
		RedisAddr:     cfg.Quota.RedisAddr,
		RedisPassword: cfg.Quota.RedisPassword,
		KeyPrefix:     cfg.Quota.KeyPrefix,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	client := platform.NewHTTPClient(cfg)
	cls := classifier.New(expander.NewHTTPExpander(client), cfg.Classifier.ShortLinkHosts)

	reg := registry.NewRegistry()
	if err := reg.RegisterPlatforms(cfg, client); err != nil {
		closeTracker(tracker)
		client.Close()
		store.Close()
		return nil, err
	}

	orchestrator := dispatch.NewOrchestrator(reg, dispatch.Options{
		MaxFileSize:     cfg.Download.MaxFileSizeBytes,
		StrategyTimeout: time.Duration(cfg.Download.StrategyTimeout) * time.Second,
	})

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mon := monitor.NewMonitor(promReg)

	pipe := pipeline.New(tracker, cls, orchestrator, pipeline.Options{
		SavePath: cfg.Download.SavePath,
		Storage:  store,
		Recorder: mon,
	})

	logger.Info().
		Str("quota_backend", cfg.Quota.Backend).
		Int("quota_limit", cfg.Quota.Limit).
		Int("strategies", reg.Count()).
		Msg("Application initialized")

	return &App{
		Config:       cfg,
		Storage:      store,
		Tracker:      tracker,
		Registry:     reg,
		Orchestrator: orchestrator,
		Pipeline:     pipe,
		Monitor:      mon,
		Registerer:   promReg,
		Gatherer:     promReg,
		client:       client,
		logger:       logger,
	}, nil
}

// Server creates the HTTP server on top of the pipeline
func (a *App) Server() *server.Server {
	return server.NewServer(a.Config, server.Dependencies{
		Dispatcher: a.Pipeline,
		Storage:    a.Storage,
		Platforms:  a.Registry,
		Monitor:    a.Monitor,
		Gatherer:   a.Gatherer,
	})
}

// Limits returns the user facing limits for reply texts
func (a *App) Limits() server.Limits {
	return server.LimitsFromConfig(a.Config)
}

// Close releases the tracker, storage and HTTP client
func (a *App) Close() error {
	a.Monitor.Stop()

	firstErr := closeTracker(a.Tracker)
	if err := a.client.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.Storage.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func closeTracker(tracker quota.Tracker) error {
	if closer, ok := tracker.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
