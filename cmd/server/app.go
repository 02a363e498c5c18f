package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tomhalloin/cardgen/internal/cache"
	"github.com/tomhalloin/cardgen/internal/config"
	"github.com/tomhalloin/cardgen/internal/domain"
	"github.com/tomhalloin/cardgen/internal/generation"
	"github.com/tomhalloin/cardgen/internal/platform/gemini"
	"github.com/tomhalloin/cardgen/internal/platform/logger"
	"github.com/tomhalloin/cardgen/internal/platform/openai"
	"github.com/tomhalloin/cardgen/internal/platform/postgres"
)

// cacheSweepInterval is how often expired durable cache entries are
// removed.
const cacheSweepInterval = time.Hour

// application holds the assembled dependencies of the running server.
type application struct {
	config       *config.Config
	logger       *slog.Logger
	db           *sql.DB
	cache        *cache.ResponseCache
	orchestrator *generation.Orchestrator
	stopSweep    context.CancelFunc
}

// newApplication loads configuration and wires every component of the
// pipeline: providers, invoker, cache, prompt templates, and the
// orchestrator that composes them.
func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server.LogLevel)
	appLogger.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"providers", len(cfg.Providers),
		"cache_durable", cfg.Cache.URL != "")

	app := &application{
		config: cfg,
		logger: appLogger,
	}

	providers, err := buildProviders(ctx, appLogger, cfg.Providers, cfg.Profiles)
	if err != nil {
		return nil, err
	}

	invokerCfg := generation.DefaultInvokerConfig()
	if cfg.Generation.MaxRetries > 0 {
		invokerCfg.MaxRetries = cfg.Generation.MaxRetries
	}
	if cfg.Generation.RetryBaseDelay > 0 {
		invokerCfg.BaseDelay = cfg.Generation.RetryBaseDelay
	}
	if cfg.Generation.RequestTimeout > 0 {
		invokerCfg.CallTimeout = cfg.Generation.RequestTimeout
	}

	invoker, err := generation.NewInvoker(providers, invokerCfg, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoker: %w", err)
	}

	responseCache, err := app.buildCache(ctx)
	if err != nil {
		return nil, err
	}

	prompts, err := generation.LoadPrompts(cfg.Generation.PromptTemplateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	orchestrator, err := generation.NewOrchestrator(invoker, responseCache, prompts,
		generation.OrchestratorConfig{
			MaxConcurrentRequests: cfg.Generation.MaxConcurrentRequests,
			SimilarityThreshold:   cfg.Generation.SimilarityThreshold,
			RunTimeout:            cfg.Generation.RunTimeout,
		}, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	app.orchestrator = orchestrator

	return app, nil
}

// buildProviders constructs the failover chain in configuration order.
func buildProviders(ctx context.Context, log *slog.Logger, configs []config.ProviderConfig, overrides map[string]*domain.ModelProfile) ([]generation.Provider, error) {
	profiles := domain.DefaultProfiles().Overlay(overrides)

	providers := make([]generation.Provider, 0, len(configs))
	for _, pc := range configs {
		profile := profiles.Lookup(pc.Name, pc.Model)

		var (
			provider generation.Provider
			err      error
		)
		if pc.Name == "gemini" {
			provider, err = gemini.New(ctx, log, pc.APIKey, pc.Model, profile)
		} else {
			provider, err = openai.New(log, openai.Options{
				Name:    pc.Name,
				BaseURL: pc.BaseURL,
				APIKey:  pc.APIKey,
				Model:   pc.Model,
				Profile: profile,
			})
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %q: %w", pc.Name, err)
		}

		providers = append(providers, provider)
	}

	return providers, nil
}

// buildCache assembles the response cache. With a database URL the
// durable tier is Postgres behind the in-process LRU; without one the
// cache is memory-only.
func (app *application) buildCache(ctx context.Context) (*cache.ResponseCache, error) {
	cfg := app.config.Cache

	var durable *postgres.PostgresCacheStore
	if cfg.URL != "" {
		db, err := sql.Open("pgx", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		app.db = db

		if err := postgres.Migrate(db, app.logger); err != nil {
			return nil, err
		}

		durable = postgres.NewPostgresCacheStore(db)
	}

	var responseCache *cache.ResponseCache
	var err error
	if durable != nil {
		responseCache, err = cache.New(durable, cfg.MemoryEntries, app.logger)
	} else {
		responseCache, err = cache.New(nil, cfg.MemoryEntries, app.logger)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create response cache: %w", err)
	}
	app.cache = responseCache

	if durable != nil && cfg.TTL > 0 {
		responseCache.Sweep(ctx, cfg.TTL)

		sweepCtx, cancel := context.WithCancel(context.Background())
		app.stopSweep = cancel
		go app.sweepLoop(sweepCtx, cfg.TTL)
	}

	return responseCache, nil
}

// sweepLoop periodically removes expired durable cache entries.
func (app *application) sweepLoop(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(cacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			app.cache.Sweep(ctx, ttl)
		case <-ctx.Done():
			return
		}
	}
}

// cleanup releases resources held by the application.
func (app *application) cleanup() {
	if app.stopSweep != nil {
		app.stopSweep()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Failed to close database connection", "error", err)
		}
	}
}
