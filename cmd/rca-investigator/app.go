package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/miradorstack/mirador-investigator/internal/agents"
	"github.com/miradorstack/mirador-investigator/internal/cache"
	"github.com/miradorstack/mirador-investigator/internal/config"
	"github.com/miradorstack/mirador-investigator/internal/engine"
	"github.com/miradorstack/mirador-investigator/internal/repo"
	"github.com/miradorstack/mirador-investigator/internal/services"
	"github.com/miradorstack/mirador-investigator/internal/store"
	"github.com/miradorstack/mirador-investigator/internal/toolkit"
	"github.com/miradorstack/mirador-investigator/internal/tools"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	snapshot     *store.Snapshot
	registry     *tools.Registry
	cache        cache.Provider
	sqlite       *repo.SQLiteHistory
	weaviate     *repo.WeaviateRepo
	history      repo.History
	investigator *services.Investigator
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.dataDir != "" {
		cfg.Data.Dir = flags.dataDir
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.backend != "" {
		cfg.Roles.Backend = flags.backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp loads the dataset and wires tools, history, roles and the
// orchestrator. Optional stores that fail to open are logged and skipped.
func newApp(cfg *config.Config) (*app, error) {
	logger := utils.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.JSON)
	a := &app{cfg: cfg, logger: logger}

	snapshot, err := store.LoadDir(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	a.snapshot = snapshot
	logger.Info("dataset loaded",
		slog.String("dir", cfg.Data.Dir),
		slog.Int("alerts", len(snapshot.Alerts())),
	)

	cacheProvider, err := cache.New(cfg.Cache)
	if err != nil {
		logger.Warn("cache unavailable", slog.String("backend", cfg.Cache.Backend), slog.Any("error", err))
		cacheProvider = cache.NoopProvider{}
	}
	a.cache = cacheProvider

	a.registry = tools.NewRegistry(
		tools.WithTimeout(cfg.Session.ToolTimeout),
		tools.WithCache(cacheProvider, cfg.Cache.ToolTTL),
		tools.WithLogger(logger),
	)
	if err := tools.RegisterEvidenceTools(a.registry, toolkit.New(snapshot)); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	var backends repo.Tee
	if cfg.History.SQLitePath != "" {
		sqlite, err := repo.NewSQLiteHistory(cfg.History.SQLitePath)
		if err != nil {
			logger.Warn("sqlite history unavailable", slog.String("path", cfg.History.SQLitePath), slog.Any("error", err))
		} else {
			a.sqlite = sqlite
			backends = append(backends, sqlite)
		}
	}
	if cfg.History.Weaviate.Endpoint != "" {
		a.weaviate = repo.NewWeaviateRepo(
			cfg.History.Weaviate.Endpoint,
			cfg.History.Weaviate.APIKey,
			cfg.History.Weaviate.Timeout,
			cacheProvider,
			cfg.Cache.ToolTTL,
			cfg.Cache.PatternsTTL,
		)
		backends = append(backends, a.weaviate)
	}
	if len(backends) > 0 {
		a.history = backends
	}

	rules, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("load rule pack: %w", err)
	}
	var similar engine.SimilarIncidents
	if a.history != nil {
		similar = a.history
	}
	pipeline := engine.NewPipeline(logger, rules, engine.NewCausalityEngine(logger), similar)

	roles, err := agents.Build(cfg, pipeline, logger)
	if err != nil {
		return nil, fmt.Errorf("build roles: %w", err)
	}
	orch, err := engine.NewOrchestrator(roles, a.registry, nil, engineOptions(cfg.Session), logger)
	if err != nil {
		return nil, err
	}

	deps := services.Deps{
		Runner:      orch,
		Snapshot:    snapshot,
		Tools:       a.registry,
		History:     a.history,
		OutputDir:   cfg.Output.Dir,
		Parallelism: cfg.Session.Parallelism,
		Logger:      logger,
	}
	switch {
	case a.sqlite != nil:
		deps.Patterns = a.sqlite
	case a.weaviate != nil:
		deps.Patterns = a.weaviate
	}
	a.investigator, err = services.NewInvestigator(deps)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func engineOptions(cfg config.SessionConfig) engine.Options {
	return engine.Options{
		Session: engine.SessionOptions{
			MaxIterations: cfg.MaxIterations,
			WindowBefore:  cfg.WindowBefore,
			WindowAfter:   cfg.WindowAfter,
		},
		MaxMessages:   cfg.MaxMessages,
		TurnTimeout:   cfg.TurnTimeout,
		RoleRetries:   cfg.RoleRetries,
		MaxToolRounds: cfg.MaxToolRounds,
		Deadline:      cfg.Deadline,
	}
}

// Close releases the history store and cache.
func (a *app) Close() error {
	var errs []error
	if a.sqlite != nil {
		errs = append(errs, a.sqlite.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	return errors.Join(errs...)
}
