package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-investigator/internal/api"
	"github.com/miradorstack/mirador-investigator/internal/mcpserver"
	"github.com/miradorstack/mirador-investigator/internal/metrics"
	"github.com/miradorstack/mirador-investigator/internal/patterns"
	"github.com/miradorstack/mirador-investigator/internal/telemetry"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the gRPC, MCP and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(parent context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger
	logger.Info("starting mirador-investigator", slog.String("address", cfg.Server.Address), slog.String("version", version))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	shutdownTracing, err := telemetry.InitTraceProvider(parent, cfg.Tracing.Endpoint, version)
	if err != nil {
		logger.Warn("tracing disabled", slog.Any("error", err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	server, err := api.NewServer(cfg.Server, api.NewHandler(a.investigator, logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var httpServers []*http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		httpServers = append(httpServers, startHTTP(logger, stop, "metrics", cfg.Server.MetricsAddress, mux))
	}
	if cfg.Server.MCPAddress != "" {
		handler := mcpserver.New(a.investigator, logger).Handler()
		httpServers = append(httpServers, startHTTP(logger, stop, "mcp", cfg.Server.MCPAddress, handler))
	}

	scheduler := a.patternScheduler()
	if scheduler != nil {
		scheduler.Start()
		defer scheduler.Stop()
	}

	go func() {
		logger.Info("gRPC server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)
	for _, srv := range httpServers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", slog.String("address", srv.Addr), slog.Any("error", err))
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", slog.Any("error", err))
	}
	logger.Info("shutdown complete")
	return nil
}

func startHTTP(logger *slog.Logger, stop context.CancelFunc, name, addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info(name+" server listening", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(name+" server exited", slog.Any("error", err))
			stop()
		}
	}()
	return srv
}

// patternScheduler mines failure patterns from history on the configured
// schedule. It is nil when no history store is configured.
func (a *app) patternScheduler() *patterns.Scheduler {
	if a.history == nil || a.cfg.Patterns.Schedule == "" {
		return nil
	}
	var stores patterns.Stores
	if a.sqlite != nil {
		stores = append(stores, a.sqlite)
	}
	if a.weaviate != nil {
		stores = append(stores, a.weaviate)
	}
	miner := patterns.NewMiner(a.logger, stores, a.cfg.Patterns.MinCount)
	scheduler, err := patterns.NewScheduler(miner, a.history, a.cfg.Patterns.Schedule, a.cfg.Patterns.Lookback, a.logger)
	if err != nil {
		a.logger.Warn("pattern mining disabled", slog.String("schedule", a.cfg.Patterns.Schedule), slog.Any("error", err))
		return nil
	}
	return scheduler
}
