// Package main provides the API server entry point for the token analytics service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/token-analytics/internal/adapter"
	"github.com/token-analytics/internal/api"
	"github.com/token-analytics/internal/broadcast"
	"github.com/token-analytics/internal/circuitbreaker"
	"github.com/token-analytics/internal/config"
	"github.com/token-analytics/internal/job"
	"github.com/token-analytics/internal/logging"
	"github.com/token-analytics/internal/service"
	sig "github.com/token-analytics/internal/signal"
	"github.com/token-analytics/internal/storage"
)

func main() {
	fmt.Println("Token Analytics Server")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
		"tokens": len(cfg.Tokens),
	}).Info("Structured logging initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := make(map[string]storage.Pinger)

	// Analysis and signal stores: Redis when enabled, in-process otherwise
	var (
		store   storage.AnalysisStore
		signals storage.SignalStore
	)
	if cfg.Database.Redis.Enabled {
		redisDB, err := storage.NewRedisDB(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer func() { _ = redisDB.Close() }()
		deps["redis"] = redisDB
		store = storage.NewRedisAnalysisStore(redisDB, cfg.Analytics.HistoryTTL)
		signals = storage.NewRedisSignalStore(redisDB, cfg.Analytics.AISignalTTL)
	} else {
		logger.Warn("Redis disabled - analyses are kept in memory only")
		store = storage.NewMemoryAnalysisStore(cfg.Analytics.HistoryTTL)
		signals = storage.NewMemorySignalStore()
	}

	// Token registry and job state in Postgres
	var (
		tokens   service.TokenLister
		jobStore job.JobStore
		jobRepo  *storage.JobRepository
	)
	if cfg.Database.Postgres.Enabled {
		postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Postgres")
		}
		defer postgres.Close()
		deps["postgres"] = postgres

		tokenRepo := storage.NewTokenRepository(postgres)
		if err := tokenRepo.Seed(ctx, cfg.Tokens); err != nil {
			logger.WithError(err).Warn("Failed to seed token registry")
		}
		tokens = tokenRepo
		jobRepo = storage.NewJobRepository(postgres)
		jobStore = jobRepo
	}

	// Metrics archive in ClickHouse
	var archive service.Archiver
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer func() { _ = clickhouse.Close() }()
		deps["clickhouse"] = clickhouse
		archive = storage.NewMetricsArchive(clickhouse)
	}

	source := newMarketDataSource(ctx, cfg, logger)

	strategy, err := sig.ForName(cfg.Analytics.Strategy)
	if err != nil {
		logger.WithError(err).Fatal("Invalid signal strategy")
	}

	analyticsService, err := service.NewAnalyticsService(service.Config{
		Source:        source,
		Store:         store,
		Signals:       signals,
		Strategy:      strategy,
		Tokens:        tokens,
		DefaultTokens: cfg.Tokens,
		Archive:       archive,
		Workers:       cfg.Analytics.Workers,
		TokensTTL:     cfg.Analytics.TokensTTL,
		TokenTimeout:  cfg.Analytics.TickInterval,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create analytics service")
	}

	hub := broadcast.NewHub(broadcast.DefaultHubConfig())
	defer hub.Close()

	// Scheduler with the default automation jobs
	scheduler := job.NewScheduler(&job.SchedulerConfig{
		Interval:   cfg.Analytics.TickInterval,
		Recomputer: analyticsService,
		Store:      jobStore,
	})
	if err := job.RegisterDefaults(scheduler, job.Dependencies{
		Analyses:  analyticsService,
		Signals:   signals,
		Publisher: hub,
	}); err != nil {
		logger.WithError(err).Fatal("Failed to register automation jobs")
	}
	if jobRepo != nil {
		saved, err := jobRepo.ListJobs(ctx)
		if err != nil {
			logger.WithError(err).Warn("Failed to load saved job state")
		} else {
			logger.WithField("restored", scheduler.Restore(saved)).Info("Job state restored")
		}
	}

	if err := scheduler.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start scheduler")
	}

	broadcaster := broadcast.NewBroadcaster(analyticsService, hub, cfg.Analytics.BroadcastInterval)
	go broadcaster.Run(ctx)

	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}
	server := api.NewServer(serverConfig, analyticsService, scheduler, hub)
	server.SetDependencies(deps)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":     cfg.Server.Host,
		"port":     cfg.Server.Port,
		"strategy": strategy.Name(),
	}).Info("Server started successfully")

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Scheduler did not stop cleanly")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		os.Exit(1)
	}

	logger.Info("Server exited")
}

// newMarketDataSource builds the guarded Ethereum source, or the deterministic
// fallback alone when no RPC endpoint is reachable.
func newMarketDataSource(ctx context.Context, cfg *config.Config, logger *logging.Logger) adapter.MarketDataSource {
	fallback := adapter.NewFallbackSource()

	if cfg.Chain.RPCPrimary == "" {
		logger.Warn("ETHEREUM_RPC_PRIMARY not set - using fallback market data")
		return fallback
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Chain.RequestTimeout)
	defer cancel()

	ethereum, err := adapter.NewEthereumSource(dialCtx, &cfg.Chain)
	if err != nil {
		logger.WithError(err).Warn("Ethereum RPC unavailable - using fallback market data")
		return fallback
	}

	guarded := adapter.DefaultGuardedConfig()
	guarded.TradesTTL = cfg.Analytics.TradesTTL
	guarded.HoldersTTL = cfg.Analytics.HoldersTTL
	guarded.Timeout = cfg.Chain.RequestTimeout

	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("ethereum"))
	return adapter.NewGuardedSource(ethereum, fallback, breaker, guarded)
}
