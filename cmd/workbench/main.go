package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/workbench/pkg/ai"
	"github.com/platinummonkey/workbench/pkg/api"
	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/config"
	"github.com/platinummonkey/workbench/pkg/identity"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/orgs"
	"github.com/platinummonkey/workbench/pkg/projects"
	"github.com/platinummonkey/workbench/pkg/storage/postgres"
	"github.com/platinummonkey/workbench/pkg/tenant"
	"github.com/platinummonkey/workbench/pkg/usage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)
	metrics := observability.NewMetrics(nil)

	// Storage.
	connCfg := postgres.DefaultConnectionConfig(cfg.Database.URL)
	connCfg.MaxConns = cfg.Database.MaxConns
	connCfg.MinConns = cfg.Database.MinConns
	db, err := postgres.Connect(connCfg)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := postgres.RunMigrations(ctx, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("database migrations applied")

	redisClient, err := tenant.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	// Services.
	users := identity.NewStore(db)
	sessions := tenant.NewSessionStore(redisClient, cfg.Redis.SessionTTL)
	resolver := tenant.NewResolver(db, users, sessions)
	recorder := audit.NewRecorder(db)
	usageEngine := usage.NewEngine(db)
	orgSvc := orgs.NewService(db, users, usageEngine, recorder)
	projectSvc := projects.NewService(db, recorder)

	var provider ai.Provider
	if cfg.AI.ForceFallback || cfg.AI.GeminiAPIKey == "" {
		logger.Info("AI provider not configured, using local fallback reports")
		provider = ai.NewFallbackProvider()
	} else {
		provider = ai.NewGeminiProvider(cfg.AI.GeminiAPIKey, cfg.AI.GeminiModel)
	}
	reports := ai.NewReportService(db, provider, projectSvc, usageEngine, recorder, metrics)

	server := api.NewServer(api.Deps{
		Logger:   logger,
		Metrics:  metrics,
		DB:       db,
		Users:    users,
		Resolver: resolver,
		Sessions: sessions,
		Orgs:     orgSvc,
		Projects: projectSvc,
		Usage:    usageEngine,
		Reports:  reports,
		Audit:    recorder,
	})

	// Scheduled audit retention cleanup.
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Audit.CleanupSchedule, func() {
		deleted, err := recorder.Cleanup(context.Background(), cfg.Audit.RetentionDays)
		if err != nil {
			logger.WithError(err).Error("audit cleanup failed")
			return
		}
		metrics.AuditCleanupDeleted.Add(float64(deleted))
		logger.WithField("deleted", deleted).Info("audit cleanup completed")
	})
	if err != nil {
		log.Fatalf("Invalid audit cleanup schedule %q: %v", cfg.Audit.CleanupSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	metricsServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.MetricsPort,
		Handler: metrics.Handler(),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", metricsServer.Addr).Info("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("API server shutdown did not complete cleanly")
		}
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	logger.Info("shutdown complete")
}
