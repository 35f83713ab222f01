package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketledger-backend/internal/changerequests"
	"github.com/angelmondragon/marketledger-backend/internal/cron"
	"github.com/angelmondragon/marketledger-backend/internal/paymentconfirmations"
	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
	"github.com/angelmondragon/marketledger-backend/pkg/migrate"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single locked cycle and exit")
	only := flag.String("jobs", "", "comma separated job names to run with -once (default all)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	workflowMetrics := metrics.NewWorkflowMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker", lockEnv(cfg.App.Env)), cfg.Cron.Interval)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:          logg,
		DB:              dbClient,
		Repository:      outbox.NewRepository(dbClient.DB()),
		DLQ:             outbox.NewDLQRepository(dbClient.DB()),
		OutboxRetention: cfg.Cron.OutboxRetention,
		DLQRetention:    cfg.Cron.DLQRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	staleJob, err := cron.NewStaleRequestReportJob(cron.StaleRequestReportJobParams{
		Logger:         logg,
		ChangeRequests: changerequests.NewRepository(dbClient.DB()),
		Confirmations:  paymentconfirmations.NewRepository(dbClient.DB()),
		Metrics:        workflowMetrics,
		StaleAfter:     cfg.Workflow.StaleAfter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stale request job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(retentionJob, staleJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if *once {
		logg.Info(ctx, "running single cron cycle")
		if err := service.RunOnce(ctx, jobNames(*only)...); err != nil {
			if errors.Is(err, cron.ErrLockHeld) {
				logg.Warn(ctx, "cron lock held; nothing to do")
				return
			}
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

func jobNames(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
