package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/marketledger-backend/api/routes"
	"github.com/angelmondragon/marketledger-backend/internal/changerequests"
	"github.com/angelmondragon/marketledger-backend/internal/entries"
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
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	workflowMetrics := metrics.NewWorkflowMetrics(registry)

	entriesRepo := entries.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	entryService, err := entries.NewService(entriesRepo, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create entries service", err)
		os.Exit(1)
	}

	confirmationsRepo := paymentconfirmations.NewRepository(dbClient.DB())
	changeRequestService, err := changerequests.NewService(changerequests.ServiceParams{
		Requests:      changerequests.NewRepository(dbClient.DB()),
		Entries:       entriesRepo,
		Confirmations: confirmationsRepo,
		Tx:            dbClient,
		Outbox:        outboxService,
		Logger:        logg,
		Metrics:       workflowMetrics,
		Config:        changerequests.Config{ExclusivePending: cfg.Workflow.ExclusivePending},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create change request service", err)
		os.Exit(1)
	}

	confirmationService, err := paymentconfirmations.NewService(paymentconfirmations.ServiceParams{
		Confirmations: confirmationsRepo,
		Entries:       entriesRepo,
		Tx:            dbClient,
		Outbox:        outboxService,
		Logger:        logg,
		Metrics:       workflowMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment confirmation service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":               cfg.App.Env,
		"addr":              addr,
		"exclusive_pending": cfg.Workflow.ExclusivePending,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Idempotency:    redisClient,
			Gatherer:       registry,
			Entries:        entryService,
			ChangeRequests: changeRequestService,
			Confirmations:  confirmationService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
