package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/varunnair-io/distriflow-backend/internal/dispatch"
	"github.com/varunnair-io/distriflow-backend/internal/integrations"
	"github.com/varunnair-io/distriflow-backend/internal/worklock"
	"github.com/varunnair-io/distriflow-backend/pkg/config"
	"github.com/varunnair-io/distriflow-backend/pkg/db"
	"github.com/varunnair-io/distriflow-backend/pkg/logger"
	"github.com/varunnair-io/distriflow-backend/pkg/metrics"
	"github.com/varunnair-io/distriflow-backend/pkg/migrate"
	"github.com/varunnair-io/distriflow-backend/pkg/outbox"
	"github.com/varunnair-io/distriflow-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "dispatch-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "dispatch-worker"

	logg = logger.New(logger.Options{
		ServiceName: "dispatch-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
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

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	dispatcher, err := dispatch.New(dispatch.Options{
		Source:      outboxSvc,
		Store:       integrations.NewRepository(dbClient.DB()),
		HTTPTimeout: cfg.Dispatch.HTTPTimeout,
		BatchSize:   cfg.Dispatch.BatchSize,
		Metrics:     metrics.NewDispatchMetrics(prometheus.DefaultRegisterer),
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatcher", err)
		os.Exit(1)
	}

	lock, err := worklock.NewRedisLock(redisClient, cfg.Dispatch.LockKey, cfg.Dispatch.LockTTL, redis.IsNil)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch lock", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Logger:         logg,
		Runner:         dispatcher,
		Lock:           lock,
		PollIntervalMS: cfg.Dispatch.PollIntervalMS,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "dispatch-worker",
	})
	logg.Info(ctx, "starting dispatch worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "dispatch worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "dispatch worker shutting down gracefully")
}
