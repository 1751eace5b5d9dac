package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/varunnair-io/distriflow-backend/api/routes"
	"github.com/varunnair-io/distriflow-backend/internal/audit"
	"github.com/varunnair-io/distriflow-backend/internal/credit"
	"github.com/varunnair-io/distriflow-backend/internal/dispatch"
	"github.com/varunnair-io/distriflow-backend/internal/integrations"
	"github.com/varunnair-io/distriflow-backend/internal/notify"
	"github.com/varunnair-io/distriflow-backend/internal/orders"
	"github.com/varunnair-io/distriflow-backend/pkg/config"
	"github.com/varunnair-io/distriflow-backend/pkg/db"
	"github.com/varunnair-io/distriflow-backend/pkg/logger"
	"github.com/varunnair-io/distriflow-backend/pkg/metrics"
	"github.com/varunnair-io/distriflow-backend/pkg/migrate"
	"github.com/varunnair-io/distriflow-backend/pkg/outbox"
	"github.com/varunnair-io/distriflow-backend/pkg/redis"
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

	auditor := audit.NewService(dbClient.DB(), logg)
	notifier := notify.NewLogSender(logg)

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	integrationsRepo := integrations.NewRepository(dbClient.DB())

	dispatcher, err := dispatch.New(dispatch.Options{
		Source:      outboxSvc,
		Store:       integrationsRepo,
		HTTPTimeout: cfg.Dispatch.HTTPTimeout,
		BatchSize:   cfg.Dispatch.BatchSize,
		Metrics:     metrics.NewDispatchMetrics(prometheus.DefaultRegisterer),
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatcher", err)
		os.Exit(1)
	}
	outboxSvc.SetTrigger(dispatcher)

	creditSvc, err := credit.NewService(credit.NewRepository(dbClient.DB()), dbClient, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create credit service", err)
		os.Exit(1)
	}

	ordersSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, creditSvc, outboxSvc, auditor, notifier, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	integrationsSvc, err := integrations.NewService(integrationsRepo, auditor)
	if err != nil {
		logg.Error(context.Background(), "failed to create integrations service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, ordersSvc, creditSvc, integrationsSvc),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		logg.Info(ctx, "shutting down api server")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server stopped")
}
