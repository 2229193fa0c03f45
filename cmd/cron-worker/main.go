package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rrsoftech/agencypay-backend/internal/cron"
	"github.com/rrsoftech/agencypay-backend/internal/orders"
	"github.com/rrsoftech/agencypay-backend/internal/reconcile"
	"github.com/rrsoftech/agencypay-backend/internal/transactions"
	"github.com/rrsoftech/agencypay-backend/pkg/config"
	"github.com/rrsoftech/agencypay-backend/pkg/db"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
	"github.com/rrsoftech/agencypay-backend/pkg/media"
	"github.com/rrsoftech/agencypay-backend/pkg/metrics"
	"github.com/rrsoftech/agencypay-backend/pkg/migrate"
	"github.com/rrsoftech/agencypay-backend/pkg/redis"
	"github.com/rrsoftech/agencypay-backend/pkg/riskpay"
)

func main() {
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

	gateway, err := riskpay.NewClient(
		cfg.RiskPay.MerchantWallet,
		riskpay.WithAPIBaseURL(cfg.RiskPay.APIBaseURL),
		riskpay.WithPaymentPageURL(cfg.RiskPay.PaymentPageURL),
		riskpay.WithTimeout(cfg.RiskPay.Timeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create riskpay client", err)
		os.Exit(1)
	}

	proofStore, err := media.NewStore(cfg.Media.Dir, cfg.Media.ProofMaxUploadMB)
	if err != nil {
		logg.Error(context.Background(), "failed to create media store", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	ordersSvc, err := orders.NewService(orders.NewRepository(gormDB), dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	reconcileSvc, err := reconcile.NewService(
		transactions.NewRepository(gormDB),
		ordersSvc,
		gateway,
		proofStore,
		dbClient,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	paymentStatusJob, err := cron.NewPaymentStatusJob(cron.PaymentStatusJobParams{
		Logger:     logg,
		Reconciler: reconcileSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment status job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("payment-status"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	registry.Register(paymentStatusJob)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.PaymentPollInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
