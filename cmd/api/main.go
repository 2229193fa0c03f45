package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/rrsoftech/agencypay-backend/api/routes"
	"github.com/rrsoftech/agencypay-backend/internal/milestones"
	"github.com/rrsoftech/agencypay-backend/internal/orders"
	"github.com/rrsoftech/agencypay-backend/internal/providers"
	"github.com/rrsoftech/agencypay-backend/internal/reconcile"
	"github.com/rrsoftech/agencypay-backend/internal/settings"
	"github.com/rrsoftech/agencypay-backend/internal/transactions"
	"github.com/rrsoftech/agencypay-backend/pkg/config"
	"github.com/rrsoftech/agencypay-backend/pkg/db"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
	"github.com/rrsoftech/agencypay-backend/pkg/media"
	"github.com/rrsoftech/agencypay-backend/pkg/migrate"
	"github.com/rrsoftech/agencypay-backend/pkg/redis"
	"github.com/rrsoftech/agencypay-backend/pkg/riskpay"
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
	providersRepo := providers.NewRepository(gormDB)
	ordersRepo := orders.NewRepository(gormDB)
	milestonesRepo := milestones.NewRepository(gormDB)
	transactionsRepo := transactions.NewRepository(gormDB)
	settingsRepo := settings.NewRepository(gormDB)

	providersSvc, err := providers.NewService(providersRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create providers service", err)
		os.Exit(1)
	}

	ordersSvc, err := orders.NewService(ordersRepo, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	milestonesSvc, err := milestones.NewService(
		milestonesRepo,
		providersRepo,
		ordersSvc,
		gateway,
		dbClient,
		logg,
		cfg.RiskPay.CallbackURL,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create milestones service", err)
		os.Exit(1)
	}

	transactionsSvc, err := transactions.NewService(transactionsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create transactions service", err)
		os.Exit(1)
	}

	reconcileSvc, err := reconcile.NewService(transactionsRepo, ordersSvc, gateway, proofStore, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	settingsSvc, err := settings.NewService(settingsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	handler := routes.NewRouter(cfg, logg, dbClient, redisClient, redisClient, routes.Services{
		Providers:    providersSvc,
		Orders:       ordersSvc,
		Milestones:   milestonesSvc,
		Transactions: transactionsSvc,
		Reconcile:    reconcileSvc,
		Settings:     settingsSvc,
	})

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
