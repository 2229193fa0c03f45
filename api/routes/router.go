package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rrsoftech/agencypay-backend/api/controllers"
	webhookcontrollers "github.com/rrsoftech/agencypay-backend/api/controllers/webhooks"
	"github.com/rrsoftech/agencypay-backend/api/middleware"
	"github.com/rrsoftech/agencypay-backend/internal/milestones"
	"github.com/rrsoftech/agencypay-backend/internal/orders"
	"github.com/rrsoftech/agencypay-backend/internal/providers"
	"github.com/rrsoftech/agencypay-backend/internal/reconcile"
	"github.com/rrsoftech/agencypay-backend/internal/settings"
	"github.com/rrsoftech/agencypay-backend/internal/transactions"
	"github.com/rrsoftech/agencypay-backend/pkg/config"
	"github.com/rrsoftech/agencypay-backend/pkg/db"
	"github.com/rrsoftech/agencypay-backend/pkg/logger"
	"github.com/rrsoftech/agencypay-backend/pkg/redis"
)

// Services groups everything the router wires into controllers.
type Services struct {
	Providers    providers.Service
	Orders       orders.Service
	Milestones   milestones.Service
	Transactions transactions.Service
	Reconcile    reconcile.Service
	Settings     settings.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	rateStore middleware.RateLimiterStore,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	webhookPolicy := middleware.NewRateLimitPolicy(
		"webhook",
		cfg.RateLimit.WebhookWindow,
		cfg.RateLimit.WebhookIPLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, rateStore, logg))
		r.Post("/riskpay", webhookcontrollers.RiskPayIPN(svcs.Reconcile, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// The provider catalog is readable without credentials; owners who do
		// send a token see inactive rows too.
		r.With(middleware.AuthOptional(cfg.JWT, logg)).
			Get("/providers", controllers.ProvidersList(svcs.Providers, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Get("/providers/{providerId}", controllers.ProviderDetail(svcs.Providers, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireOwner(logg))
				r.Post("/providers", controllers.ProviderCreate(svcs.Providers, logg))
				r.Put("/providers/{providerId}", controllers.ProviderUpdate(svcs.Providers, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.OrdersList(svcs.Orders, logg))
				r.Post("/", controllers.OrderCreate(svcs.Orders, logg))
				r.Get("/{orderId}", controllers.OrderDetail(svcs.Orders, logg))
				r.With(middleware.RequireStaff(logg)).
					Patch("/{orderId}/status", controllers.OrderUpdateStatus(svcs.Orders, logg))
			})

			r.With(middleware.RequireStaff(logg)).
				Post("/quotes/{quoteId}/convert", controllers.QuoteConvert(svcs.Orders, logg))

			r.Route("/milestones", func(r chi.Router) {
				r.Get("/", controllers.MilestonesList(svcs.Milestones, logg))
				r.Post("/{milestoneId}/initiate-payment", controllers.MilestoneInitiatePayment(svcs.Milestones, logg))
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireStaff(logg))
					r.Post("/", controllers.MilestoneCreate(svcs.Milestones, logg))
					r.Patch("/{milestoneId}", controllers.MilestoneUpdate(svcs.Milestones, logg))
				})
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", controllers.TransactionsList(svcs.Transactions, logg))
				r.Get("/{transactionId}", controllers.TransactionDetail(svcs.Transactions, logg))
				r.Post("/{transactionId}/proof", controllers.TransactionSubmitProof(svcs.Reconcile, logg))
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireStaff(logg))
					r.Post("/{transactionId}/approve", controllers.TransactionApprove(svcs.Reconcile, logg))
					r.Post("/{transactionId}/reject", controllers.TransactionReject(svcs.Reconcile, logg))
				})
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", controllers.SettingsGet(svcs.Settings, logg))
				r.With(middleware.RequireOwner(logg)).
					Put("/", controllers.SettingsUpdate(svcs.Settings, logg))
			})
		})
	})

	return r
}
