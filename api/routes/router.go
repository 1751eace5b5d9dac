package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/varunnair-io/distriflow-backend/api/controllers"
	"github.com/varunnair-io/distriflow-backend/api/middleware"
	"github.com/varunnair-io/distriflow-backend/internal/credit"
	"github.com/varunnair-io/distriflow-backend/internal/integrations"
	"github.com/varunnair-io/distriflow-backend/internal/orders"
	"github.com/varunnair-io/distriflow-backend/pkg/config"
	"github.com/varunnair-io/distriflow-backend/pkg/db"
	"github.com/varunnair-io/distriflow-backend/pkg/enums"
	"github.com/varunnair-io/distriflow-backend/pkg/logger"
	"github.com/varunnair-io/distriflow-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	ordersSvc orders.Service,
	creditSvc credit.Service,
	integrationsSvc integrations.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrderList(ordersSvc, logg))
			r.Post("/", controllers.OrderCreate(ordersSvc, logg))
			r.Get("/{orderId}", controllers.OrderDetail(ordersSvc, logg))
			r.Post("/{orderId}/transition", controllers.OrderTransition(ordersSvc, logg))
			r.Post("/{orderId}/returns", controllers.OrderReturn(ordersSvc, logg))
		})

		r.Route("/credit", func(r chi.Router) {
			r.Get("/summary", controllers.CreditSummary(creditSvc, logg))
			r.Get("/aging", controllers.CreditAging(creditSvc, logg))
			r.Post("/payments", controllers.CreditRecordPayment(creditSvc, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.RoleAdmin), logg))

		r.Post("/orders/{orderId}/release-hold", controllers.OrderReleaseHold(ordersSvc, logg))
		r.Put("/distributors/{distributorId}/credit-limit", controllers.CreditUpdateLimit(creditSvc, logg))

		r.Route("/integrations", func(r chi.Router) {
			r.Route("/webhooks", func(r chi.Router) {
				r.Get("/", controllers.WebhookList(integrationsSvc, logg))
				r.Post("/", controllers.WebhookRegister(integrationsSvc, logg))
				r.Post("/{webhookId}/active", controllers.WebhookSetActive(integrationsSvc, logg))
			})
			r.Get("/deliveries", controllers.DeliveryList(integrationsSvc, logg))
		})
	})

	return r
}
