package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aurelia-commerce/storefront-backend/api/controllers"
	"github.com/aurelia-commerce/storefront-backend/api/middleware"
	"github.com/aurelia-commerce/storefront-backend/internal/history"
	internalorders "github.com/aurelia-commerce/storefront-backend/internal/orders"
	"github.com/aurelia-commerce/storefront-backend/internal/returns"
	"github.com/aurelia-commerce/storefront-backend/pkg/config"
	"github.com/aurelia-commerce/storefront-backend/pkg/logger"
	"github.com/aurelia-commerce/storefront-backend/pkg/redis"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          *redis.Client
	OrdersService  internalorders.Service
	ReturnsService returns.Service
	HistoryService history.Service
	MetricsHandler http.Handler
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", time.Minute, 30)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, pingerOrNil(deps.Redis)))
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(idempotencyStore(deps.Redis), logg))
			r.With(middleware.RateLimit(checkoutPolicy, limiterStore(deps.Redis), logg)).
				Post("/checkout", controllers.Checkout(deps.OrdersService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(idempotencyStore(deps.Redis), logg))

			r.Get("/", controllers.ListOrders(deps.OrdersService, logg))
			r.Get("/{orderID}", controllers.OrderDetail(deps.OrdersService, logg))
			r.Get("/{orderID}/history", controllers.OrderHistory(deps.OrdersService, deps.HistoryService, logg))
			r.Post("/{orderID}/confirm-payment", controllers.ConfirmPayment(deps.OrdersService, logg))
			r.Post("/{orderID}/cancel", controllers.CancelOrder(deps.OrdersService, logg))
			r.Post("/{orderID}/returns", controllers.RequestReturn(deps.ReturnsService, logg))
		})

		r.Route("/admin/orders", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireAdmin(logg))
			r.Use(middleware.Idempotency(idempotencyStore(deps.Redis), logg))

			r.Post("/{orderID}/returns/decision", controllers.DecideReturn(deps.ReturnsService, logg))
			r.Post("/{orderID}/returns/reject", controllers.RejectReturn(deps.ReturnsService, logg))
		})
	})

	return r
}

// pingerOrNil avoids handing a typed nil to the readiness check.
func pingerOrNil(client *redis.Client) controllers.Pinger {
	if client == nil {
		return nil
	}
	return client
}

func idempotencyStore(client *redis.Client) redis.IdempotencyStore {
	if client == nil {
		return nil
	}
	return client
}

func limiterStore(client *redis.Client) middleware.RateLimiterStore {
	if client == nil {
		return nil
	}
	return client
}
