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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aurelia-commerce/storefront-backend/api/routes"
	"github.com/aurelia-commerce/storefront-backend/internal/history"
	"github.com/aurelia-commerce/storefront-backend/internal/inventory"
	"github.com/aurelia-commerce/storefront-backend/internal/notify"
	internalorders "github.com/aurelia-commerce/storefront-backend/internal/orders"
	"github.com/aurelia-commerce/storefront-backend/internal/payments"
	"github.com/aurelia-commerce/storefront-backend/internal/returns"
	"github.com/aurelia-commerce/storefront-backend/pkg/config"
	"github.com/aurelia-commerce/storefront-backend/pkg/db"
	"github.com/aurelia-commerce/storefront-backend/pkg/logger"
	"github.com/aurelia-commerce/storefront-backend/pkg/metrics"
	"github.com/aurelia-commerce/storefront-backend/pkg/migrate"
	"github.com/aurelia-commerce/storefront-backend/pkg/pubsub"
	"github.com/aurelia-commerce/storefront-backend/pkg/redis"
	"github.com/aurelia-commerce/storefront-backend/pkg/square"
)

const shutdownGrace = 15 * time.Second

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

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square", err)
		os.Exit(1)
	}

	provider, err := payments.NewSquareProvider(squareClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment provider", err)
		os.Exit(1)
	}

	dispatcher := buildDispatcher(cfg, logg)

	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)

	historyService, err := history.NewService(history.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create history service", err)
		os.Exit(1)
	}

	ordersRepo := internalorders.NewRepository(dbClient.DB())
	ordersService, err := internalorders.NewService(internalorders.ServiceParams{
		Repo:       ordersRepo,
		Tx:         dbClient,
		Inventory:  inventory.NewAdjuster(),
		History:    historyService,
		Provider:   provider,
		Dispatcher: dispatcher,
		Metrics:    orderMetrics,
		Logger:     logg,
		Checkout:   cfg.Checkout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	returnsService, err := returns.NewService(returns.ServiceParams{
		Repo:       ordersRepo,
		Tx:         dbClient,
		Inventory:  inventory.NewAdjuster(),
		History:    historyService,
		Provider:   provider,
		Dispatcher: dispatcher,
		Metrics:    orderMetrics,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create returns service", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(routes.Deps{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		OrdersService:  ordersService,
		ReturnsService: returnsService,
		HistoryService: historyService,
		MetricsHandler: promhttp.Handler(),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

// buildDispatcher wires the pub/sub event fan-out when a project is
// configured and degrades to a logged no-op otherwise.
func buildDispatcher(cfg *config.Config, logg *logger.Logger) notify.Dispatcher {
	if cfg.GCP.ProjectID == "" {
		logg.Warn(context.Background(), "pubsub project not configured, order events disabled")
		return nil
	}

	client, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}

	dispatcher, err := notify.NewPubSubDispatcher(client.OrderEventsPublisher())
	if err != nil {
		logg.Error(context.Background(), "failed to create event dispatcher", err)
		os.Exit(1)
	}
	return notify.NewBestEffort(dispatcher, logg)
}
