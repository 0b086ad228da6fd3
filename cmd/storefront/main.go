package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/joao-fontenele/storefront/internal/accounts"
	"github.com/joao-fontenele/storefront/internal/cache"
	"github.com/joao-fontenele/storefront/internal/catalog"
	"github.com/joao-fontenele/storefront/internal/checkout"
	"github.com/joao-fontenele/storefront/internal/config"
	"github.com/joao-fontenele/storefront/internal/messaging"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/payment"
	"github.com/joao-fontenele/storefront/internal/pricing"
	"github.com/joao-fontenele/storefront/internal/telemetry"
	"github.com/joao-fontenele/storefront/internal/webhook"
)

const (
	serviceName    = "storefront"
	serviceVersion = "0.1.0"
)

func main() {
	ctx := context.Background()
	logger := telemetry.NewLogger(serviceName)

	cfg, err := config.LoadStorefront()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	metrics, err := telemetry.NewStorefrontMetrics(otel.Meter(serviceName))
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	dsn, err := config.WithSearchPath(cfg.PostgresURL, config.Schema)
	if err != nil {
		logger.Error("invalid POSTGRES_URL", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", dsn)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var publisher checkout.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderConfirmed)
		defer func() { _ = producer.Close() }()
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, order confirmations will not be published")
	}

	var events webhook.EventLog
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, relying on database guard only", "error", err)
		}
		events = cache.NewEventLog(cache.NewRedisCache(rdb, serviceName), cache.DefaultEventTTL)
	}

	stripe := payment.NewStripe(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		APIURL:        cfg.StripeAPIURL,
		HTTPClient:    payment.NewHTTPClient(cfg.ProviderTimeout, otelhttp.NewTransport(http.DefaultTransport)),
		Logger:        logger,
	})

	accountRepo := accounts.NewRepository(db)
	productRepo := catalog.NewProductRepository(db)
	orderRepo := orders.NewOrderRepository(db, accountRepo)

	checkoutService := checkout.NewService(
		pricing.NewEngine(productRepo, cfg.SurchargeBasisPoints),
		orderRepo,
		accountRepo,
		stripe,
		publisher,
		metrics,
		checkout.Options{
			Currency:        cfg.Currency,
			MinorUnits:      cfg.MinorUnits,
			ProviderTimeout: cfg.ProviderTimeout,
			SessionTTL:      cfg.CheckoutSessionTTL,
		},
		logger,
	)

	checkoutHandler := checkout.NewHandler(checkoutService, cfg.ReturnOrigin, logger)
	webhookHandler := webhook.NewHandler(stripe, orderRepo, events, publisher, metrics, logger)
	ordersHandler := orders.NewHandler(orderRepo, logger)
	catalogHandler := catalog.NewHandler(productRepo, logger)
	seller := accounts.RequireSeller(cfg.SellerAPIKey)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/order/cod", telemetry.WithHTTPRoute(accounts.RequireBuyer(checkoutHandler.HandlePlaceCOD)))
	mux.HandleFunc("POST /api/order/stripe", telemetry.WithHTTPRoute(accounts.RequireBuyer(checkoutHandler.HandlePlaceOnline)))
	mux.HandleFunc("POST /api/order/webhook/stripe", telemetry.WithHTTPRoute(webhookHandler.HandleStripe))
	mux.HandleFunc("GET /api/order/user", telemetry.WithHTTPRoute(accounts.RequireBuyer(ordersHandler.HandleListOwn)))
	mux.HandleFunc("GET /api/order/seller", telemetry.WithHTTPRoute(seller(ordersHandler.HandleListAll)))
	mux.HandleFunc("GET /api/product/list", telemetry.WithHTTPRoute(catalogHandler.HandleList))
	mux.HandleFunc("GET /api/product/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleGet))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 10*time.Second,
	}

	go func() {
		logger.Info("starting storefront service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
