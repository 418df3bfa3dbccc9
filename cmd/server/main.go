package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-payments/internal/config"
	"storefront-payments/internal/database"
	"storefront-payments/internal/gateway"
	"storefront-payments/internal/handlers"
	"storefront-payments/internal/kafka"
	"storefront-payments/internal/logger"
	"storefront-payments/internal/metrics"
	"storefront-payments/internal/models"
	"storefront-payments/internal/redis"
	"storefront-payments/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Фабричные функции для подключения внешних сервисов
var (
	dbConnect        = database.Connect
	redisConnect     = redis.Connect
	newKafkaProducer = kafka.NewProducer
	newKafkaConsumer = kafka.NewConsumer
	loadConfig       = config.Load
	newLogger        = logger.New
)

// application агрегирует собранные зависимости
type application struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
	server   *http.Server
}

// routeHandlers собирает обработчики для роутера
type routeHandlers struct {
	orders    *handlers.OrderHandler
	coupons   *handlers.CouponHandler
	payments  *handlers.PaymentHandler
	settings  *handlers.SettingsHandler
	health    *handlers.HealthHandler
	rateLimit *handlers.RateLimitHandler
}

func main() {
	app, err := buildApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build app: %v\n", err)
		os.Exit(1)
	}
	app.log.Info("Starting storefront payments server...")

	go func() {
		app.log.WithField("address", app.server.Addr).Info("HTTP server starting")
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.server.Shutdown(ctx); err != nil {
		app.log.WithError(err).Error("Server forced to shutdown")
	}
	app.close()
	app.log.Info("Server exited")
}

func (a *application) close() {
	if err := a.consumer.Stop(); err != nil {
		a.log.WithError(err).Warn("Failed to stop Kafka consumer")
	}
	_ = a.producer.Close()
	_ = a.redis.Close()
	_ = a.db.Close()
}

// buildApplication создает все зависимости
func buildApplication() (*application, error) {
	cfg := loadConfig()
	log := newLogger(&cfg.Logger)
	for _, warning := range cfg.Warnings() {
		log.Warn(warning)
	}

	db, err := dbConnect(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db migrate: %w", err)
		}
		log.Info("Database schema is up to date")
	}

	redisClient, err := redisConnect(&cfg.Redis, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	producer, err := newKafkaProducer(&cfg.Kafka, log)
	if err != nil {
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	consumer, err := newKafkaConsumer(&cfg.Kafka, log)
	if err != nil {
		_ = producer.Close()
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	orderTTL := time.Duration(cfg.Cache.OrderTTLMinutes) * time.Minute
	settingsTTL := time.Duration(cfg.Cache.SettingsTTLMinutes) * time.Minute

	settingsService := services.NewSettingsService(db, log, redisClient, &cfg.Shipping, settingsTTL)
	couponService := services.NewCouponService(db, log, producer, m)
	inventoryService := services.NewInventoryService(log)
	orderService := services.NewOrderService(db, log, couponService, settingsService, inventoryService, producer, m)
	paymentService := services.NewPaymentService(gateway.NewRazorpay(&cfg.Payments, log), orderService, redisClient,
		&cfg.Payments, producer, log, m)
	rateLimiter := services.NewRateLimiter(redisClient, log, &cfg.RateLimit)

	h := routeHandlers{
		orders:    handlers.NewOrderHandler(orderService, paymentService, redisClient, orderTTL, log),
		coupons:   handlers.NewCouponHandler(couponService, log),
		payments:  handlers.NewPaymentHandler(paymentService, log),
		settings:  handlers.NewSettingsHandler(settingsService, log),
		health:    handlers.NewHealthHandler(db, redisClient, cfg.Kafka.Brokers, handlers.CheckKafkaHealth),
		rateLimit: handlers.NewRateLimitHandler(rateLimiter, log),
	}

	registerEventHandlers(consumer, redisClient, log)
	if err := consumer.Start(); err != nil {
		_ = consumer.Stop()
		_ = producer.Close()
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka consumer start: %w", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      setupRoutes(h, rateLimiter, m, log),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &application{
		cfg:      cfg,
		log:      log,
		db:       db,
		redis:    redisClient,
		producer: producer,
		consumer: consumer,
		server:   server,
	}, nil
}

// setupRoutes настраивает маршруты HTTP сервера
func setupRoutes(h routeHandlers, limiter handlers.RateLimiter, m *metrics.Metrics, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(corsMiddleware)

	r.Get("/health", h.health.Health)
	r.Get("/health/readiness", h.health.Readiness)
	r.Get("/health/liveness", h.health.Liveness)
	r.Handle("/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(handlers.Identity)
		r.Use(handlers.RateLimitMiddleware(limiter, log))

		r.Get("/rate-limit/status", h.rateLimit.Status)

		r.Route("/coupons", func(r chi.Router) {
			r.Post("/validate", h.coupons.Validate)
			r.With(handlers.RequireUser).Post("/use", h.coupons.Use)

			r.Group(func(r chi.Router) {
				r.Use(handlers.RequireAdmin)
				r.Get("/", h.coupons.List)
				r.Post("/", h.coupons.Create)
				r.Get("/{id}", h.coupons.Get)
				r.Put("/{id}", h.coupons.Update)
				r.Delete("/{id}", h.coupons.Delete)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/quote", h.orders.Quote)
			r.With(handlers.RequireUser).Post("/", h.orders.CreateOrder)
			r.With(handlers.RequireAdmin).Get("/", h.orders.GetOrders)
			r.With(handlers.RequireUser).Get("/mine", h.orders.GetMyOrders)
			r.With(handlers.RequireUser).Get("/{id}", h.orders.GetOrder)
			r.With(handlers.RequireUser).Put("/{id}/pay", h.orders.PayOrder)
			r.With(handlers.RequireAdmin).Put("/{id}/deliver", h.orders.DeliverOrder)
			r.With(handlers.RequireAdmin).Put("/{id}/status", h.orders.UpdateOrderStatus)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/webhook", h.payments.Webhook)
			r.With(handlers.RequireUser).Post("/create-order", h.payments.CreateIntent)
			r.With(handlers.RequireUser).Post("/verify", h.payments.Verify)
			r.With(handlers.RequireAdmin).Post("/refund", h.payments.Refund)
			r.With(handlers.RequireAdmin).Get("/{paymentId}", h.payments.GetPayment)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/shipping", h.settings.GetShipping)
			r.With(handlers.RequireAdmin).Put("/shipping", h.settings.UpdateShipping)
		})
	})

	return r
}

// registerEventHandlers сбрасывает кеш заказа по событиям заказов, в том числе от других реплик
func registerEventHandlers(consumer *kafka.Consumer, cache handlers.OrderCache, log *logger.Logger) {
	invalidate := func(ctx context.Context, event *models.Event) error {
		var data models.OrderEventData
		if err := kafka.DecodeEventData(event, &data); err != nil {
			return err
		}
		if err := cache.Delete(ctx, redis.OrderKey(data.OrderID.String())); err != nil {
			return fmt.Errorf("failed to invalidate order cache: %w", err)
		}
		log.WithField("event_id", event.ID).WithField("order_id", data.OrderID).Debug("Order cache invalidated")
		return nil
	}

	for _, eventType := range []models.EventType{
		models.EventTypeOrderPaid,
		models.EventTypeOrderDelivered,
		models.EventTypeOrderStatusChanged,
		models.EventTypeOrderRefunded,
	} {
		consumer.RegisterHandler(eventType, invalidate)
	}

	consumer.RegisterHandler(models.EventTypePaymentFailed, func(ctx context.Context, event *models.Event) error {
		var data models.PaymentEventData
		if err := kafka.DecodeEventData(event, &data); err != nil {
			return err
		}
		log.WithField("event_id", event.ID).WithField("payment_id", data.ProviderPaymentID).WithField("reason", data.Reason).Info("Payment failure recorded")
		return nil
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-User-Admin, X-Razorpay-Signature")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
