package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/book-market/pkg/auth"
	"github.com/sakashimaa/book-market/pkg/config"
	"github.com/sakashimaa/book-market/pkg/db"
	"github.com/sakashimaa/book-market/pkg/kafka"
	"github.com/sakashimaa/book-market/pkg/metrics"
	outboxRepository "github.com/sakashimaa/book-market/pkg/outbox/repository"
	"github.com/sakashimaa/book-market/pkg/outbox/worker"
	"github.com/sakashimaa/book-market/pkg/utils"
	"github.com/sakashimaa/book-market/services/market/internal/gateway"
	"github.com/sakashimaa/book-market/services/market/internal/repository"
	"github.com/sakashimaa/book-market/services/market/internal/service"
	"github.com/sakashimaa/book-market/services/market/internal/transport/http"
	"github.com/sakashimaa/book-market/services/market/internal/transport/http/handler"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := utils.InitTracer(ctx, cfg.TracerOptions("market-service"))
	if err != nil {
		log.Fatalf("Failed to init trace: %v", err)
	}

	logger, err := config.NewLogger(cfg.LoggerConfig("market-service"))
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.Migrations.OnStart {
		if err := db.MigrateUp(cfg.Migrations.Path, cfg.Postgres.URL); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres.URL, db.DefaultPoolOptions())
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Error closing redis client", zap.Error(err))
		}
	}()

	producer, err := kafka.NewProducer(cfg.Kafka.BrokerList(), logger)
	if err != nil {
		logger.Fatal("Failed to create kafka producer", zap.Error(err))
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Warn("Error closing kafka producer", zap.Error(err))
		}
	}()

	tokens, err := auth.NewTokenManager(cfg.Auth.AccessSecret, 15*time.Minute)
	if err != nil {
		logger.Fatal("Failed to create token manager", zap.Error(err))
	}

	if cfg.SignatureSecret() == "" {
		logger.Fatal("Payment signature secret is not configured")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckout(registry)
	httpMetrics := metrics.NewHTTP(registry)

	bookRepo := repository.NewBookRepository(pool, logger)
	cartRepo := repository.NewCartRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(logger)

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		KeyID:     cfg.Gateway.KeyID,
		KeySecret: cfg.Gateway.KeySecret,
		Timeout:   cfg.Gateway.Timeout,
	}, logger)
	verifier := gateway.NewSignatureVerifier(cfg.SignatureSecret())

	catalog := service.NewCachedCatalogService(
		service.NewCatalogService(bookRepo, logger),
		redisClient,
		cfg.Redis.CacheTTL,
		logger,
	)
	cartService := service.NewCartService(cartRepo, bookRepo, catalog, pool, logger)
	checkoutService := service.NewCheckoutService(
		orderRepo,
		bookRepo,
		outboxRepo,
		gatewayClient,
		pool,
		cfg.Gateway.Currency,
		checkoutMetrics,
		logger,
	)
	paymentService := service.NewPaymentService(
		orderRepo,
		outboxRepo,
		service.NewInventorySettler(bookRepo, logger),
		verifier,
		catalog,
		pool,
		checkoutMetrics,
		logger,
	)
	orderService := service.NewOrderService(orderRepo, outboxRepo, pool, logger)

	processor := worker.NewOutboxProcessor(pool, outboxRepo, producer, logger)

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTP.Timeout,
		WriteTimeout: cfg.HTTP.Timeout,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(otelfiber.Middleware())
	app.Use(httpMetrics.Middleware())
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Limiter.Max,
		Expiration: cfg.Limiter.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	handlers := &http.Handlers{
		Book:   handler.NewBookHandler(catalog, cfg.HTTP.Timeout, logger),
		Cart:   handler.NewCartHandler(cartService, cfg.HTTP.Timeout, logger),
		Order:  handler.NewOrderHandler(checkoutService, paymentService, orderService, cfg.HTTP.Timeout, logger),
		Seller: handler.NewSellerHandler(orderService, cfg.HTTP.Timeout, logger),
	}

	http.RegisterRoutes(app, handlers, tokens, registry)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return processor.Start(gCtx)
	})

	g.Go(func() error {
		logger.Info("HTTP Service listening", zap.String("port", cfg.HTTP.Port))
		return app.Listen(cfg.HTTP.Port)
	})

	g.Go(func() error {
		<-gCtx.Done()

		logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("Error shutting down HTTP app", zap.Error(err))
		}

		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error shutting down telemetry", zap.Error(err))
		}

		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Market service stopped with error", zap.Error(err))
	}

	logger.Info("Market service stopped")
}
