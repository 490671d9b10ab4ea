package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sakashimaa/book-market/pkg/config"
	"github.com/sakashimaa/book-market/pkg/db"
	"github.com/sakashimaa/book-market/pkg/utils"
	"github.com/sakashimaa/book-market/services/notification/internal/infrastructure/email"
	"github.com/sakashimaa/book-market/services/notification/internal/service"
	"github.com/sakashimaa/book-market/services/notification/internal/transport/kafka"
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

	tp, err := utils.InitTracer(ctx, cfg.TracerOptions("notification-service"))
	if err != nil {
		log.Fatalf("Error starting telemetry: %v", err)
	}

	logger, err := config.NewLogger(cfg.LoggerConfig("notification-service"))
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

	if cfg.SMTP.OpsEmail == "" {
		logger.Warn("OPS_EMAIL is not set, settlement failures will only be logged")
	}

	emailSender := email.NewSMTPSender(cfg.SMTP, logger)
	notificationService := service.NewNotificationService(emailSender, cfg.SMTP.OpsEmail, logger, pool)
	consumer := kafka.NewConsumer(notificationService, logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Notification consumer started", zap.Strings("brokers", cfg.Kafka.BrokerList()))
		return consumer.Start(gCtx, cfg.Kafka.BrokerList(), cfg.Kafka.GroupID)
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error closing telemetry", zap.Error(err))
		}

		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Notification service stopped with error", zap.Error(err))
	}

	logger.Info("Notification service stopped")
}
