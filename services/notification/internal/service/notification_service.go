package service

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	generalDomain "github.com/sakashimaa/book-market/pkg/domain"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	outboxUtils "github.com/sakashimaa/book-market/pkg/outbox/utils"
	"github.com/sakashimaa/book-market/services/notification/internal/domain"
	"github.com/sakashimaa/book-market/services/notification/internal/infrastructure/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type NotificationService struct {
	emailSender email.Sender
	opsEmail    string
	logger      *zap.Logger
	pool        *pgxpool.Pool
	tracer      trace.Tracer
}

func NewNotificationService(emailSender email.Sender, opsEmail string, logger *zap.Logger, pool *pgxpool.Pool) *NotificationService {
	return &NotificationService{
		emailSender: emailSender,
		opsEmail:    opsEmail,
		logger:      logger,
		pool:        pool,
		tracer:      otel.Tracer("notification-service"),
	}
}

func (s *NotificationService) HandleOrderPaid(ctx context.Context, eventID int64, event generalDomain.OrderPaidEvent) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandleOrderPaid")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.Int64("order_id", event.OrderID),
	)

	return s.deliver(ctx, eventID, orderPaidEmail(event))
}

func (s *NotificationService) HandleOrderStatusChanged(ctx context.Context, eventID int64, event generalDomain.OrderStatusChangedEvent) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandleOrderStatusChanged")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.Int64("order_id", event.OrderID),
		attribute.String("status", event.To),
	)

	return s.deliver(ctx, eventID, statusChangedEmail(event))
}

func (s *NotificationService) HandleSettlementFailed(ctx context.Context, eventID int64, event generalDomain.SettlementFailedEvent) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandleSettlementFailed")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.Int64("order_id", event.OrderID),
	)

	mylogger.Error(
		ctx,
		s.logger,
		"Order needs manual reconciliation",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("book_id", event.BookID),
	)

	return s.deliver(ctx, eventID, settlementFailedEmail(s.opsEmail, event))
}

// deliver sends msg at most once per event. Emails without a recipient are dropped.
func (s *NotificationService) deliver(ctx context.Context, eventID int64, msg domain.Email) error {
	if msg.To == "" {
		mylogger.Warn(ctx, s.logger, "No recipient for notification, skipping", zap.Int64("event_id", eventID), zap.String("subject", msg.Subject))
		return nil
	}

	return outboxUtils.ProcessWithDeduplication(ctx, s.pool, s.logger, domain.ConsumerName, eventID, func(ctx context.Context) error {
		return s.emailSender.Send(ctx, msg)
	})
}
