package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	generalDomain "github.com/sakashimaa/book-market/pkg/domain"
	"github.com/sakashimaa/book-market/pkg/metrics"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"github.com/sakashimaa/book-market/pkg/outbox/worker"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"github.com/sakashimaa/book-market/services/market/internal/gateway"
	"github.com/sakashimaa/book-market/services/market/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// VerifyInput is what the gateway hands the client after a payment attempt.
type VerifyInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type PaymentService interface {
	Verify(ctx context.Context, caller domain.Caller, orderID int64, input VerifyInput) (*domain.Order, error)
}

type paymentService struct {
	orderRepo  repository.OrderRepository
	outboxRepo worker.OutboxRepository
	settler    *InventorySettler
	verifier   *gateway.SignatureVerifier
	catalog    CatalogService
	pool       *pgxpool.Pool
	metrics    *metrics.Checkout
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewPaymentService(
	orderRepo repository.OrderRepository,
	outboxRepo worker.OutboxRepository,
	settler *InventorySettler,
	verifier *gateway.SignatureVerifier,
	catalog CatalogService,
	pool *pgxpool.Pool,
	m *metrics.Checkout,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		settler:    settler,
		verifier:   verifier,
		catalog:    catalog,
		pool:       pool,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("market/payment_service"),
	}
}

func (s *paymentService) Verify(
	ctx context.Context,
	caller domain.Caller,
	orderID int64,
	input VerifyInput,
) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.Verify")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int64("caller_id", caller.UserID),
	)

	order, err := s.orderRepo.GetByID(ctx, s.pool, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if order.BuyerID != caller.UserID && !caller.IsAdmin() {
		mylogger.Warn(ctx, s.logger, "Verify attempted by non-buyer", zap.Int64("order_id", orderID), zap.Int64("caller_id", caller.UserID))
		return nil, domain.ErrForbidden
	}

	valid := input.GatewayOrderID == order.Payment.GatewayOrderID &&
		s.verifier.Verify(input.GatewayOrderID, input.GatewayPaymentID, input.Signature)

	switch order.Payment.Status {
	case domain.PaymentStatusCompleted:
		if valid {
			s.metrics.Verifications.WithLabelValues("duplicate").Inc()
			mylogger.Info(ctx, s.logger, "Payment already verified", zap.Int64("order_id", orderID))

			return order, nil
		}

		s.metrics.Verifications.WithLabelValues("mismatch").Inc()
		return nil, fmt.Errorf("%w: order %d", domain.ErrPaymentVerificationFailed, orderID)
	case domain.PaymentStatusFailed:
		s.metrics.Verifications.WithLabelValues("mismatch").Inc()
		return nil, fmt.Errorf("%w: payment for order %d already failed", domain.ErrPaymentVerificationFailed, orderID)
	}

	if !valid {
		return nil, s.recordFailure(ctx, order)
	}

	return s.settle(ctx, order, input)
}

// recordFailure marks a pending payment failed. The result is always ErrPaymentVerificationFailed
// unless the failure itself could not be stored.
func (s *paymentService) recordFailure(ctx context.Context, order *domain.Order) error {
	s.metrics.Verifications.WithLabelValues("mismatch").Inc()
	mylogger.Warn(ctx, s.logger, "Payment signature mismatch", zap.Int64("order_id", order.ID))

	verificationErr := fmt.Errorf("%w: order %d", domain.ErrPaymentVerificationFailed, order.ID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx, s.logger)

	if err := s.orderRepo.MarkPaymentFailed(ctx, tx, order.ID); err != nil {
		if errors.Is(err, repository.ErrStatusNotMatched) {
			return verificationErr
		}

		return err
	}

	event := generalDomain.PaymentFailedEvent{
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		GatewayOrderID: order.Payment.GatewayOrderID,
		FailedAt:       time.Now().UTC(),
	}

	if err := saveOrderEvent(ctx, tx, s.outboxRepo, order.ID, generalDomain.EventPaymentFailed, event); err != nil {
		mylogger.Error(ctx, s.logger, "Error saving outbox event", zap.Error(err))
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Error committing transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return verificationErr
}

// settle flips the payment to completed and takes stock in the same transaction.
// Only the call that wins the pending -> completed switch touches inventory.
func (s *paymentService) settle(ctx context.Context, order *domain.Order, input VerifyInput) (*domain.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx, s.logger)

	paidAt := time.Now().UTC()

	if err := s.orderRepo.MarkPaid(ctx, tx, order.ID, input.GatewayPaymentID, input.Signature, paidAt); err != nil {
		if !errors.Is(err, repository.ErrStatusNotMatched) {
			return nil, err
		}

		rollbackTx(ctx, tx, s.logger)
		return s.resolveLostRace(ctx, order.ID)
	}

	settleErr := s.settler.Settle(ctx, tx, order.Items)

	var stockErr *domain.StockError
	if errors.As(settleErr, &stockErr) && errors.Is(settleErr, domain.ErrStockExhaustedAtSettlement) {
		if err := s.markForReconciliation(ctx, tx, order, stockErr); err != nil {
			return nil, err
		}

		if err := tx.Commit(ctx); err != nil {
			mylogger.Error(ctx, s.logger, "Error committing transaction", zap.Error(err))
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}

		s.metrics.Verifications.WithLabelValues("verified").Inc()
		s.metrics.Settlements.WithLabelValues("reconciliation_required").Inc()
		mylogger.Error(
			ctx,
			s.logger,
			"Paid order needs reconciliation",
			zap.Int64("order_id", order.ID),
			zap.Int64("book_id", stockErr.BookID),
		)

		return nil, stockErr
	}
	if settleErr != nil {
		return nil, settleErr
	}

	if err := s.orderRepo.SetSettlementStatus(ctx, tx, order.ID, domain.SettlementStatusSettled); err != nil {
		return nil, err
	}

	event := generalDomain.OrderPaidEvent{
		OrderID:          order.ID,
		BuyerID:          order.BuyerID,
		BuyerEmail:       order.BuyerEmail,
		GatewayPaymentID: input.GatewayPaymentID,
		TotalAmount:      order.TotalAmount.StringFixed(2),
		Items:            eventItems(order.Items),
		PaidAt:           paidAt,
	}

	if err := saveOrderEvent(ctx, tx, s.outboxRepo, order.ID, generalDomain.EventOrderPaid, event); err != nil {
		mylogger.Error(ctx, s.logger, "Error saving outbox event", zap.Error(err))
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Error committing transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.Verifications.WithLabelValues("verified").Inc()
	s.metrics.Settlements.WithLabelValues("settled").Inc()

	bookIDs := make([]int64, 0, len(order.Items))
	for _, item := range order.Items {
		bookIDs = append(bookIDs, item.BookID)
	}
	s.catalog.Invalidate(ctx, bookIDs...)

	mylogger.Info(ctx, s.logger, "Payment verified and settled", zap.Int64("order_id", order.ID))

	return s.orderRepo.GetByID(ctx, s.pool, order.ID)
}

func (s *paymentService) markForReconciliation(
	ctx context.Context,
	tx pgx.Tx,
	order *domain.Order,
	stockErr *domain.StockError,
) error {
	if err := s.orderRepo.SetSettlementStatus(ctx, tx, order.ID, domain.SettlementStatusReconciliationRequired); err != nil {
		return err
	}

	event := generalDomain.SettlementFailedEvent{
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		BookID:        stockErr.BookID,
		Requested:     stockErr.Requested,
		Available:     stockErr.Available,
		DetectedAt:    time.Now().UTC(),
		NeedsManualOp: true,
	}

	if err := saveOrderEvent(ctx, tx, s.outboxRepo, order.ID, generalDomain.EventSettlementFailed, event); err != nil {
		mylogger.Error(ctx, s.logger, "Error saving outbox event", zap.Error(err))
		return err
	}

	return nil
}

// resolveLostRace handles a verify call that found the payment already resolved by a concurrent one.
func (s *paymentService) resolveLostRace(ctx context.Context, orderID int64) (*domain.Order, error) {
	current, err := s.orderRepo.GetByID(ctx, s.pool, orderID)
	if err != nil {
		return nil, err
	}

	if current.IsPaid() {
		s.metrics.Verifications.WithLabelValues("duplicate").Inc()
		return current, nil
	}

	return nil, fmt.Errorf("%w: order %d", domain.ErrPaymentVerificationFailed, orderID)
}
