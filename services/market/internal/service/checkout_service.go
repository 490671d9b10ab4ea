package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
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

type CheckoutInput struct {
	BuyerID         int64
	BuyerEmail      string
	Items           []domain.CartItem
	ShippingAddress domain.ShippingAddress
}

type CheckoutResult struct {
	OrderID        int64  `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Key            string `json:"key"`
}

type CheckoutService interface {
	Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
}

type checkoutService struct {
	orderRepo  repository.OrderRepository
	bookRepo   repository.BookRepository
	outboxRepo worker.OutboxRepository
	gateway    gateway.Client
	pool       *pgxpool.Pool
	currency   string
	metrics    *metrics.Checkout
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewCheckoutService(
	orderRepo repository.OrderRepository,
	bookRepo repository.BookRepository,
	outboxRepo worker.OutboxRepository,
	gatewayClient gateway.Client,
	pool *pgxpool.Pool,
	currency string,
	m *metrics.Checkout,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutService{
		orderRepo:  orderRepo,
		bookRepo:   bookRepo,
		outboxRepo: outboxRepo,
		gateway:    gatewayClient,
		pool:       pool,
		currency:   currency,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("market/checkout_service"),
	}
}

func newReceipt() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Checkout turns the requested lines into a pending order with a gateway intent.
// Nothing is persisted unless every line is valid and the intent was created,
// and stock is left untouched until payment is verified.
func (s *checkoutService) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.Checkout")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("buyer_id", input.BuyerID),
		attribute.Int("items_count", len(input.Items)),
	)

	order, err := s.buildOrder(ctx, input)
	if err != nil {
		s.metrics.Checkouts.WithLabelValues("rejected").Inc()
		span.RecordError(err)

		return nil, err
	}

	receipt := newReceipt()

	start := time.Now()
	intent, err := s.gateway.CreateIntent(ctx, order.AmountMinor(), order.Currency, receipt)
	s.metrics.GatewayLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Checkouts.WithLabelValues("gateway_error").Inc()
		span.RecordError(err)
		mylogger.Warn(ctx, s.logger, "Failed to create payment intent", zap.String("receipt", receipt), zap.Error(err))

		return nil, err
	}

	order.Payment.GatewayOrderID = intent.ID

	if err := s.persist(ctx, order); err != nil {
		s.metrics.Checkouts.WithLabelValues("error").Inc()
		span.RecordError(err)

		return nil, err
	}

	s.metrics.Checkouts.WithLabelValues("created").Inc()
	mylogger.Info(
		ctx,
		s.logger,
		"Order created",
		zap.Int64("order_id", order.ID),
		zap.String("gateway_order_id", intent.ID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)

	return &CheckoutResult{
		OrderID:        order.ID,
		GatewayOrderID: intent.ID,
		Amount:         order.AmountMinor(),
		Currency:       order.Currency,
		Key:            s.gateway.KeyID(),
	}, nil
}

func (s *checkoutService) buildOrder(ctx context.Context, input CheckoutInput) (*domain.Order, error) {
	if len(input.Items) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	lines := domain.MergeItems(input.Items)

	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.BookID)
	}

	books, err := s.bookRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		BuyerID:          input.BuyerID,
		BuyerEmail:       input.BuyerEmail,
		ShippingAddress:  input.ShippingAddress,
		Currency:         s.currency,
		Status:           domain.OrderStatusPending,
		SettlementStatus: domain.SettlementStatusNone,
		Payment: domain.PaymentRecord{
			Status: domain.PaymentStatusPending,
		},
		Items: make([]domain.OrderItem, 0, len(lines)),
	}

	for _, line := range lines {
		book, ok := books[line.BookID]
		if !ok {
			return nil, fmt.Errorf("%w: book %d", domain.ErrBookNotFound, line.BookID)
		}

		if line.Quantity < 1 {
			return nil, domain.NewStockError(domain.ErrInvalidQuantity, book, line.Quantity)
		}

		if !book.CanFulfil(line.Quantity) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Insufficient stock at checkout",
				zap.Int64("book_id", book.ID),
				zap.Int32("requested", line.Quantity),
				zap.Int32("available", book.Quantity),
			)

			return nil, domain.NewStockError(domain.ErrInsufficientStock, book, line.Quantity)
		}

		order.Items = append(order.Items, domain.OrderItem{
			BookID:   book.ID,
			SellerID: book.SellerID,
			Title:    book.Title,
			Price:    book.Price,
			Quantity: line.Quantity,
		})
	}

	order.CalculateTotal()

	return order, nil
}

func (s *checkoutService) persist(ctx context.Context, order *domain.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx, s.logger)

	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return fmt.Errorf("error creating order: %w", err)
	}

	event := generalDomain.OrderCreatedEvent{
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		GatewayOrderID: order.Payment.GatewayOrderID,
		TotalAmount:    order.TotalAmount.StringFixed(2),
		Currency:       order.Currency,
		Items:          eventItems(order.Items),
		CreatedAt:      order.CreatedAt,
	}

	if err := saveOrderEvent(ctx, tx, s.outboxRepo, order.ID, generalDomain.EventOrderCreated, event); err != nil {
		mylogger.Error(ctx, s.logger, "Error saving outbox event", zap.Error(err))
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			mylogger.Warn(ctx, s.logger, "Checkout cancelled before commit", zap.String("gateway_order_id", order.Payment.GatewayOrderID))
		} else {
			mylogger.Error(ctx, s.logger, "Error committing transaction", zap.Error(err))
		}

		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
