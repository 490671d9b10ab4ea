package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	generalDomain "github.com/sakashimaa/book-market/pkg/domain"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"github.com/sakashimaa/book-market/pkg/outbox/worker"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"github.com/sakashimaa/book-market/services/market/internal/repository"
	"go.uber.org/zap"
)

type OrderService interface {
	GetOrder(ctx context.Context, caller domain.Caller, orderID int64) (*domain.Order, error)
	ListBuyerOrders(ctx context.Context, caller domain.Caller) ([]*domain.Order, error)
	ListSellerOrders(ctx context.Context, caller domain.Caller) ([]*domain.Order, error)
	SellerStats(ctx context.Context, caller domain.Caller) (*domain.SellerStats, error)
	UpdateStatus(ctx context.Context, caller domain.Caller, orderID int64, status domain.OrderStatus) (*domain.Order, error)
}

type orderService struct {
	orderRepo  repository.OrderRepository
	outboxRepo worker.OutboxRepository
	pool       *pgxpool.Pool
	logger     *zap.Logger
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	outboxRepo worker.OutboxRepository,
	pool *pgxpool.Pool,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		pool:       pool,
		logger:     logger,
	}
}

func (s *orderService) GetOrder(ctx context.Context, caller domain.Caller, orderID int64) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, s.pool, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			s.logger.Warn("order not found", zap.Int64("order_id", orderID))
		}

		return nil, err
	}

	if !order.CanRead(caller) {
		return nil, domain.ErrForbidden
	}

	return order, nil
}

func (s *orderService) ListBuyerOrders(ctx context.Context, caller domain.Caller) ([]*domain.Order, error) {
	return s.orderRepo.ListByBuyer(ctx, caller.UserID)
}

func (s *orderService) ListSellerOrders(ctx context.Context, caller domain.Caller) ([]*domain.Order, error) {
	if !caller.IsSeller() && !caller.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	return s.orderRepo.ListBySeller(ctx, caller.UserID)
}

func (s *orderService) SellerStats(ctx context.Context, caller domain.Caller) (*domain.SellerStats, error) {
	if !caller.IsSeller() && !caller.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	return s.orderRepo.SellerStats(ctx, caller.UserID)
}

// UpdateStatus advances a paid order along the fulfilment graph. The write is a
// compare-and-set on the status that was read, so a concurrent change surfaces
// as ErrStatusConflict instead of being overwritten.
func (s *orderService) UpdateStatus(
	ctx context.Context,
	caller domain.Caller,
	orderID int64,
	status domain.OrderStatus,
) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, s.pool, orderID)
	if err != nil {
		return nil, err
	}

	if !order.CanManage(caller) {
		mylogger.Warn(ctx, s.logger, "Status change forbidden", zap.Int64("order_id", orderID), zap.Int64("caller_id", caller.UserID))
		return nil, domain.ErrForbidden
	}

	if !order.IsPaid() {
		return nil, fmt.Errorf("%w: order %d", domain.ErrUnpaidOrder, orderID)
	}

	if err := domain.ValidateTransition(order.Status, status); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx, s.logger)

	if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, order.Status, status); err != nil {
		if errors.Is(err, repository.ErrStatusNotMatched) {
			return nil, fmt.Errorf("%w: order %d", domain.ErrStatusConflict, orderID)
		}

		return nil, err
	}

	event := generalDomain.OrderStatusChangedEvent{
		OrderID:    order.ID,
		BuyerID:    order.BuyerID,
		BuyerEmail: order.BuyerEmail,
		From:       string(order.Status),
		To:         string(status),
		ChangedBy:  caller.UserID,
		ChangedAt:  time.Now().UTC(),
	}

	if err := saveOrderEvent(ctx, tx, s.outboxRepo, order.ID, generalDomain.EventOrderStatusChanged, event); err != nil {
		mylogger.Error(ctx, s.logger, "Error saving outbox event", zap.Error(err))
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Error committing transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order status changed",
		zap.Int64("order_id", orderID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(status)),
	)

	return s.orderRepo.GetByID(ctx, s.pool, orderID)
}
