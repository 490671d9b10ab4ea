package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	generalDomain "github.com/sakashimaa/book-market/pkg/domain"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/book-market/pkg/outbox/domain"
	"github.com/sakashimaa/book-market/pkg/outbox/worker"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"go.uber.org/zap"
)

func rollbackTx(ctx context.Context, tx pgx.Tx, logger *zap.Logger) {
	cleanupCtx := context.WithoutCancel(ctx)

	if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		mylogger.Warn(cleanupCtx, logger, "Error rolling back transaction", zap.Error(err))
	}
}

// saveOrderEvent writes an order_events message into the outbox inside tx.
func saveOrderEvent(
	ctx context.Context,
	tx pgx.Tx,
	outboxRepo worker.OutboxRepository,
	orderID int64,
	eventType string,
	payload any,
) error {
	event, err := outboxDomain.NewEvent(
		generalDomain.OrderEventsTopic,
		"Order",
		strconv.FormatInt(orderID, 10),
		eventType,
		payload,
	)
	if err != nil {
		return err
	}

	if err := outboxRepo.SaveOutboxEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}

func eventItems(items []domain.OrderItem) []generalDomain.OrderItem {
	res := make([]generalDomain.OrderItem, 0, len(items))
	for _, item := range items {
		res = append(res, generalDomain.OrderItem{
			BookID:   item.BookID,
			SellerID: item.SellerID,
			Title:    item.Title,
			Price:    item.Price.StringFixed(2),
			Quantity: item.Quantity,
		})
	}

	return res
}
