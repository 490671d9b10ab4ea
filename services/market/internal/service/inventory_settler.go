package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"github.com/sakashimaa/book-market/services/market/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InventorySettler takes the ordered units off the shelf for a verified order.
type InventorySettler struct {
	bookRepo repository.BookRepository
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewInventorySettler(bookRepo repository.BookRepository, logger *zap.Logger) *InventorySettler {
	return &InventorySettler{
		bookRepo: bookRepo,
		logger:   logger,
		tracer:   otel.Tracer("market/inventory_settler"),
	}
}

type settleLine struct {
	bookID   int64
	title    string
	quantity int32
}

// Settle decrements every line inside a savepoint of tx. Either all lines are
// taken or none are; a line that no longer fits yields a *domain.StockError
// wrapping domain.ErrStockExhaustedAtSettlement and tx stays usable.
// Books are locked in id order so concurrent settlements cannot deadlock.
func (s *InventorySettler) Settle(ctx context.Context, tx pgx.Tx, items []domain.OrderItem) error {
	ctx, span := s.tracer.Start(ctx, "InventorySettler.Settle")
	defer span.End()

	lines := groupLines(items)
	span.SetAttributes(attribute.Int("lines", len(lines)))

	sp, err := tx.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to open settlement savepoint: %w", err)
	}
	defer rollbackTx(ctx, sp, s.logger)

	for _, line := range lines {
		err := s.bookRepo.DecreaseStock(ctx, sp, line.bookID, line.quantity)
		if err == nil {
			continue
		}

		if !errors.Is(err, repository.ErrStockConflict) {
			span.RecordError(err)
			return err
		}

		if err := sp.Rollback(ctx); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to roll back settlement savepoint: %w", err)
		}

		available, qErr := s.bookRepo.GetQuantity(ctx, tx, line.bookID)
		if qErr != nil && !errors.Is(qErr, repository.ErrBookNotFound) {
			return qErr
		}

		stockErr := &domain.StockError{
			Err:       domain.ErrStockExhaustedAtSettlement,
			BookID:    line.bookID,
			Title:     line.title,
			Requested: line.quantity,
			Available: available,
		}

		span.RecordError(stockErr)
		mylogger.Warn(
			ctx,
			s.logger,
			"Stock exhausted at settlement",
			zap.Int64("book_id", line.bookID),
			zap.Int32("requested", line.quantity),
			zap.Int32("available", available),
		)

		return stockErr
	}

	if err := sp.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to release settlement savepoint: %w", err)
	}

	return nil
}

func groupLines(items []domain.OrderItem) []settleLine {
	index := make(map[int64]int, len(items))
	lines := make([]settleLine, 0, len(items))

	for _, item := range items {
		if i, ok := index[item.BookID]; ok {
			lines[i].quantity += item.Quantity
			continue
		}

		index[item.BookID] = len(lines)
		lines = append(lines, settleLine{bookID: item.BookID, title: item.Title, quantity: item.Quantity})
	}

	sort.Slice(lines, func(i, j int) bool {
		return lines[i].bookID < lines[j].bookID
	})

	return lines
}
