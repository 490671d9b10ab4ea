package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CartRepository interface {
	EnsureCart(ctx context.Context, db DBTX, userID int64) error
	ListItems(ctx context.Context, userID int64) ([]domain.CartItem, error)
	UpsertItem(ctx context.Context, tx pgx.Tx, userID, bookID int64, quantity, limit int32) (int32, error)
	SetItemQuantity(ctx context.Context, tx pgx.Tx, userID, bookID int64, quantity int32) error
	RemoveItem(ctx context.Context, tx pgx.Tx, userID, bookID int64) error
	ReplaceItems(ctx context.Context, tx pgx.Tx, userID int64, items []domain.CartItem) error
	Clear(ctx context.Context, userID int64) error
	PruneUnavailable(ctx context.Context, tx pgx.Tx, userID int64) (int64, error)
}

type cartRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewCartRepository(pool *pgxpool.Pool, logger *zap.Logger) CartRepository {
	return &cartRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("market/cart_repository"),
	}
}

func (r *cartRepo) EnsureCart(ctx context.Context, db DBTX, userID int64) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.EnsureCart")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	query := `
		INSERT INTO carts (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`

	if _, err := db.Exec(ctx, query, userID); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to ensure cart", zap.Int64("user_id", userID), zap.Error(err))

		return fmt.Errorf("error creating cart: %w", err)
	}

	return nil
}

func (r *cartRepo) ListItems(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.ListItems")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	query := `
		SELECT book_id, quantity
		FROM cart_items
		WHERE user_id = $1
		ORDER BY book_id
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query cart items", zap.Error(err))

		return nil, fmt.Errorf("error listing cart items: %w", err)
	}

	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.CartItem])
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to collect cart items", zap.Error(err))

		return nil, err
	}

	return items, nil
}

// UpsertItem adds quantity to the line for bookID, creating it if needed, and
// never lets the stored quantity exceed limit. Returns the resulting quantity.
func (r *cartRepo) UpsertItem(ctx context.Context, tx pgx.Tx, userID, bookID int64, quantity, limit int32) (int32, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.UpsertItem")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int64("book_id", bookID),
		attribute.Int("quantity", int(quantity)),
		attribute.Int("limit", int(limit)),
	)

	query := `
		INSERT INTO cart_items (user_id, book_id, quantity)
		VALUES ($1, $2, LEAST($3::int, $4::int))
		ON CONFLICT (user_id, book_id)
		DO UPDATE SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, $4::int)
		RETURNING quantity
	`

	var stored int32
	if err := tx.QueryRow(ctx, query, userID, bookID, quantity, limit).Scan(&stored); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to upsert cart item", zap.Int64("book_id", bookID), zap.Error(err))

		return 0, fmt.Errorf("error adding cart item: %w", err)
	}

	return stored, nil
}

func (r *cartRepo) SetItemQuantity(ctx context.Context, tx pgx.Tx, userID, bookID int64, quantity int32) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.SetItemQuantity")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int64("book_id", bookID),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		UPDATE cart_items
		SET quantity = $3
		WHERE user_id = $1 AND book_id = $2
	`

	commandTag, err := tx.Exec(ctx, query, userID, bookID, quantity)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to update cart item", zap.Int64("book_id", bookID), zap.Error(err))

		return fmt.Errorf("error updating cart item: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrCartItemNotFound
	}

	return nil
}

func (r *cartRepo) RemoveItem(ctx context.Context, tx pgx.Tx, userID, bookID int64) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.RemoveItem")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int64("book_id", bookID),
	)

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND book_id = $2`, userID, bookID); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to remove cart item", zap.Int64("book_id", bookID), zap.Error(err))

		return fmt.Errorf("error removing cart item: %w", err)
	}

	return nil
}

func (r *cartRepo) ReplaceItems(ctx context.Context, tx pgx.Tx, userID int64, items []domain.CartItem) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.ReplaceItems")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int("items_count", len(items)),
	)

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to clear cart items", zap.Error(err))

		return fmt.Errorf("error clearing cart items: %w", err)
	}

	queryItem := `
		INSERT INTO cart_items (user_id, book_id, quantity)
		VALUES ($1, $2, $3)
	`

	for _, item := range items {
		if _, err := tx.Exec(ctx, queryItem, userID, item.BookID, item.Quantity); err != nil {
			span.RecordError(err)
			mylogger.Error(ctx, r.logger, "Failed to insert cart item", zap.Int64("book_id", item.BookID), zap.Error(err))

			return fmt.Errorf("error inserting cart item: %w", err)
		}
	}

	return nil
}

// Clear drops the cart together with its lines.
func (r *cartRepo) Clear(ctx context.Context, userID int64) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Clear")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	if _, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE user_id = $1`, userID); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to clear cart", zap.Int64("user_id", userID), zap.Error(err))

		return fmt.Errorf("error clearing cart: %w", err)
	}

	return nil
}

// PruneUnavailable deletes lines whose book is gone or no longer sellable.
func (r *cartRepo) PruneUnavailable(ctx context.Context, tx pgx.Tx, userID int64) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.PruneUnavailable")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	query := `
		DELETE FROM cart_items ci
		WHERE ci.user_id = $1
			AND NOT EXISTS (
				SELECT 1 FROM books b
				WHERE b.id = ci.book_id AND b.is_available AND b.quantity > 0
			)
	`

	commandTag, err := tx.Exec(ctx, query, userID)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to prune cart", zap.Int64("user_id", userID), zap.Error(err))

		return 0, fmt.Errorf("error pruning cart: %w", err)
	}

	if pruned := commandTag.RowsAffected(); pruned > 0 {
		mylogger.Info(ctx, r.logger, "Pruned stale cart lines", zap.Int64("user_id", userID), zap.Int64("pruned", pruned))
	}

	return commandTag.RowsAffected(), nil
}
