package repository

import (
	"context"
	"errors"
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

type BookRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Book, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Book, error)
	Save(ctx context.Context, book *domain.Book) error
	DecreaseStock(ctx context.Context, tx pgx.Tx, id int64, quantity int32) error
	GetQuantity(ctx context.Context, db DBTX, id int64) (int32, error)
}

type bookRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewBookRepository(pool *pgxpool.Pool, logger *zap.Logger) BookRepository {
	return &bookRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("market/book_repository"),
	}
}

const bookColumns = `id, seller_id, title, author, price, quantity, is_available, created_at, updated_at`

func scanBook(row pgx.Row) (*domain.Book, error) {
	var b domain.Book
	if err := row.Scan(
		&b.ID,
		&b.SellerID,
		&b.Title,
		&b.Author,
		&b.Price,
		&b.Quantity,
		&b.IsAvailable,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return &b, nil
}

func (r *bookRepo) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	ctx, span := r.tracer.Start(ctx, "BookRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("book_id", id))

	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	book, err := scanBook(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to get book", zap.Int64("book_id", id), zap.Error(err))

		return nil, fmt.Errorf("error getting book %d: %w", id, err)
	}

	return book, nil
}

func (r *bookRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Book, error) {
	ctx, span := r.tracer.Start(ctx, "BookRepository.GetByIDs")
	defer span.End()

	span.SetAttributes(attribute.Int("ids_count", len(ids)))

	result := make(map[int64]*domain.Book, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT ` + bookColumns + ` FROM books WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query books", zap.Error(err))

		return nil, fmt.Errorf("error querying books: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			span.RecordError(err)
			mylogger.Error(ctx, r.logger, "Failed to scan book", zap.Error(err))

			return nil, err
		}

		result[book.ID] = book
	}

	if err := rows.Err(); err != nil {
		mylogger.Error(ctx, r.logger, "Rows error", zap.Error(err))
		return nil, err
	}

	return result, nil
}

// Save inserts the book when it has no id yet, otherwise overwrites the stored row.
func (r *bookRepo) Save(ctx context.Context, book *domain.Book) error {
	ctx, span := r.tracer.Start(ctx, "BookRepository.Save")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("book_id", book.ID),
		attribute.Int64("seller_id", book.SellerID),
	)

	if book.ID == 0 {
		query := `
			INSERT INTO books (seller_id, title, author, price, quantity, is_available)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at
		`

		if err := r.pool.QueryRow(
			ctx,
			query,
			book.SellerID,
			book.Title,
			book.Author,
			book.Price,
			book.Quantity,
			book.IsAvailable,
		).Scan(&book.ID, &book.CreatedAt, &book.UpdatedAt); err != nil {
			span.RecordError(err)
			mylogger.Error(ctx, r.logger, "Failed to insert book", zap.Error(err))

			return fmt.Errorf("error creating book: %w", err)
		}

		return nil
	}

	query := `
		UPDATE books
		SET seller_id = $2, title = $3, author = $4, price = $5,
			quantity = $6, is_available = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.pool.QueryRow(
		ctx,
		query,
		book.ID,
		book.SellerID,
		book.Title,
		book.Author,
		book.Price,
		book.Quantity,
		book.IsAvailable,
	).Scan(&book.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBookNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to update book", zap.Int64("book_id", book.ID), zap.Error(err))

		return fmt.Errorf("error updating book %d: %w", book.ID, err)
	}

	return nil
}

// DecreaseStock takes quantity units only if that many are on hand, and flips
// availability off when the shelf runs empty. ErrStockConflict means nothing changed.
func (r *bookRepo) DecreaseStock(ctx context.Context, tx pgx.Tx, id int64, quantity int32) error {
	ctx, span := r.tracer.Start(ctx, "BookRepository.DecreaseStock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("book_id", id),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		UPDATE books
		SET quantity = quantity - $2,
			is_available = is_available AND (quantity - $2) > 0,
			updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
	`

	commandTag, err := tx.Exec(ctx, query, id, quantity)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			r.logger,
			"Error decreasing stock",
			zap.Int64("book_id", id),
			zap.Int32("quantity", quantity),
			zap.Error(err),
		)

		return fmt.Errorf("error decreasing stock for book %d: %w", id, err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrStockConflict
	}

	return nil
}

func (r *bookRepo) GetQuantity(ctx context.Context, db DBTX, id int64) (int32, error) {
	ctx, span := r.tracer.Start(ctx, "BookRepository.GetQuantity")
	defer span.End()

	span.SetAttributes(attribute.Int64("book_id", id))

	var quantity int32
	if err := db.QueryRow(ctx, `SELECT quantity FROM books WHERE id = $1`, id).Scan(&quantity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBookNotFound
		}

		span.RecordError(err)
		return 0, fmt.Errorf("error reading quantity of book %d: %w", id, err)
	}

	return quantity, nil
}
