package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
)

var (
	ErrBookNotFound     = domain.ErrBookNotFound
	ErrOrderNotFound    = domain.ErrOrderNotFound
	ErrCartItemNotFound = domain.ErrCartItemNotFound
	ErrStockConflict    = errors.New("not enough stock for conditional decrement")
	ErrStatusNotMatched = errors.New("order is not in the expected state")
)

// DBTX is implemented by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
