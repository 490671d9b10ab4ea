package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"github.com/sakashimaa/book-market/services/market/internal/repository"
	"go.uber.org/zap"
)

type CartService interface {
	Get(ctx context.Context, userID int64) (*domain.CartView, error)
	Replace(ctx context.Context, userID int64, items []domain.CartItem) (*domain.CartView, error)
	AddItem(ctx context.Context, userID, bookID int64, quantity int32) (*domain.CartView, error)
	UpdateItem(ctx context.Context, userID, bookID int64, quantity int32) (*domain.CartView, error)
	RemoveItem(ctx context.Context, userID, bookID int64) (*domain.CartView, error)
	Clear(ctx context.Context, userID int64) (*domain.CartView, error)
}

type cartService struct {
	cartRepo repository.CartRepository
	bookRepo repository.BookRepository
	catalog  CatalogService
	pool     *pgxpool.Pool
	logger   *zap.Logger
}

// NewCartService prices views through catalog and validates mutations against bookRepo directly.
func NewCartService(
	cartRepo repository.CartRepository,
	bookRepo repository.BookRepository,
	catalog CatalogService,
	pool *pgxpool.Pool,
	logger *zap.Logger,
) CartService {
	return &cartService{
		cartRepo: cartRepo,
		bookRepo: bookRepo,
		catalog:  catalog,
		pool:     pool,
		logger:   logger,
	}
}

func checkCartQuantity(book *domain.Book, quantity int32) error {
	if !book.Sellable() {
		return domain.NewStockError(domain.ErrOutOfStock, book, quantity)
	}

	if quantity < 1 || quantity > book.Quantity {
		return domain.NewStockError(domain.ErrInvalidQuantity, book, quantity)
	}

	return nil
}

func (s *cartService) Get(ctx context.Context, userID int64) (*domain.CartView, error) {
	if err := s.cartRepo.EnsureCart(ctx, s.pool, userID); err != nil {
		return nil, err
	}

	items, err := s.cartRepo.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.BookID)
	}

	books, err := s.catalog.FindBooks(ctx, ids)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to load cart books", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("error loading cart books: %w", err)
	}

	view, stale := domain.BuildCartView(userID, items, books)
	if len(stale) > 0 {
		mylogger.Debug(ctx, s.logger, "Cart has stale lines", zap.Int64("user_id", userID), zap.Int64s("book_ids", stale))
	}

	return view, nil
}

func (s *cartService) Replace(ctx context.Context, userID int64, items []domain.CartItem) (*domain.CartView, error) {
	merged := domain.MergeItems(items)

	ids := make([]int64, 0, len(merged))
	for _, item := range merged {
		ids = append(ids, item.BookID)
	}

	books, err := s.bookRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, item := range merged {
		book, ok := books[item.BookID]
		if !ok {
			return nil, fmt.Errorf("%w: book %d", domain.ErrBookNotFound, item.BookID)
		}

		if err := checkCartQuantity(book, item.Quantity); err != nil {
			mylogger.Warn(ctx, s.logger, "Cart replace rejected", zap.Int64("user_id", userID), zap.Error(err))
			return nil, err
		}
	}

	err = s.inTx(ctx, userID, func(tx pgx.Tx) error {
		return s.cartRepo.ReplaceItems(ctx, tx, userID, merged)
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, userID)
}

// AddItem merges into an existing line and caps the stored quantity at current stock.
// A zero quantity means one unit.
func (s *cartService) AddItem(ctx context.Context, userID, bookID int64, quantity int32) (*domain.CartView, error) {
	if quantity == 0 {
		quantity = 1
	}

	book, err := s.bookRepo.GetByID(ctx, bookID)
	if err != nil {
		return nil, err
	}

	if err := checkCartQuantity(book, quantity); err != nil {
		mylogger.Warn(ctx, s.logger, "Cart add rejected", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}

	err = s.inTx(ctx, userID, func(tx pgx.Tx) error {
		stored, err := s.cartRepo.UpsertItem(ctx, tx, userID, bookID, quantity, book.Quantity)
		if err != nil {
			return err
		}

		mylogger.Debug(ctx, s.logger, "Cart line updated", zap.Int64("book_id", bookID), zap.Int32("quantity", stored))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, userID)
}

func (s *cartService) UpdateItem(ctx context.Context, userID, bookID int64, quantity int32) (*domain.CartView, error) {
	book, err := s.bookRepo.GetByID(ctx, bookID)
	if err != nil {
		return nil, err
	}

	if err := checkCartQuantity(book, quantity); err != nil {
		mylogger.Warn(ctx, s.logger, "Cart update rejected", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}

	err = s.inTx(ctx, userID, func(tx pgx.Tx) error {
		return s.cartRepo.SetItemQuantity(ctx, tx, userID, bookID, quantity)
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, userID)
}

// RemoveItem succeeds whether or not the line exists.
func (s *cartService) RemoveItem(ctx context.Context, userID, bookID int64) (*domain.CartView, error) {
	err := s.inTx(ctx, userID, func(tx pgx.Tx) error {
		return s.cartRepo.RemoveItem(ctx, tx, userID, bookID)
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, userID)
}

func (s *cartService) Clear(ctx context.Context, userID int64) (*domain.CartView, error) {
	if err := s.cartRepo.Clear(ctx, userID); err != nil {
		return nil, err
	}

	view, _ := domain.BuildCartView(userID, nil, nil)
	return view, nil
}

// inTx runs a cart write after making sure the cart exists and dropping stale lines.
func (s *cartService) inTx(ctx context.Context, userID int64, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollbackTx(ctx, tx, s.logger)

	if err := s.cartRepo.EnsureCart(ctx, tx, userID); err != nil {
		return err
	}

	if _, err := s.cartRepo.PruneUnavailable(ctx, tx, userID); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit cart transaction", zap.Error(err))
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}
