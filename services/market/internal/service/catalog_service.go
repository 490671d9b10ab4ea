package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"github.com/sakashimaa/book-market/services/market/internal/repository"
	"go.uber.org/zap"
)

// CatalogService is the read side of the book catalog plus the single write used by sellers.
type CatalogService interface {
	FindBook(ctx context.Context, id int64) (*domain.Book, error)
	FindBooks(ctx context.Context, ids []int64) (map[int64]*domain.Book, error)
	SaveBook(ctx context.Context, book *domain.Book) error
	Invalidate(ctx context.Context, ids ...int64)
}

type catalogService struct {
	bookRepo repository.BookRepository
	logger   *zap.Logger
}

func NewCatalogService(bookRepo repository.BookRepository, logger *zap.Logger) CatalogService {
	return &catalogService{
		bookRepo: bookRepo,
		logger:   logger,
	}
}

func (s *catalogService) FindBook(ctx context.Context, id int64) (*domain.Book, error) {
	book, err := s.bookRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			s.logger.Warn("book not found", zap.Int64("book_id", id))
			return nil, err
		}

		s.logger.Error("error getting book", zap.Error(err))
		return nil, fmt.Errorf("error getting book by id: %w", err)
	}

	return book, nil
}

func (s *catalogService) FindBooks(ctx context.Context, ids []int64) (map[int64]*domain.Book, error) {
	return s.bookRepo.GetByIDs(ctx, ids)
}

func (s *catalogService) SaveBook(ctx context.Context, book *domain.Book) error {
	if book.Price.IsNegative() || book.Quantity < 0 {
		return fmt.Errorf("%w: price and quantity must not be negative", domain.ErrValidation)
	}

	return s.bookRepo.Save(ctx, book)
}

func (s *catalogService) Invalidate(context.Context, ...int64) {}
