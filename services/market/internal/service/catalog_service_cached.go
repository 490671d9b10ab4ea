package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"go.uber.org/zap"
)

type cachedCatalogService struct {
	next        CatalogService
	redisClient *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger
}

func NewCachedCatalogService(
	next CatalogService,
	redisClient *redis.Client,
	cacheTTL time.Duration,
	logger *zap.Logger,
) CatalogService {
	return &cachedCatalogService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

func bookKey(id int64) string {
	return fmt.Sprintf("book:%d", id)
}

func (s *cachedCatalogService) FindBook(ctx context.Context, id int64) (*domain.Book, error) {
	key := bookKey(id)

	val, err := s.redisClient.Get(ctx, key).Bytes()
	if err == nil {
		var book domain.Book
		if err := json.Unmarshal(val, &book); err == nil {
			return &book, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		mylogger.Warn(ctx, s.logger, "Redis get failed", zap.String("key", key), zap.Error(err))
	}

	book, err := s.next.FindBook(ctx, id)
	if err != nil {
		return nil, err
	}

	s.store(ctx, book)
	return book, nil
}

func (s *cachedCatalogService) FindBooks(ctx context.Context, ids []int64) (map[int64]*domain.Book, error) {
	result := make(map[int64]*domain.Book, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = bookKey(id)
	}

	var missing []int64

	vals, err := s.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Redis mget failed", zap.Error(err))
		missing = ids
	} else {
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				missing = append(missing, ids[i])
				continue
			}

			var book domain.Book
			if err := json.Unmarshal([]byte(raw), &book); err != nil {
				missing = append(missing, ids[i])
				continue
			}
			result[book.ID] = &book
		}
	}

	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := s.next.FindBooks(ctx, missing)
	if err != nil {
		return nil, err
	}

	for id, book := range fetched {
		result[id] = book
		s.store(ctx, book)
	}

	return result, nil
}

func (s *cachedCatalogService) SaveBook(ctx context.Context, book *domain.Book) error {
	if err := s.next.SaveBook(ctx, book); err != nil {
		return err
	}

	s.Invalidate(ctx, book.ID)
	return nil
}

func (s *cachedCatalogService) Invalidate(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		return
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = bookKey(id)
	}

	if err := s.redisClient.Del(ctx, keys...).Err(); err != nil {
		mylogger.Warn(ctx, s.logger, "Redis del failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *cachedCatalogService) store(ctx context.Context, book *domain.Book) {
	data, err := json.Marshal(book)
	if err != nil {
		return
	}

	if err := s.redisClient.Set(ctx, bookKey(book.ID), data, s.cacheTTL).Err(); err != nil {
		mylogger.Warn(ctx, s.logger, "Redis set failed", zap.Int64("book_id", book.ID), zap.Error(err))
	}
}
