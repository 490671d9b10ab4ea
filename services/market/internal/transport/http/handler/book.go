package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/book-market/services/market/internal/service"
	"go.uber.org/zap"
)

type BookHandler struct {
	catalog service.CatalogService
	timeout time.Duration
	logger  *zap.Logger
}

func NewBookHandler(catalog service.CatalogService, timeout time.Duration, logger *zap.Logger) *BookHandler {
	return &BookHandler{
		catalog: catalog,
		timeout: timeout,
		logger:  logger,
	}
}

func (h *BookHandler) FindByID(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	book, err := h.catalog.FindBook(ctx, id)
	if err != nil {
		return respondError(c, h.logger, "find book", err)
	}

	return c.JSON(book)
}
