package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/book-market/services/market/internal/service"
	"github.com/sakashimaa/book-market/services/market/internal/transport/http/middleware"
	"go.uber.org/zap"
)

type SellerHandler struct {
	orders  service.OrderService
	timeout time.Duration
	logger  *zap.Logger
}

func NewSellerHandler(orders service.OrderService, timeout time.Duration, logger *zap.Logger) *SellerHandler {
	return &SellerHandler{
		orders:  orders,
		timeout: timeout,
		logger:  logger,
	}
}

func (h *SellerHandler) Stats(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	stats, err := h.orders.SellerStats(ctx, caller)
	if err != nil {
		return respondError(c, h.logger, "seller stats", err)
	}

	return c.JSON(stats)
}
