package handler

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/book-market/pkg/utils"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"github.com/sakashimaa/book-market/services/market/internal/service"
	"github.com/sakashimaa/book-market/services/market/internal/transport/http/middleware"
	"go.uber.org/zap"
)

type CartHandler struct {
	cart     service.CartService
	validate *validator.Validate
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCartHandler(cart service.CartService, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		cart:     cart,
		validate: validator.New(),
		timeout:  timeout,
		logger:   logger,
	}
}

type CartItemInput struct {
	BookID   int64 `json:"book_id" validate:"required,gt=0"`
	Quantity int32 `json:"quantity"`
}

type ReplaceCartInput struct {
	Items []CartItemInput `json:"items" validate:"dive"`
}

type UpdateCartItemInput struct {
	Quantity int32 `json:"quantity"`
}

func toCartItems(in []CartItemInput) []domain.CartItem {
	items := make([]domain.CartItem, 0, len(in))
	for _, item := range in {
		items = append(items, domain.CartItem{BookID: item.BookID, Quantity: item.Quantity})
	}

	return items
}

func (h *CartHandler) Get(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	view, err := h.cart.Get(ctx, caller.UserID)
	if err != nil {
		return respondError(c, h.logger, "get cart", err)
	}

	return c.JSON(view)
}

func (h *CartHandler) Replace(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	input := new(ReplaceCartInput)
	if err := c.BodyParser(input); err != nil {
		h.logger.Warn("failed to parse body in replace cart", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.FormatValidationError(err)})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	view, err := h.cart.Replace(ctx, caller.UserID, toCartItems(input.Items))
	if err != nil {
		return respondError(c, h.logger, "replace cart", err)
	}

	return c.JSON(view)
}

func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	input := new(CartItemInput)
	if err := c.BodyParser(input); err != nil {
		h.logger.Warn("failed to parse body in add cart item", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.FormatValidationError(err)})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	view, err := h.cart.AddItem(ctx, caller.UserID, input.BookID, input.Quantity)
	if err != nil {
		return respondError(c, h.logger, "add cart item", err)
	}

	return c.JSON(view)
}

func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	bookID, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	input := new(UpdateCartItemInput)
	if err := c.BodyParser(input); err != nil {
		h.logger.Warn("failed to parse body in update cart item", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	view, err := h.cart.UpdateItem(ctx, caller.UserID, bookID, input.Quantity)
	if err != nil {
		return respondError(c, h.logger, "update cart item", err)
	}

	return c.JSON(view)
}

func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	bookID, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	view, err := h.cart.RemoveItem(ctx, caller.UserID, bookID)
	if err != nil {
		return respondError(c, h.logger, "remove cart item", err)
	}

	return c.JSON(view)
}

func (h *CartHandler) Clear(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	view, err := h.cart.Clear(ctx, caller.UserID)
	if err != nil {
		return respondError(c, h.logger, "clear cart", err)
	}

	return c.JSON(view)
}
