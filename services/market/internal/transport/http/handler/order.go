package handler

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"github.com/sakashimaa/book-market/pkg/utils"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"github.com/sakashimaa/book-market/services/market/internal/service"
	"github.com/sakashimaa/book-market/services/market/internal/transport/http/middleware"
	"go.uber.org/zap"
)

type OrderHandler struct {
	checkout service.CheckoutService
	payments service.PaymentService
	orders   service.OrderService
	validate *validator.Validate
	timeout  time.Duration
	logger   *zap.Logger
}

func NewOrderHandler(
	checkout service.CheckoutService,
	payments service.PaymentService,
	orders service.OrderService,
	timeout time.Duration,
	logger *zap.Logger,
) *OrderHandler {
	return &OrderHandler{
		checkout: checkout,
		payments: payments,
		orders:   orders,
		validate: validator.New(),
		timeout:  timeout,
		logger:   logger,
	}
}

type CreateOrderInput struct {
	Items           []CartItemInput        `json:"items" validate:"dive"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
}

type VerifyPaymentInput struct {
	GatewayOrderID   string `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required"`
	GatewaySignature string `json:"gateway_signature" validate:"required"`
}

type UpdateStatusInput struct {
	Status string `json:"status" validate:"required"`
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	input := new(CreateOrderInput)
	if err := c.BodyParser(input); err != nil {
		h.logger.Warn("failed to parse body in create", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	if len(input.Items) == 0 {
		return respondError(c, h.logger, "create order", domain.ErrEmptyOrder)
	}

	if err := h.validate.Struct(input); err != nil {
		mylogger.Warn(c.UserContext(), h.logger, "failed to validate input", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.FormatValidationError(err)})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	res, err := h.checkout.Checkout(ctx, service.CheckoutInput{
		BuyerID:         caller.UserID,
		BuyerEmail:      caller.Email,
		Items:           toCartItems(input.Items),
		ShippingAddress: input.ShippingAddress,
	})
	if err != nil {
		return respondError(c, h.logger, "create order", err)
	}

	mylogger.Info(ctx, h.logger, "create order succeeded", zap.Int64("created_id", res.OrderID))

	return c.Status(fiber.StatusCreated).JSON(res)
}

func (h *OrderHandler) VerifyPayment(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	orderID, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	input := new(VerifyPaymentInput)
	if err := c.BodyParser(input); err != nil {
		h.logger.Warn("failed to parse body in verify payment", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.FormatValidationError(err)})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	order, err := h.payments.Verify(ctx, caller, orderID, service.VerifyInput{
		GatewayOrderID:   input.GatewayOrderID,
		GatewayPaymentID: input.GatewayPaymentID,
		Signature:        input.GatewaySignature,
	})
	if err != nil {
		return respondError(c, h.logger, "verify payment", err)
	}

	return c.JSON(order)
}

func (h *OrderHandler) ListMine(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListBuyerOrders(ctx, caller)
	if err != nil {
		return respondError(c, h.logger, "list orders", err)
	}

	return c.JSON(orders)
}

func (h *OrderHandler) ListSeller(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListSellerOrders(ctx, caller)
	if err != nil {
		return respondError(c, h.logger, "list seller orders", err)
	}

	return c.JSON(orders)
}

func (h *OrderHandler) FindByID(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	orderID, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	order, err := h.orders.GetOrder(ctx, caller, orderID)
	if err != nil {
		return respondError(c, h.logger, "get order", err)
	}

	return c.JSON(order)
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return unauthorized(c)
	}

	orderID, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	input := new(UpdateStatusInput)
	if err := c.BodyParser(input); err != nil {
		h.logger.Warn("failed to parse body in update status", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.FormatValidationError(err)})
	}

	status, err := domain.ParseOrderStatus(input.Status)
	if err != nil {
		return respondError(c, h.logger, "update status", err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	order, err := h.orders.UpdateStatus(ctx, caller, orderID, status)
	if err != nil {
		return respondError(c, h.logger, "update status", err)
	}

	return c.JSON(order)
}
