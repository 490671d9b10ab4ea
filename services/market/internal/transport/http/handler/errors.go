package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/book-market/pkg/mylogger"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"go.uber.org/zap"
)

func mapErrorCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrEmptyOrder),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrPaymentVerificationFailed),
		errors.Is(err, domain.ErrUnpaidOrder),
		errors.Is(err, domain.ErrInvalidStatusTransition):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrBookNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrCartItemNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrStatusConflict),
		errors.Is(err, domain.ErrStockExhaustedAtSettlement):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, domain.ErrGatewayRejected):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, logger *zap.Logger, op string, err error) error {
	code := mapErrorCode(err)

	if code >= fiber.StatusInternalServerError {
		mylogger.Error(c.UserContext(), logger, op+" failed", zap.Int("http_code", code), zap.Error(err))
	} else {
		mylogger.Warn(c.UserContext(), logger, op+" rejected", zap.Int("http_code", code), zap.Error(err))
	}

	if code == fiber.StatusInternalServerError {
		return c.Status(code).JSON(fiber.Map{"error": "internal error"})
	}

	body := fiber.Map{"error": err.Error()}

	var stockErr *domain.StockError
	if errors.As(err, &stockErr) {
		body["book_id"] = stockErr.BookID
		body["max_quantity"] = stockErr.Available
	}

	if code == fiber.StatusServiceUnavailable {
		c.Set(fiber.HeaderRetryAfter, "5")
	}

	return c.Status(code).JSON(body)
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "userId parsing error"})
}

func parseID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

func invalidID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Id is invalid"})
}
