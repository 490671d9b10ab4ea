package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/book-market/pkg/auth"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"github.com/sakashimaa/book-market/services/market/internal/service"
	"github.com/sakashimaa/book-market/services/market/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCheckout struct {
	res   *service.CheckoutResult
	err   error
	calls int
}

func (s *stubCheckout) Checkout(_ context.Context, _ service.CheckoutInput) (*service.CheckoutResult, error) {
	s.calls++
	return s.res, s.err
}

type stubPayments struct {
	input service.VerifyInput
	err   error
}

func (s *stubPayments) Verify(_ context.Context, _ domain.Caller, orderID int64, input service.VerifyInput) (*domain.Order, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}

	return &domain.Order{ID: orderID, Status: domain.OrderStatusProcessing}, nil
}

type stubOrders struct {
	status domain.OrderStatus
	err    error
}

func (s *stubOrders) GetOrder(_ context.Context, _ domain.Caller, orderID int64) (*domain.Order, error) {
	return &domain.Order{ID: orderID}, s.err
}

func (s *stubOrders) ListBuyerOrders(_ context.Context, _ domain.Caller) ([]*domain.Order, error) {
	return nil, s.err
}

func (s *stubOrders) ListSellerOrders(_ context.Context, _ domain.Caller) ([]*domain.Order, error) {
	return nil, s.err
}

func (s *stubOrders) SellerStats(_ context.Context, _ domain.Caller) (*domain.SellerStats, error) {
	return &domain.SellerStats{TotalBooks: 3}, s.err
}

func (s *stubOrders) UpdateStatus(_ context.Context, _ domain.Caller, orderID int64, status domain.OrderStatus) (*domain.Order, error) {
	s.status = status
	if s.err != nil {
		return nil, s.err
	}

	return &domain.Order{ID: orderID, Status: status}, nil
}

func newTestApp(h *OrderHandler, withCaller bool) *fiber.App {
	app := fiber.New()
	if withCaller {
		app.Use(func(c *fiber.Ctx) error {
			c.Locals(middleware.LocalUserID, int64(7))
			c.Locals(middleware.LocalRole, auth.RoleBuyer)
			return c.Next()
		})
	}

	app.Post("/orders", h.Create)
	app.Post("/orders/:id/verify-payment", h.VerifyPayment)
	app.Put("/orders/:id/status", h.UpdateStatus)
	app.Get("/orders/:id", h.FindByID)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (int, map[string]any, string) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}

	return resp.StatusCode, out, resp.Header.Get(fiber.HeaderRetryAfter)
}

func TestMapErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrEmptyOrder, fiber.StatusBadRequest},
		{domain.NewStockError(domain.ErrInsufficientStock, &domain.Book{ID: 1}, 2), fiber.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", domain.ErrPaymentVerificationFailed), fiber.StatusBadRequest},
		{domain.ErrUnpaidOrder, fiber.StatusBadRequest},
		{domain.ErrInvalidStatusTransition, fiber.StatusBadRequest},
		{domain.ErrBookNotFound, fiber.StatusNotFound},
		{domain.ErrCartItemNotFound, fiber.StatusNotFound},
		{domain.ErrForbidden, fiber.StatusForbidden},
		{domain.ErrStatusConflict, fiber.StatusConflict},
		{&domain.StockError{Err: domain.ErrStockExhaustedAtSettlement}, fiber.StatusConflict},
		{domain.ErrGatewayUnavailable, fiber.StatusServiceUnavailable},
		{domain.ErrGatewayRejected, fiber.StatusBadGateway},
		{fmt.Errorf("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, mapErrorCode(tt.err))
		})
	}
}

func TestOrderHandler_Create(t *testing.T) {
	input := map[string]any{
		"items": []map[string]any{{"book_id": 3, "quantity": 5}},
		"shipping_address": map[string]any{
			"full_name": "A", "street": "B", "city": "C", "postal_code": "1", "country": "IN",
		},
	}

	t.Run("created", func(t *testing.T) {
		checkout := &stubCheckout{res: &service.CheckoutResult{OrderID: 11, GatewayOrderID: "order_1", Amount: 1000, Currency: "INR", Key: "k"}}
		app := newTestApp(NewOrderHandler(checkout, &stubPayments{}, &stubOrders{}, time.Second, zap.NewNop()), true)

		code, body, _ := doJSON(t, app, fiber.MethodPost, "/orders", input)

		assert.Equal(t, fiber.StatusCreated, code)
		assert.Equal(t, "order_1", body["gateway_order_id"])
		assert.EqualValues(t, 1000, body["amount"])
	})

	t.Run("stock error carries the book", func(t *testing.T) {
		checkout := &stubCheckout{err: domain.NewStockError(domain.ErrInsufficientStock, &domain.Book{ID: 3, Title: "Dune", Quantity: 2, IsAvailable: true}, 5)}
		app := newTestApp(NewOrderHandler(checkout, &stubPayments{}, &stubOrders{}, time.Second, zap.NewNop()), true)

		code, body, _ := doJSON(t, app, fiber.MethodPost, "/orders", input)

		assert.Equal(t, fiber.StatusBadRequest, code)
		assert.EqualValues(t, 3, body["book_id"])
		assert.EqualValues(t, 2, body["max_quantity"])
		assert.Contains(t, body["error"], "Dune")
	})

	t.Run("gateway unavailable", func(t *testing.T) {
		checkout := &stubCheckout{err: domain.ErrGatewayUnavailable}
		app := newTestApp(NewOrderHandler(checkout, &stubPayments{}, &stubOrders{}, time.Second, zap.NewNop()), true)

		code, _, retryAfter := doJSON(t, app, fiber.MethodPost, "/orders", input)

		assert.Equal(t, fiber.StatusServiceUnavailable, code)
		assert.Equal(t, "5", retryAfter)
	})

	t.Run("internal errors are hidden", func(t *testing.T) {
		checkout := &stubCheckout{err: fmt.Errorf("pq: connection refused")}
		app := newTestApp(NewOrderHandler(checkout, &stubPayments{}, &stubOrders{}, time.Second, zap.NewNop()), true)

		code, body, _ := doJSON(t, app, fiber.MethodPost, "/orders", input)

		assert.Equal(t, fiber.StatusInternalServerError, code)
		assert.Equal(t, "internal error", body["error"])
	})

	t.Run("empty items", func(t *testing.T) {
		checkout := &stubCheckout{}
		app := newTestApp(NewOrderHandler(checkout, &stubPayments{}, &stubOrders{}, time.Second, zap.NewNop()), true)

		code, _, _ := doJSON(t, app, fiber.MethodPost, "/orders", map[string]any{"items": []any{}})

		assert.Equal(t, fiber.StatusBadRequest, code)
		assert.Zero(t, checkout.calls)
	})

	t.Run("missing caller", func(t *testing.T) {
		checkout := &stubCheckout{}
		app := newTestApp(NewOrderHandler(checkout, &stubPayments{}, &stubOrders{}, time.Second, zap.NewNop()), false)

		code, _, _ := doJSON(t, app, fiber.MethodPost, "/orders", input)

		assert.Equal(t, fiber.StatusUnauthorized, code)
		assert.Zero(t, checkout.calls)
	})
}

func TestOrderHandler_VerifyPayment(t *testing.T) {
	payments := &stubPayments{}
	app := newTestApp(NewOrderHandler(&stubCheckout{}, payments, &stubOrders{}, time.Second, zap.NewNop()), true)

	code, _, _ := doJSON(t, app, fiber.MethodPost, "/orders/5/verify-payment", map[string]any{
		"gateway_order_id":   "order_1",
		"gateway_payment_id": "pay_1",
	})
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, body, _ := doJSON(t, app, fiber.MethodPost, "/orders/5/verify-payment", map[string]any{
		"gateway_order_id":   "order_1",
		"gateway_payment_id": "pay_1",
		"gateway_signature":  "abc",
	})
	require.Equal(t, fiber.StatusOK, code)
	assert.EqualValues(t, 5, body["id"])
	assert.Equal(t, "abc", payments.input.Signature)

	code, _, _ = doJSON(t, app, fiber.MethodPost, "/orders/abc/verify-payment", map[string]any{})
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestOrderHandler_UpdateStatus(t *testing.T) {
	orders := &stubOrders{}
	app := newTestApp(NewOrderHandler(&stubCheckout{}, &stubPayments{}, orders, time.Second, zap.NewNop()), true)

	code, _, _ := doJSON(t, app, fiber.MethodPut, "/orders/5/status", map[string]any{"status": "teleported"})
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, body, _ := doJSON(t, app, fiber.MethodPut, "/orders/5/status", map[string]any{"status": "shipped"})
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "shipped", body["status"])
	assert.Equal(t, domain.OrderStatusShipped, orders.status)

	orders.err = domain.ErrForbidden
	code, _, _ = doJSON(t, app, fiber.MethodPut, "/orders/5/status", map[string]any{"status": "shipped"})
	assert.Equal(t, fiber.StatusForbidden, code)
}
