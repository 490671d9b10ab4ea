package tests

import (
	"errors"

	generalDomain "github.com/sakashimaa/book-market/pkg/domain"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"github.com/sakashimaa/book-market/services/market/internal/service"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) TestCheckout_Success() {
	first := s.seedBook(10, "Dune", "199.99", 5)
	second := s.seedBook(11, "Emma", "100.00", 3)

	res := s.checkout(1,
		domain.CartItem{BookID: first.ID, Quantity: 1},
		domain.CartItem{BookID: second.ID, Quantity: 2},
	)

	s.NotZero(res.OrderID)
	s.Equal("order_test_1", res.GatewayOrderID)
	s.Equal(int64(39999), res.Amount)
	s.Equal("INR", res.Currency)
	s.Equal("rzp_test_key", res.Key)

	order, err := s.Orders.GetOrder(s.Ctx, buyer(1), res.OrderID)
	s.Require().NoError(err)

	s.Equal(domain.PaymentStatusPending, order.Payment.Status)
	s.Equal(domain.OrderStatusPending, order.Status)
	s.Equal(domain.SettlementStatusNone, order.SettlementStatus)
	s.True(decimal.RequireFromString("399.99").Equal(order.TotalAmount))
	s.Len(order.Items, 2)
	s.Equal("Pune", order.ShippingAddress.City)

	// checkout never touches stock
	quantity, available := s.bookState(first.ID)
	s.Equal(int32(5), quantity)
	s.True(available)

	s.requireEventPublished(res.OrderID, generalDomain.EventOrderCreated)
}

func (s *IntegrationTestSuite) TestCheckout_DuplicateLinesAreMerged() {
	book := s.seedBook(10, "Dune", "10.00", 5)

	res := s.checkout(1,
		domain.CartItem{BookID: book.ID, Quantity: 2},
		domain.CartItem{BookID: book.ID, Quantity: 1},
	)

	order, err := s.Orders.GetOrder(s.Ctx, buyer(1), res.OrderID)
	s.Require().NoError(err)

	s.Require().Len(order.Items, 1)
	s.Equal(int32(3), order.Items[0].Quantity)
	s.Equal(int64(3000), res.Amount)
}

func (s *IntegrationTestSuite) TestCheckout_IsAllOrNothing() {
	ok := s.seedBook(10, "Dune", "10.00", 5)
	short := s.seedBook(10, "Emma", "10.00", 1)

	_, err := s.Checkout.Checkout(s.Ctx, service.CheckoutInput{
		BuyerID: 1,
		Items: []domain.CartItem{
			{BookID: ok.ID, Quantity: 1},
			{BookID: short.ID, Quantity: 2},
		},
		ShippingAddress: address(),
	})

	var stockErr *domain.StockError
	s.Require().True(errors.As(err, &stockErr))
	s.ErrorIs(err, domain.ErrInsufficientStock)
	s.Equal(short.ID, stockErr.BookID)
	s.Equal(int32(1), stockErr.Available)

	s.Equal(0, s.countOrders())
	s.Equal(0, s.Gateway.Calls())
}

func (s *IntegrationTestSuite) TestCheckout_Rejections() {
	book := s.seedBook(10, "Dune", "10.00", 5)
	hidden := s.seedBook(10, "Emma", "10.00", 5)
	hidden.IsAvailable = false
	s.Require().NoError(s.Catalog.SaveBook(s.Ctx, hidden))

	tests := []struct {
		name    string
		items   []domain.CartItem
		wantErr error
	}{
		{name: "empty", items: nil, wantErr: domain.ErrEmptyOrder},
		{name: "unknown book", items: []domain.CartItem{{BookID: 999999, Quantity: 1}}, wantErr: domain.ErrBookNotFound},
		{name: "zero quantity", items: []domain.CartItem{{BookID: book.ID, Quantity: 0}}, wantErr: domain.ErrInvalidQuantity},
		{name: "unavailable book", items: []domain.CartItem{{BookID: hidden.ID, Quantity: 1}}, wantErr: domain.ErrInsufficientStock},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.Checkout.Checkout(s.Ctx, service.CheckoutInput{
				BuyerID:         1,
				Items:           tt.items,
				ShippingAddress: address(),
			})
			s.ErrorIs(err, tt.wantErr)
		})
	}

	s.Equal(0, s.countOrders())
	s.Equal(0, s.Gateway.Calls())
}

func (s *IntegrationTestSuite) TestCheckout_GatewayUnavailable() {
	book := s.seedBook(10, "Dune", "10.00", 5)
	s.Gateway.err = domain.ErrGatewayUnavailable

	_, err := s.Checkout.Checkout(s.Ctx, service.CheckoutInput{
		BuyerID:         1,
		Items:           []domain.CartItem{{BookID: book.ID, Quantity: 1}},
		ShippingAddress: address(),
	})

	s.ErrorIs(err, domain.ErrGatewayUnavailable)
	s.Equal(1, s.Gateway.Calls())
	s.Equal(0, s.countOrders())
}

func (s *IntegrationTestSuite) TestCheckout_PriceIsFrozen() {
	book := s.seedBook(10, "Dune", "10.00", 5)
	res := s.checkout(1, domain.CartItem{BookID: book.ID, Quantity: 2})

	book.Price = decimal.RequireFromString("25.00")
	s.Require().NoError(s.Catalog.SaveBook(s.Ctx, book))

	order, err := s.Orders.GetOrder(s.Ctx, buyer(1), res.OrderID)
	s.Require().NoError(err)

	s.True(decimal.RequireFromString("10.00").Equal(order.Items[0].Price))
	s.True(decimal.RequireFromString("20.00").Equal(order.TotalAmount))
}
