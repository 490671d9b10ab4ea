package tests

import (
	generalDomain "github.com/sakashimaa/book-market/pkg/domain"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) TestUpdateStatus_UnpaidOrder() {
	book := s.seedBook(10, "Dune", "50.00", 5)
	res := s.checkout(1, domain.CartItem{BookID: book.ID, Quantity: 1})

	_, err := s.Orders.UpdateStatus(s.Ctx, seller(10), res.OrderID, domain.OrderStatusShipped)
	s.ErrorIs(err, domain.ErrUnpaidOrder)
}

func (s *IntegrationTestSuite) TestUpdateStatus_Lifecycle() {
	book := s.seedBook(10, "Dune", "50.00", 5)
	order := s.paidOrder(1, book, 1)

	shipped, err := s.Orders.UpdateStatus(s.Ctx, seller(10), order.ID, domain.OrderStatusShipped)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusShipped, shipped.Status)

	delivered, err := s.Orders.UpdateStatus(s.Ctx, seller(10), order.ID, domain.OrderStatusDelivered)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusDelivered, delivered.Status)

	_, err = s.Orders.UpdateStatus(s.Ctx, seller(10), order.ID, domain.OrderStatusShipped)
	s.ErrorIs(err, domain.ErrInvalidStatusTransition)

	_, err = s.Orders.UpdateStatus(s.Ctx, seller(10), order.ID, domain.OrderStatusCancelled)
	s.ErrorIs(err, domain.ErrInvalidStatusTransition)

	s.requireEventPublished(order.ID, generalDomain.EventOrderStatusChanged)
}

func (s *IntegrationTestSuite) TestUpdateStatus_PendingIsNotSettable() {
	book := s.seedBook(10, "Dune", "50.00", 5)
	order := s.paidOrder(1, book, 1)

	_, err := s.Orders.UpdateStatus(s.Ctx, admin(), order.ID, domain.OrderStatusPending)
	s.ErrorIs(err, domain.ErrInvalidStatusTransition)
}

func (s *IntegrationTestSuite) TestUpdateStatus_Forbidden() {
	book := s.seedBook(10, "Dune", "50.00", 5)
	order := s.paidOrder(1, book, 1)

	_, err := s.Orders.UpdateStatus(s.Ctx, seller(99), order.ID, domain.OrderStatusShipped)
	s.ErrorIs(err, domain.ErrForbidden)

	_, err = s.Orders.UpdateStatus(s.Ctx, buyer(1), order.ID, domain.OrderStatusShipped)
	s.ErrorIs(err, domain.ErrForbidden)

	cancelled, err := s.Orders.UpdateStatus(s.Ctx, admin(), order.ID, domain.OrderStatusCancelled)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusCancelled, cancelled.Status)
}

func (s *IntegrationTestSuite) TestGetOrder_Access() {
	book := s.seedBook(10, "Dune", "50.00", 5)
	res := s.checkout(1, domain.CartItem{BookID: book.ID, Quantity: 1})

	_, err := s.Orders.GetOrder(s.Ctx, buyer(1), res.OrderID)
	s.NoError(err)

	_, err = s.Orders.GetOrder(s.Ctx, seller(10), res.OrderID)
	s.NoError(err)

	_, err = s.Orders.GetOrder(s.Ctx, buyer(2), res.OrderID)
	s.ErrorIs(err, domain.ErrForbidden)

	_, err = s.Orders.GetOrder(s.Ctx, buyer(1), 999999)
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *IntegrationTestSuite) TestListOrders() {
	mine := s.seedBook(10, "Dune", "50.00", 5)
	theirs := s.seedBook(20, "Emma", "10.00", 5)

	first := s.checkout(1, domain.CartItem{BookID: mine.ID, Quantity: 1})
	second := s.checkout(1, domain.CartItem{BookID: theirs.ID, Quantity: 1})
	s.checkout(2, domain.CartItem{BookID: theirs.ID, Quantity: 1})

	orders, err := s.Orders.ListBuyerOrders(s.Ctx, buyer(1))
	s.Require().NoError(err)
	s.Require().Len(orders, 2)
	s.Equal(second.OrderID, orders[0].ID)
	s.Equal(first.OrderID, orders[1].ID)

	sellerOrders, err := s.Orders.ListSellerOrders(s.Ctx, seller(10))
	s.Require().NoError(err)
	s.Require().Len(sellerOrders, 1)
	s.Equal(first.OrderID, sellerOrders[0].ID)

	_, err = s.Orders.ListSellerOrders(s.Ctx, buyer(1))
	s.ErrorIs(err, domain.ErrForbidden)
}

func (s *IntegrationTestSuite) TestSellerStats() {
	first := s.seedBook(10, "Dune", "50.00", 5)
	second := s.seedBook(10, "Emma", "20.00", 5)
	s.seedBook(20, "Other", "1.00", 5)

	paid := s.paidOrder(1, first, 2)
	s.paidOrder(2, second, 1)
	// unpaid orders do not count
	s.checkout(3, domain.CartItem{BookID: first.ID, Quantity: 1})

	_, err := s.Orders.UpdateStatus(s.Ctx, seller(10), paid.ID, domain.OrderStatusShipped)
	s.Require().NoError(err)
	_, err = s.Orders.UpdateStatus(s.Ctx, seller(10), paid.ID, domain.OrderStatusDelivered)
	s.Require().NoError(err)

	stats, err := s.Orders.SellerStats(s.Ctx, seller(10))
	s.Require().NoError(err)

	s.Equal(int64(2), stats.TotalBooks)
	s.Equal(int64(2), stats.TotalOrders)
	s.True(decimal.RequireFromString("120.00").Equal(stats.TotalRevenue), "revenue %s", stats.TotalRevenue)
	s.Equal(int64(1), stats.PendingOrders)

	_, err = s.Orders.SellerStats(s.Ctx, buyer(1))
	s.ErrorIs(err, domain.ErrForbidden)
}
