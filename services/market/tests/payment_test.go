package tests

import (
	"errors"
	"sync"

	generalDomain "github.com/sakashimaa/book-market/pkg/domain"
	"github.com/sakashimaa/book-market/services/market/internal/domain"
	"github.com/sakashimaa/book-market/services/market/internal/service"
)

func (s *IntegrationTestSuite) TestVerify_SettlesStock() {
	book := s.seedBook(10, "Dune", "50.00", 2)

	// warm the cache so settlement has to invalidate it
	cached, err := s.Catalog.FindBook(s.Ctx, book.ID)
	s.Require().NoError(err)
	s.Equal(int32(2), cached.Quantity)

	res := s.checkout(1, domain.CartItem{BookID: book.ID, Quantity: 2})

	order, err := s.Payments.Verify(s.Ctx, buyer(1), res.OrderID, s.validPayment(res, "pay_1"))
	s.Require().NoError(err)

	s.Equal(domain.PaymentStatusCompleted, order.Payment.Status)
	s.Equal(domain.OrderStatusProcessing, order.Status)
	s.Equal(domain.SettlementStatusSettled, order.SettlementStatus)
	s.Require().NotNil(order.Payment.PaymentID)
	s.Equal("pay_1", *order.Payment.PaymentID)
	s.NotNil(order.Payment.PaidAt)

	quantity, available := s.bookState(book.ID)
	s.Equal(int32(0), quantity)
	s.False(available)

	fresh, err := s.Catalog.FindBook(s.Ctx, book.ID)
	s.Require().NoError(err)
	s.Equal(int32(0), fresh.Quantity)
	s.False(fresh.Sellable())

	s.requireEventPublished(res.OrderID, generalDomain.EventOrderPaid)
}

func (s *IntegrationTestSuite) TestVerify_IsIdempotent() {
	book := s.seedBook(10, "Dune", "50.00", 5)
	res := s.checkout(1, domain.CartItem{BookID: book.ID, Quantity: 2})
	input := s.validPayment(res, "pay_1")

	_, err := s.Payments.Verify(s.Ctx, buyer(1), res.OrderID, input)
	s.Require().NoError(err)

	again, err := s.Payments.Verify(s.Ctx, buyer(1), res.OrderID, input)
	s.Require().NoError(err)
	s.Equal(domain.PaymentStatusCompleted, again.Payment.Status)

	quantity, _ := s.bookState(book.ID)
	s.Equal(int32(3), quantity)
}

func (s *IntegrationTestSuite) TestVerify_BadSignature() {
	book := s.seedBook(10, "Dune", "50.00", 5)
	res := s.checkout(1, domain.CartItem{BookID: book.ID, Quantity: 2})

	bad := s.validPayment(res, "pay_1")
	bad.Signature = "deadbeef"

	_, err := s.Payments.Verify(s.Ctx, buyer(1), res.OrderID, bad)
	s.ErrorIs(err, domain.ErrPaymentVerificationFailed)

	order, err := s.Orders.GetOrder(s.Ctx, buyer(1), res.OrderID)
	s.Require().NoError(err)
	s.Equal(domain.PaymentStatusFailed, order.Payment.Status)
	s.Equal(domain.OrderStatusPending, order.Status)

	quantity, available := s.bookState(book.ID)
	s.Equal(int32(5), quantity)
	s.True(available)

	// a failed payment stays failed
	_, err = s.Payments.Verify(s.Ctx, buyer(1), res.OrderID, s.validPayment(res, "pay_1"))
	s.ErrorIs(err, domain.ErrPaymentVerificationFailed)

	quantity, _ = s.bookState(book.ID)
	s.Equal(int32(5), quantity)

	s.requireEventPublished(res.OrderID, generalDomain.EventPaymentFailed)
}

func (s *IntegrationTestSuite) TestVerify_ForeignGatewayOrder() {
	book := s.seedBook(10, "Dune", "50.00", 5)
	mine := s.checkout(1, domain.CartItem{BookID: book.ID, Quantity: 1})
	other := s.checkout(2, domain.CartItem{BookID: book.ID, Quantity: 1})

	// correctly signed, but for someone else's gateway order
	_, err := s.Payments.Verify(s.Ctx, buyer(1), mine.OrderID, s.validPayment(other, "pay_x"))
	s.ErrorIs(err, domain.ErrPaymentVerificationFailed)

	quantity, _ := s.bookState(book.ID)
	s.Equal(int32(5), quantity)
}

func (s *IntegrationTestSuite) TestVerify_MismatchAfterCompletedChangesNothing() {
	book := s.seedBook(10, "Dune", "50.00", 5)
	res := s.checkout(1, domain.CartItem{BookID: book.ID, Quantity: 1})

	_, err := s.Payments.Verify(s.Ctx, buyer(1), res.OrderID, s.validPayment(res, "pay_1"))
	s.Require().NoError(err)

	bad := s.validPayment(res, "pay_1")
	bad.Signature = "00"

	_, err = s.Payments.Verify(s.Ctx, buyer(1), res.OrderID, bad)
	s.ErrorIs(err, domain.ErrPaymentVerificationFailed)

	order, err := s.Orders.GetOrder(s.Ctx, buyer(1), res.OrderID)
	s.Require().NoError(err)
	s.Equal(domain.PaymentStatusCompleted, order.Payment.Status)
}

func (s *IntegrationTestSuite) TestVerify_Forbidden() {
	book := s.seedBook(10, "Dune", "50.00", 5)
	res := s.checkout(1, domain.CartItem{BookID: book.ID, Quantity: 1})

	_, err := s.Payments.Verify(s.Ctx, buyer(2), res.OrderID, s.validPayment(res, "pay_1"))
	s.ErrorIs(err, domain.ErrForbidden)

	_, err = s.Payments.Verify(s.Ctx, buyer(1), 999999, s.validPayment(res, "pay_1"))
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *IntegrationTestSuite) TestVerify_ConcurrentLastUnit() {
	book := s.seedBook(10, "Dune", "50.00", 1)

	first := s.checkout(1, domain.CartItem{BookID: book.ID, Quantity: 1})
	second := s.checkout(2, domain.CartItem{BookID: book.ID, Quantity: 1})

	type attempt struct {
		orderID int64
		err     error
	}

	var (
		wg      sync.WaitGroup
		results = make(chan attempt, 2)
	)

	for i, res := range []*service.CheckoutResult{first, second} {
		wg.Add(1)
		go func(buyerID int64, res *service.CheckoutResult) {
			defer wg.Done()

			_, err := s.Payments.Verify(s.Ctx, buyer(buyerID), res.OrderID, s.validPayment(res, "pay_"+res.GatewayOrderID))
			results <- attempt{orderID: res.OrderID, err: err}
		}(int64(i+1), res)
	}

	wg.Wait()
	close(results)

	var (
		settled []int64
		losers  []int64
	)
	for r := range results {
		if r.err == nil {
			settled = append(settled, r.orderID)
			continue
		}

		var stockErr *domain.StockError
		s.Require().True(errors.As(r.err, &stockErr), "unexpected error: %v", r.err)
		s.ErrorIs(r.err, domain.ErrStockExhaustedAtSettlement)
		s.Equal(book.ID, stockErr.BookID)
		s.Equal(int32(0), stockErr.Available)

		losers = append(losers, r.orderID)
	}

	s.Require().Len(settled, 1)
	s.Require().Len(losers, 1)

	quantity, available := s.bookState(book.ID)
	s.Equal(int32(0), quantity)
	s.False(available)

	lost, err := s.Orders.GetOrder(s.Ctx, admin(), losers[0])
	s.Require().NoError(err)
	s.Equal(domain.PaymentStatusCompleted, lost.Payment.Status)
	s.Equal(domain.SettlementStatusReconciliationRequired, lost.SettlementStatus)

	s.requireEventPublished(losers[0], generalDomain.EventSettlementFailed)
}
