package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	generalDomain "github.com/sakashimaa/book-market/pkg/domain"
	"github.com/sakashimaa/book-market/pkg/testsuite"
	"github.com/sakashimaa/book-market/services/notification/internal/domain"
	"github.com/sakashimaa/book-market/services/notification/internal/service"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []domain.Email
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg domain.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) Sent() []domain.Email {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]domain.Email(nil), f.sent...)
}

type NotificationTestSuite struct {
	testsuite.BaseSuite

	Sender  *fakeSender
	Service *service.NotificationService
}

func (s *NotificationTestSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure(testsuite.Options{
		MigrationsPath: "../migrations",
	})
}

func (s *NotificationTestSuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *NotificationTestSuite) SetupTest() {
	s.BaseSuite.TruncateTable("processed_events")

	s.Sender = &fakeSender{}
	s.Service = service.NewNotificationService(s.Sender, "ops@example.com", zap.NewNop(), s.DbPool)
}

func TestNotificationSuite(t *testing.T) {
	suite.Run(t, new(NotificationTestSuite))
}

func (s *NotificationTestSuite) processedCount() int {
	var n int
	err := s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM processed_events WHERE consumer = $1`, domain.ConsumerName).Scan(&n)
	s.Require().NoError(err)

	return n
}

func paidEvent() generalDomain.OrderPaidEvent {
	return generalDomain.OrderPaidEvent{
		OrderID:          7,
		BuyerID:          1,
		BuyerEmail:       "buyer@example.com",
		GatewayPaymentID: "pay_1",
		TotalAmount:      "399.99",
		Items: []generalDomain.OrderItem{
			{BookID: 3, SellerID: 10, Title: "Dune <1965>", Price: "199.99", Quantity: 1},
		},
		PaidAt: time.Now().UTC(),
	}
}

func (s *NotificationTestSuite) TestOrderPaid_SentOnce() {
	s.Require().NoError(s.Service.HandleOrderPaid(s.Ctx, 1, paidEvent()))
	s.Require().NoError(s.Service.HandleOrderPaid(s.Ctx, 1, paidEvent()))

	sent := s.Sender.Sent()
	s.Require().Len(sent, 1)
	s.Equal("buyer@example.com", sent[0].To)
	s.Equal("Order #7 is paid", sent[0].Subject)
	s.Contains(sent[0].HTML, "Dune &lt;1965&gt;")
	s.Contains(sent[0].HTML, "399.99")

	s.Equal(1, s.processedCount())
}

func (s *NotificationTestSuite) TestStatusChanged() {
	event := generalDomain.OrderStatusChangedEvent{
		OrderID:    7,
		BuyerID:    1,
		BuyerEmail: "buyer@example.com",
		From:       "processing",
		To:         "shipped",
		ChangedBy:  10,
		ChangedAt:  time.Now().UTC(),
	}

	s.Require().NoError(s.Service.HandleOrderStatusChanged(s.Ctx, 2, event))

	sent := s.Sender.Sent()
	s.Require().Len(sent, 1)
	s.Equal("Order #7 is shipped", sent[0].Subject)
}

func (s *NotificationTestSuite) TestSettlementFailed_GoesToOps() {
	event := generalDomain.SettlementFailedEvent{
		OrderID:       9,
		BuyerID:       2,
		BookID:        3,
		Requested:     1,
		Available:     0,
		DetectedAt:    time.Now().UTC(),
		NeedsManualOp: true,
	}

	s.Require().NoError(s.Service.HandleSettlementFailed(s.Ctx, 3, event))

	sent := s.Sender.Sent()
	s.Require().Len(sent, 1)
	s.Equal("ops@example.com", sent[0].To)
	s.Contains(sent[0].Subject, "Order #9")
}

func (s *NotificationTestSuite) TestMissingRecipient_Skipped() {
	event := paidEvent()
	event.BuyerEmail = ""

	s.Require().NoError(s.Service.HandleOrderPaid(s.Ctx, 4, event))

	s.Empty(s.Sender.Sent())
	s.Equal(0, s.processedCount())
}

func (s *NotificationTestSuite) TestSendFailure_AllowsRedelivery() {
	s.Sender.err = errors.New("smtp down")

	err := s.Service.HandleOrderPaid(s.Ctx, 5, paidEvent())
	s.Require().Error(err)
	s.Equal(0, s.processedCount())

	s.Sender.err = nil

	s.Require().NoError(s.Service.HandleOrderPaid(s.Ctx, 5, paidEvent()))
	s.Len(s.Sender.Sent(), 1)
	s.Equal(1, s.processedCount())
}
