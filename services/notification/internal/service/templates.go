package service

import (
	"fmt"
	"html"
	"strings"

	generalDomain "github.com/sakashimaa/book-market/pkg/domain"
	"github.com/sakashimaa/book-market/services/notification/internal/domain"
)

func orderPaidEmail(event generalDomain.OrderPaidEvent) domain.Email {
	var rows strings.Builder
	for _, item := range event.Items {
		fmt.Fprintf(&rows, "<li>%s &times; %d at %s</li>", html.EscapeString(item.Title), item.Quantity, item.Price)
	}

	return domain.Email{
		To:      event.BuyerEmail,
		Subject: fmt.Sprintf("Order #%d is paid", event.OrderID),
		HTML: fmt.Sprintf(`
		<h1>Thanks for your order!</h1>
		<p>We received payment %s for order #%d.</p>
		<ul>%s</ul>
		<p>Total: %s</p>
	`, html.EscapeString(event.GatewayPaymentID), event.OrderID, rows.String(), event.TotalAmount),
	}
}

func statusChangedEmail(event generalDomain.OrderStatusChangedEvent) domain.Email {
	return domain.Email{
		To:      event.BuyerEmail,
		Subject: fmt.Sprintf("Order #%d is %s", event.OrderID, event.To),
		HTML: fmt.Sprintf(`
		<h1>Your order was updated</h1>
		<p>Order #%d moved from %s to <b>%s</b>.</p>
	`, event.OrderID, event.From, event.To),
	}
}

func settlementFailedEmail(opsEmail string, event generalDomain.SettlementFailedEvent) domain.Email {
	return domain.Email{
		To:      opsEmail,
		Subject: fmt.Sprintf("[action required] Order #%d paid without stock", event.OrderID),
		HTML: fmt.Sprintf(`
		<h1>Settlement failed</h1>
		<p>Order #%d (buyer %d) was paid but book %d could not be settled.</p>
		<p>Requested %d, available %d. Detected at %s.</p>
		<p>Refund or restock manually.</p>
	`, event.OrderID, event.BuyerID, event.BookID, event.Requested, event.Available, event.DetectedAt.Format("2006-01-02 15:04:05 MST")),
	}
}
