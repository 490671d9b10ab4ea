package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type SettlementStatus string

const (
	SettlementStatusNone                   SettlementStatus = "none"
	SettlementStatusSettled                SettlementStatus = "settled"
	SettlementStatusReconciliationRequired SettlementStatus = "reconciliation_required"
)

// Seller driven transitions. pending -> processing belongs to payment verification only.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown order status %q", ErrValidation, s)
	}
}

func ValidateTransition(from, to OrderStatus) error {
	for _, next := range orderTransitions[from] {
		if next == to {
			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
}

type ShippingAddress struct {
	FullName   string `json:"full_name" validate:"required,max=200"`
	Street     string `json:"street" validate:"required,max=500"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,max=100"`
	Phone      string `json:"phone" validate:"max=30"`
}

// PaymentRecord is the gateway side of an order. PaymentID and Signature are set only after verification.
type PaymentRecord struct {
	GatewayOrderID string        `json:"gateway_order_id"`
	PaymentID      *string       `json:"gateway_payment_id,omitempty"`
	Signature      *string       `json:"-"`
	Status         PaymentStatus `json:"status"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
}

type OrderItem struct {
	ID       int64           `json:"id"`
	OrderID  int64           `json:"order_id"`
	BookID   int64           `json:"book_id"`
	SellerID int64           `json:"seller_id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Quantity int32           `json:"quantity"`
}

func (i OrderItem) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt32(i.Quantity))
}

type Order struct {
	ID               int64            `json:"id"`
	BuyerID          int64            `json:"buyer_id"`
	BuyerEmail       string           `json:"-"`
	Items            []OrderItem      `json:"items"`
	ShippingAddress  ShippingAddress  `json:"shipping_address"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
	Currency         string           `json:"currency"`
	Payment          PaymentRecord    `json:"payment"`
	Status           OrderStatus      `json:"status"`
	SettlementStatus SettlementStatus `json:"settlement_status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (o *Order) CalculateTotal() {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Total())
	}
	o.TotalAmount = total
}

// AmountMinor is the total in the smallest currency unit, as the gateway expects it.
func (o *Order) AmountMinor() int64 {
	return o.TotalAmount.Shift(2).Round(0).IntPart()
}

func (o *Order) IsPaid() bool {
	return o.Payment.Status == PaymentStatusCompleted
}

func (o *Order) HasSeller(sellerID int64) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}

	return false
}

// CanRead is true for the buyer, any seller with a line on the order and admins.
func (o *Order) CanRead(c Caller) bool {
	return c.IsAdmin() || o.BuyerID == c.UserID || o.HasSeller(c.UserID)
}

// CanManage is true for sellers with a line on the order and admins.
func (o *Order) CanManage(c Caller) bool {
	return c.IsAdmin() || o.HasSeller(c.UserID)
}

type SellerStats struct {
	TotalBooks    int64           `json:"total_books"`
	TotalOrders   int64           `json:"total_orders"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	PendingOrders int64           `json:"pending_orders"`
}
