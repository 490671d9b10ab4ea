package domain

import "time"

const (
	OrderEventsTopic = "order_events"

	EventOrderCreated       = "OrderCreated"
	EventOrderPaid          = "OrderPaid"
	EventPaymentFailed      = "PaymentFailed"
	EventSettlementFailed   = "SettlementFailed"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type OrderItem struct {
	BookID   int64  `json:"book_id"`
	SellerID int64  `json:"seller_id"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	Quantity int32  `json:"quantity"`
}

type OrderCreatedEvent struct {
	OrderID        int64       `json:"order_id"`
	BuyerID        int64       `json:"buyer_id"`
	GatewayOrderID string      `json:"gateway_order_id"`
	TotalAmount    string      `json:"total_amount"`
	Currency       string      `json:"currency"`
	Items          []OrderItem `json:"items"`
	CreatedAt      time.Time   `json:"created_at"`
}

type OrderPaidEvent struct {
	OrderID          int64       `json:"order_id"`
	BuyerID          int64       `json:"buyer_id"`
	BuyerEmail       string      `json:"buyer_email,omitempty"`
	GatewayPaymentID string      `json:"gateway_payment_id"`
	TotalAmount      string      `json:"total_amount"`
	Items            []OrderItem `json:"items"`
	PaidAt           time.Time   `json:"paid_at"`
}

type PaymentFailedEvent struct {
	OrderID        int64     `json:"order_id"`
	BuyerID        int64     `json:"buyer_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	FailedAt       time.Time `json:"failed_at"`
}

type SettlementFailedEvent struct {
	OrderID       int64     `json:"order_id"`
	BuyerID       int64     `json:"buyer_id"`
	BookID        int64     `json:"book_id"`
	Requested     int32     `json:"requested"`
	Available     int32     `json:"available"`
	DetectedAt    time.Time `json:"detected_at"`
	NeedsManualOp bool      `json:"needs_manual_op"`
}

type OrderStatusChangedEvent struct {
	OrderID    int64     `json:"order_id"`
	BuyerID    int64     `json:"buyer_id"`
	BuyerEmail string    `json:"buyer_email,omitempty"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ChangedBy  int64     `json:"changed_by"`
	ChangedAt  time.Time `json:"changed_at"`
}
