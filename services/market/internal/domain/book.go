package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Book struct {
	ID          int64           `json:"id"`
	SellerID    int64           `json:"seller_id"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int32           `json:"quantity"`
	IsAvailable bool            `json:"is_available"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Sellable reports whether the book can currently be put in a cart or ordered at all.
func (b *Book) Sellable() bool {
	return b.IsAvailable && b.Quantity > 0
}

// CanFulfil reports whether qty units can be taken from current stock.
func (b *Book) CanFulfil(qty int32) bool {
	return b.Sellable() && qty <= b.Quantity
}
