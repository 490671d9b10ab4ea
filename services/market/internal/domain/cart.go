package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	BookID   int64 `json:"book_id"`
	Quantity int32 `json:"quantity"`
}

// CartLine is a cart item priced against the current catalog.
type CartLine struct {
	BookID      int64           `json:"book_id"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	SellerID    int64           `json:"seller_id"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int32           `json:"quantity"`
	MaxQuantity int32           `json:"max_quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type CartView struct {
	UserID     int64           `json:"user_id"`
	Items      []CartLine      `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	TotalItems int32           `json:"total_items"`
}

// BuildCartView prices items with the given books. Lines whose book is missing or
// no longer sellable are left out of the view and returned as stale.
func BuildCartView(userID int64, items []CartItem, books map[int64]*Book) (*CartView, []int64) {
	view := &CartView{
		UserID:     userID,
		Items:      make([]CartLine, 0, len(items)),
		TotalPrice: decimal.Zero,
	}

	var stale []int64
	for _, item := range items {
		book, ok := books[item.BookID]
		if !ok || !book.Sellable() {
			stale = append(stale, item.BookID)
			continue
		}

		lineTotal := book.Price.Mul(decimal.NewFromInt32(item.Quantity))

		view.Items = append(view.Items, CartLine{
			BookID:      book.ID,
			Title:       book.Title,
			Author:      book.Author,
			SellerID:    book.SellerID,
			Price:       book.Price,
			Quantity:    item.Quantity,
			MaxQuantity: book.Quantity,
			LineTotal:   lineTotal,
		})

		view.TotalPrice = view.TotalPrice.Add(lineTotal)
		view.TotalItems += item.Quantity
	}

	sort.Slice(view.Items, func(i, j int) bool {
		return view.Items[i].BookID < view.Items[j].BookID
	})

	return view, stale
}

// MergeItems collapses repeated book ids by summing their quantities.
func MergeItems(items []CartItem) []CartItem {
	index := make(map[int64]int, len(items))
	merged := make([]CartItem, 0, len(items))

	for _, item := range items {
		if i, ok := index[item.BookID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}

		index[item.BookID] = len(merged)
		merged = append(merged, item)
	}

	return merged
}
