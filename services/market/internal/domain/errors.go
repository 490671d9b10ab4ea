package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation                 = errors.New("validation error")
	ErrEmptyOrder                 = errors.New("order has no items")
	ErrInvalidQuantity            = errors.New("invalid quantity")
	ErrOutOfStock                 = errors.New("book is out of stock")
	ErrInsufficientStock          = errors.New("insufficient stock")
	ErrBookNotFound               = errors.New("book not found")
	ErrOrderNotFound              = errors.New("order not found")
	ErrCartItemNotFound           = errors.New("item not found in cart")
	ErrForbidden                  = errors.New("forbidden")
	ErrPaymentVerificationFailed  = errors.New("payment verification failed")
	ErrUnpaidOrder                = errors.New("cannot update status for unpaid order")
	ErrInvalidStatusTransition    = errors.New("invalid status transition")
	ErrStatusConflict             = errors.New("order status changed concurrently")
	ErrStockExhaustedAtSettlement = errors.New("stock exhausted at settlement")
	ErrGatewayUnavailable         = errors.New("payment gateway unavailable")
	ErrGatewayRejected            = errors.New("payment gateway rejected the request")
)

// StockError names the book that broke a stock rule and how many units are actually allowed.
type StockError struct {
	Err       error
	BookID    int64
	Title     string
	Requested int32
	Available int32
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%s: %q (book %d) requested %d, maximum allowed %d",
		e.Err, e.Title, e.BookID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return e.Err
}

func NewStockError(err error, book *Book, requested int32) *StockError {
	available := book.Quantity
	if !book.IsAvailable || available < 0 {
		available = 0
	}

	return &StockError{
		Err:       err,
		BookID:    book.ID,
		Title:     book.Title,
		Requested: requested,
		Available: available,
	}
}
