package cartstore

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrItemNotInCart     = errors.New("item not in cart")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
)

// StockError reports the quantity that was asked for against live stock.
type StockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }
