package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidReceipt                = errors.New("payment receipt is missing provider or external id")
	ErrInsufficientStockAtSettlement = errors.New("insufficient stock at settlement")
)

type StockShortage struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

// InsufficientStockError lists every line that could not be allocated. The
// order is left unpaid and no stock was changed.
type InsufficientStockError struct {
	OrderID   int64
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("product %d: want %d, have %d", s.ProductID, s.Requested, s.Available))
	}
	return fmt.Sprintf("order %d: %s (%s)", e.OrderID, ErrInsufficientStockAtSettlement, strings.Join(parts, "; "))
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStockAtSettlement }
