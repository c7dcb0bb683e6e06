package products

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("product not found")
	ErrNegativeStock = errors.New("stock must be >= 0")
)

type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	ImageRef  string          `json:"image_ref"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is the catalog gateway: live price and stock reads plus the
// conditional stock decrement used at settlement.
type Store interface {
	Create(ctx context.Context, p *Product) (*Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	List(ctx context.Context, limit, offset int) ([]*Product, int, error)

	// GetForUpdate row-locks the given products in ascending id order.
	// Missing ids are absent from the result.
	GetForUpdate(ctx context.Context, ids []int64) (map[int64]*Product, error)

	// DecrementStockIfAvailable subtracts qty only when stock >= qty.
	DecrementStockIfAvailable(ctx context.Context, id int64, qty int) (bool, error)
	SetStock(ctx context.Context, id int64, stock int) error
}
