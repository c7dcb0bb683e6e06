package carts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("cart not found")
	ErrInvalidIdentity = errors.New("cart identity must be exactly one of user or session")
)

// Identity is the owner key of a cart: an authenticated user or an
// anonymous browser session, never both.
type Identity struct {
	UserID    int64  `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func UserIdentity(userID int64) Identity { return Identity{UserID: userID} }
func SessionIdentity(sessionID string) Identity { return Identity{SessionID: sessionID} }

func (i Identity) IsUser() bool { return i.UserID > 0 }

func (i Identity) Validate() error {
	hasUser := i.UserID > 0
	hasSession := strings.TrimSpace(i.SessionID) != ""
	if hasUser == hasSession {
		return ErrInvalidIdentity
	}
	return nil
}

// Key is stable per identity and used for cache keys and logging.
func (i Identity) Key() string {
	if i.IsUser() {
		return fmt.Sprintf("user:%d", i.UserID)
	}
	return "session:" + i.SessionID
}

// Item is a cart line. Price, name, image and stock are snapshots refreshed
// on every mutating operation; they are not authoritative.
type Item struct {
	ProductID       int64           `json:"product_id"`
	Name            string          `json:"name"`
	ImageRef        string          `json:"image_ref"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Quantity        int             `json:"quantity"`
	StockAtLastSync int             `json:"stock_at_last_sync"`
}

func (it Item) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

type Cart struct {
	ID            int64           `json:"id"`
	Owner         Identity        `json:"owner"`
	Items         []Item          `json:"items"`
	ItemsTotal    decimal.Decimal `json:"items_total"`
	ShippingTotal decimal.Decimal `json:"shipping_total"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// New returns an empty, unsaved cart for the identity.
func New(owner Identity) *Cart {
	c := &Cart{Owner: owner, Items: []Item{}}
	c.Recompute()
	return c
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	return &cp
}

type Store interface {
	Get(ctx context.Context, owner Identity) (*Cart, error)
	// GetForUpdate locks the cart row for the rest of the transaction.
	GetForUpdate(ctx context.Context, owner Identity) (*Cart, error)
	// GetOrCreateForUpdate is GetForUpdate that never misses: a missing or
	// expired cart is replaced by an empty locked row.
	GetOrCreateForUpdate(ctx context.Context, owner Identity) (*Cart, error)
	// Save upserts the cart keyed by its owner and refreshes its expiry.
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, owner Identity) error
	DeleteExpired(ctx context.Context) (int64, error)
}
