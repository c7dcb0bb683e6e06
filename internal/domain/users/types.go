package users

import (
	"context"
	"time"

	"storefront/internal/domain/orders"
)

// Profile holds the checkout preconditions a user sets before building an
// order. Identity and credentials live with the external auth provider.
type Profile struct {
	UserID          int64                   `json:"user_id"`
	ShippingAddress *orders.ShippingAddress `json:"shipping_address,omitempty"`
	PaymentMethod   *orders.PaymentMethod   `json:"payment_method,omitempty"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

type Store interface {
	// GetProfile returns an empty profile for users that never saved one.
	GetProfile(ctx context.Context, userID int64) (*Profile, error)
	SetShippingAddress(ctx context.Context, userID int64, addr orders.ShippingAddress) (*Profile, error)
	SetPaymentMethod(ctx context.Context, userID int64, method orders.PaymentMethod) (*Profile, error)
}
