package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound             = errors.New("order not found")
	ErrNotPaid              = errors.New("order is not paid")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrDuplicateOrderNumber = errors.New("order number already taken")
	ErrInvalidOrderNumber   = errors.New("malformed order number")
)

type PaymentMethod string

const (
	// GatewayA is the hosted redirect-session gateway.
	GatewayA PaymentMethod = "gateway_a"
	// GatewayB is the approve-then-capture gateway.
	GatewayB PaymentMethod = "gateway_b"
	// Manual is pay on delivery.
	Manual PaymentMethod = "manual"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case GatewayA, GatewayB, Manual:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, s)
}

type ShippingAddress struct {
	FullName      string `json:"full_name" validate:"required,max=120"`
	StreetAddress string `json:"street_address" validate:"required,max=255"`
	City          string `json:"city" validate:"required,max=100"`
	PostalCode    string `json:"postal_code" validate:"required,max=20"`
	Country       string `json:"country" validate:"required,max=100"`
}

// PaymentReceipt is the provider-neutral proof of payment stored on the order.
type PaymentReceipt struct {
	Provider      string          `json:"provider"`
	ExternalID    string          `json:"external_id"`
	Status        string          `json:"status"`
	PayerEmail    string          `json:"payer_email,omitempty"`
	AmountSettled decimal.Decimal `json:"amount_settled"`
}

// Item is an immutable snapshot of a cart line taken when the order is built.
type Item struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	ImageRef  string          `json:"image_ref"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	OrderNumber     string          `json:"order_number"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	Items           []Item          `json:"items"`
	ItemsTotal      decimal.Decimal `json:"items_total"`
	ShippingTotal   decimal.Decimal `json:"shipping_total"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
	IsPaid          bool            `json:"is_paid"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	PaymentReceipt  *PaymentReceipt `json:"payment_receipt,omitempty"`
	IsDelivered     bool            `json:"is_delivered"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Quantities sums item quantities per product.
func (o *Order) Quantities() map[int64]int {
	out := make(map[int64]int, len(o.Items))
	for _, it := range o.Items {
		out[it.ProductID] += it.Quantity
	}
	return out
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		cp.DeliveredAt = &t
	}
	if o.PaymentReceipt != nil {
		r := *o.PaymentReceipt
		cp.PaymentReceipt = &r
	}
	return &cp
}

type Store interface {
	Create(ctx context.Context, o *Order) (*Order, error)
	GetByID(ctx context.Context, id int64) (*Order, error)
	// GetForUpdate locks the order row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	GetForUser(ctx context.Context, userID, id int64) (*Order, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*Order, int, error)

	// MarkPaid flips an unpaid order to paid. It reports false when the order
	// was already paid, in which case nothing is written.
	MarkPaid(ctx context.Context, id int64, paidAt time.Time, receipt PaymentReceipt) (bool, error)
	MarkDelivered(ctx context.Context, id int64, at time.Time) error
}
