package payments

import (
	"context"
	"fmt"

	"storefront/internal/domain/orders"

	"github.com/speps/go-hashids/v2"
)

const manualStatus = "pending_collection"

// Manual is pay on delivery. There is no remote call; the receipt id is
// derived from the order id so every confirm of one order yields the same
// receipt.
type Manual struct {
	ids *hashids.HashID
}

func NewManual(salt string) (*Manual, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 8
	hd.Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("init hashids: %w", err)
	}
	return &Manual{ids: h}, nil
}

func (m *Manual) Method() orders.PaymentMethod { return orders.Manual }

func (m *Manual) reference(orderID int64) (string, error) {
	hash, err := m.ids.EncodeInt64([]int64{orderID})
	if err != nil {
		return "", fmt.Errorf("encode receipt id: %w", err)
	}
	return "COD-" + hash, nil
}

func (m *Manual) Initiate(_ context.Context, o *orders.Order) (Handle, error) {
	ref, err := m.reference(o.ID)
	if err != nil {
		return Handle{}, err
	}
	return Handle{Provider: string(orders.Manual), Ref: ref}, nil
}

// Confirm ignores ref; Manual needs no prior Initiate.
func (m *Manual) Confirm(_ context.Context, o *orders.Order, _ string) (orders.PaymentReceipt, error) {
	ref, err := m.reference(o.ID)
	if err != nil {
		return orders.PaymentReceipt{}, err
	}
	return orders.PaymentReceipt{
		Provider:      string(orders.Manual),
		ExternalID:    ref,
		Status:        manualStatus,
		AmountSettled: o.GrandTotal,
	}, nil
}
