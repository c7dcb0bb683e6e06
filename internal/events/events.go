// Package events publishes order lifecycle notifications for downstream
// consumers such as fulfilment and email.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const RoutingOrderPaid = "order.paid"

type OrderPaid struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	Provider    string          `json:"provider"`
	ExternalID  string          `json:"external_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAt      time.Time       `json:"paid_at"`
}

type Publisher interface {
	PublishOrderPaid(ctx context.Context, evt OrderPaid) error
}

type Noop struct{}

func (Noop) PublishOrderPaid(context.Context, OrderPaid) error { return nil }
