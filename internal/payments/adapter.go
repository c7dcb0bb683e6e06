package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"storefront/internal/domain/orders"
	"storefront/internal/reconcile"
)

var (
	ErrPaymentNotCompleted  = errors.New("payment not completed")
	ErrHandleMismatch       = errors.New("payment handle does not belong to this order")
	ErrGatewayNotRegistered = errors.New("gateway not registered")
	ErrOrderAlreadyPaid     = errors.New("order is already paid")
	ErrUnknownReference     = errors.New("unknown payment reference")
	ErrSettlementIncident   = errors.New("payment captured but stock could not be allocated")
)

// Handle is what initiate hands back to the client: a provider reference to
// confirm later and, for redirect flows, where to send the payer.
type Handle struct {
	Provider    string `json:"provider"`
	Ref         string `json:"ref"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Raw         any    `json:"-"`
}

// Adapter drives one payment provider and normalises its result into an
// orders.PaymentReceipt. Confirm must only return a receipt for money that
// has actually been collected or, for Manual, committed to collection.
type Adapter interface {
	Method() orders.PaymentMethod
	Initiate(ctx context.Context, o *orders.Order) (Handle, error)
	Confirm(ctx context.Context, o *orders.Order, ref string) (orders.PaymentReceipt, error)
}

// SettlementIncident means a remote gateway already holds the payer's money
// but settlement could not allocate stock. It needs a refund or restock by
// staff rather than a retry by the payer.
type SettlementIncident struct {
	OrderID int64
	Receipt orders.PaymentReceipt
	Cause   error
}

func (e *SettlementIncident) Error() string {
	return fmt.Sprintf("order %d: %s: %v", e.OrderID, ErrSettlementIncident, e.Cause)
}

func (e *SettlementIncident) Is(target error) bool {
	return target == ErrSettlementIncident
}

func (e *SettlementIncident) Unwrap() error { return e.Cause }

// IsSettlementStockFailure reports whether err is a plain settlement stock
// failure where nothing was charged.
func IsSettlementStockFailure(err error) bool {
	return errors.Is(err, reconcile.ErrInsufficientStockAtSettlement) && !errors.Is(err, ErrSettlementIncident)
}

func idempotencyKey(orderID int64) string {
	return "order_" + strconv.FormatInt(orderID, 10)
}
