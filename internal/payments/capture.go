package payments

import (
	"context"
	"fmt"
	"strconv"

	"storefront/internal/domain/orders"
	"storefront/internal/payments/gateways/ordercapture"

	"github.com/shopspring/decimal"
)

type captureClient interface {
	CreateOrder(ctx context.Context, p ordercapture.CreateParams) (*ordercapture.Order, error)
	Capture(ctx context.Context, orderID, requestID string) (*ordercapture.Order, error)
}

// ApproveCapture pays through a remote order the payer approves and the
// server then captures.
type ApproveCapture struct {
	client captureClient
}

func NewApproveCapture(client captureClient) *ApproveCapture {
	return &ApproveCapture{client: client}
}

func (a *ApproveCapture) Method() orders.PaymentMethod { return orders.GatewayB }

func (a *ApproveCapture) Initiate(ctx context.Context, o *orders.Order) (Handle, error) {
	ro, err := a.client.CreateOrder(ctx, ordercapture.CreateParams{
		ReferenceID: strconv.FormatInt(o.ID, 10),
		Amount:      o.GrandTotal.StringFixed(2),
		RequestID:   idempotencyKey(o.ID),
	})
	if err != nil {
		return Handle{}, fmt.Errorf("create remote order: %w", err)
	}
	return Handle{Provider: string(orders.GatewayB), Ref: ro.ID, RedirectURL: ro.ApproveURL(), Raw: ro}, nil
}

func (a *ApproveCapture) Confirm(ctx context.Context, o *orders.Order, ref string) (orders.PaymentReceipt, error) {
	ro, err := a.client.Capture(ctx, ref, "capture_"+ref)
	if err != nil {
		return orders.PaymentReceipt{}, fmt.Errorf("capture remote order: %w", err)
	}

	for _, pu := range ro.PurchaseUnits {
		if pu.ReferenceID != "" && pu.ReferenceID != strconv.FormatInt(o.ID, 10) {
			return orders.PaymentReceipt{}, ErrHandleMismatch
		}
	}
	if ro.Status != ordercapture.StatusCompleted {
		return orders.PaymentReceipt{}, fmt.Errorf("%w: capture status %q", ErrPaymentNotCompleted, ro.Status)
	}

	amount := o.GrandTotal
	if cp, ok := ro.FirstCapture(); ok {
		if v, err := decimal.NewFromString(cp.Amount.Value); err == nil {
			amount = v
		}
	}

	return orders.PaymentReceipt{
		Provider:      string(orders.GatewayB),
		ExternalID:    ro.ID,
		Status:        ro.Status,
		PayerEmail:    ro.PayerEmail(),
		AmountSettled: amount,
	}, nil
}
