package payments

import (
	"context"
	"fmt"
	"strconv"

	"storefront/internal/domain/orders"
	"storefront/internal/payments/gateways/checkoutsession"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

type sessionClient interface {
	CreateSession(ctx context.Context, p checkoutsession.CreateParams) (*checkoutsession.Session, error)
	GetSession(ctx context.Context, id string) (*checkoutsession.Session, error)
}

// RedirectSession pays through a hosted checkout page.
type RedirectSession struct {
	client sessionClient
	group  singleflight.Group
}

func NewRedirectSession(client sessionClient) *RedirectSession {
	return &RedirectSession{client: client}
}

func (a *RedirectSession) Method() orders.PaymentMethod { return orders.GatewayA }

// Initiate opens a session keyed by order_<id>, so repeated or concurrent
// calls for one order share a single remote session.
func (a *RedirectSession) Initiate(ctx context.Context, o *orders.Order) (Handle, error) {
	key := idempotencyKey(o.ID)

	v, err, _ := a.group.Do(key, func() (any, error) {
		return a.client.CreateSession(ctx, checkoutsession.CreateParams{
			ClientReference: strconv.FormatInt(o.ID, 10),
			AmountMinor:     o.GrandTotal.Shift(2).Round(0).IntPart(),
			Metadata: map[string]string{
				"order_id":     strconv.FormatInt(o.ID, 10),
				"order_number": o.OrderNumber,
			},
			IdempotencyKey: key,
		})
	})
	if err != nil {
		return Handle{}, fmt.Errorf("create checkout session: %w", err)
	}

	s := v.(*checkoutsession.Session)
	return Handle{Provider: string(orders.GatewayA), Ref: s.ID, RedirectURL: s.URL, Raw: s}, nil
}

func (a *RedirectSession) Confirm(ctx context.Context, o *orders.Order, ref string) (orders.PaymentReceipt, error) {
	s, err := a.client.GetSession(ctx, ref)
	if err != nil {
		return orders.PaymentReceipt{}, fmt.Errorf("get checkout session: %w", err)
	}

	if s.Metadata["order_id"] != strconv.FormatInt(o.ID, 10) {
		return orders.PaymentReceipt{}, ErrHandleMismatch
	}
	if s.PaymentStatus != checkoutsession.StatusPaid {
		return orders.PaymentReceipt{}, fmt.Errorf("%w: session status %q", ErrPaymentNotCompleted, s.PaymentStatus)
	}

	return orders.PaymentReceipt{
		Provider:      string(orders.GatewayA),
		ExternalID:    s.ID,
		Status:        s.PaymentStatus,
		PayerEmail:    s.CustomerEmail,
		AmountSettled: decimal.New(s.AmountTotal, -2),
	}, nil
}
