package payments

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"storefront/internal/domain/orders"
	"storefront/internal/payments/gateways/checkoutsession"
	"storefront/internal/payments/gateways/ordercapture"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder(id int64) *orders.Order {
	return &orders.Order{ID: id, UserID: 1, OrderNumber: "SHOP-261016-K7QXM3P", GrandTotal: decimal.RequireFromString("60.00")}
}

type fakeSessions struct {
	created atomic.Int32
	keys    sync.Map
	session *checkoutsession.Session
	err     error
}

func (f *fakeSessions) CreateSession(_ context.Context, p checkoutsession.CreateParams) (*checkoutsession.Session, error) {
	f.created.Add(1)
	f.keys.Store(p.IdempotencyKey, p)
	return &checkoutsession.Session{ID: "cs_" + p.ClientReference, URL: "https://pay.test/" + p.ClientReference}, nil
}

func (f *fakeSessions) GetSession(context.Context, string) (*checkoutsession.Session, error) {
	return f.session, f.err
}

func TestRedirectSession_Initiate(t *testing.T) {
	f := &fakeSessions{}
	a := NewRedirectSession(f)

	h, err := a.Initiate(context.Background(), testOrder(12))
	require.NoError(t, err)
	assert.Equal(t, "cs_12", h.Ref)
	assert.Equal(t, "https://pay.test/12", h.RedirectURL)
	assert.Equal(t, "gateway_a", h.Provider)

	v, ok := f.keys.Load("order_12")
	require.True(t, ok, "idempotency key is order_<id>")
	p := v.(checkoutsession.CreateParams)
	assert.Equal(t, int64(6000), p.AmountMinor)
	assert.Equal(t, "12", p.Metadata["order_id"])
}

func TestRedirectSession_Confirm(t *testing.T) {
	tests := []struct {
		name    string
		session *checkoutsession.Session
		wantErr error
	}{
		{"paid", &checkoutsession.Session{ID: "cs_12", PaymentStatus: "paid", AmountTotal: 6000, CustomerEmail: "p@x.io", Metadata: map[string]string{"order_id": "12"}}, nil},
		{"unpaid", &checkoutsession.Session{ID: "cs_12", PaymentStatus: "unpaid", Metadata: map[string]string{"order_id": "12"}}, ErrPaymentNotCompleted},
		{"other order", &checkoutsession.Session{ID: "cs_13", PaymentStatus: "paid", Metadata: map[string]string{"order_id": "13"}}, ErrHandleMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewRedirectSession(&fakeSessions{session: tt.session})
			r, err := a.Confirm(context.Background(), testOrder(12), tt.session.ID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "gateway_a", r.Provider)
			assert.Equal(t, "cs_12", r.ExternalID)
			assert.Equal(t, "paid", r.Status)
			assert.True(t, decimal.RequireFromString("60").Equal(r.AmountSettled))
			assert.Equal(t, "p@x.io", r.PayerEmail)
		})
	}
}

func TestRedirectSession_RemoteErrorIsReturned(t *testing.T) {
	a := NewRedirectSession(&fakeSessions{err: errors.New("timeout")})
	_, err := a.Confirm(context.Background(), testOrder(1), "cs_1")
	assert.ErrorContains(t, err, "timeout")
}

type fakeCapture struct {
	order *ordercapture.Order
}

func (f *fakeCapture) CreateOrder(_ context.Context, p ordercapture.CreateParams) (*ordercapture.Order, error) {
	return &ordercapture.Order{
		ID:     "RO-" + p.ReferenceID,
		Status: "CREATED",
		Links:  []ordercapture.Link{{Rel: "approve", Href: "https://pay.test/approve"}},
	}, nil
}

func (f *fakeCapture) Capture(context.Context, string, string) (*ordercapture.Order, error) {
	return f.order, nil
}

func TestApproveCapture(t *testing.T) {
	ctx := context.Background()

	h, err := NewApproveCapture(&fakeCapture{}).Initiate(ctx, testOrder(9))
	require.NoError(t, err)
	assert.Equal(t, "RO-9", h.Ref)
	assert.Equal(t, "https://pay.test/approve", h.RedirectURL)

	completed := &ordercapture.Order{ID: "RO-9", Status: "COMPLETED", PurchaseUnits: []ordercapture.PurchaseUnit{{ReferenceID: "9"}}}
	r, err := NewApproveCapture(&fakeCapture{order: completed}).Confirm(ctx, testOrder(9), "RO-9")
	require.NoError(t, err)
	assert.Equal(t, "gateway_b", r.Provider)
	assert.Equal(t, "RO-9", r.ExternalID)
	assert.Equal(t, "COMPLETED", r.Status)
	assert.True(t, decimal.NewFromInt(60).Equal(r.AmountSettled))

	pending := &ordercapture.Order{ID: "RO-9", Status: "PAYER_ACTION_REQUIRED"}
	_, err = NewApproveCapture(&fakeCapture{order: pending}).Confirm(ctx, testOrder(9), "RO-9")
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)

	foreign := &ordercapture.Order{ID: "RO-8", Status: "COMPLETED", PurchaseUnits: []ordercapture.PurchaseUnit{{ReferenceID: "8"}}}
	_, err = NewApproveCapture(&fakeCapture{order: foreign}).Confirm(ctx, testOrder(9), "RO-8")
	assert.ErrorIs(t, err, ErrHandleMismatch)
}

func TestManual_DeterministicReceipt(t *testing.T) {
	m, err := NewManual("salt")
	require.NoError(t, err)
	ctx := context.Background()

	r1, err := m.Confirm(ctx, testOrder(5), "")
	require.NoError(t, err)
	r2, err := m.Confirm(ctx, testOrder(5), "anything")
	require.NoError(t, err)
	other, err := m.Confirm(ctx, testOrder(6), "")
	require.NoError(t, err)

	assert.Regexp(t, `^COD-[A-Z0-9]{8,}$`, r1.ExternalID)
	assert.Equal(t, r1, r2)
	assert.NotEqual(t, r1.ExternalID, other.ExternalID)
	assert.Equal(t, "manual", r1.Provider)
	assert.True(t, decimal.NewFromInt(60).Equal(r1.AmountSettled))

	h, err := m.Initiate(ctx, testOrder(5))
	require.NoError(t, err)
	assert.Equal(t, r1.ExternalID, h.Ref)
}

func TestManager(t *testing.T) {
	m, err := NewManual("s")
	require.NoError(t, err)
	mgr := NewManager(m)

	a, err := mgr.Adapter(orders.Manual)
	require.NoError(t, err)
	assert.Equal(t, orders.Manual, a.Method())

	_, err = mgr.Adapter(orders.GatewayA)
	assert.ErrorIs(t, err, ErrGatewayNotRegistered)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"ref":"cs_1"}`)
	sig := Sign("whsec", body)
	assert.True(t, VerifySignature("whsec", body, sig))
	assert.False(t, VerifySignature("whsec", body, "bogus"))
	assert.False(t, VerifySignature("other", body, sig))
	assert.True(t, VerifySignature("", body, ""))
}
