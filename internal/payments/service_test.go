package payments

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"

	"storefront/internal/domain/orders"
	"storefront/internal/domain/paymentsrepo"
	"storefront/internal/domain/products"
	"storefront/internal/domain/storage/memory"
	"storefront/internal/infra/dbx"
	"storefront/internal/payments/gateways/checkoutsession"
	"storefront/internal/reconcile"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// sessionGateway remembers created sessions and reports them with a
// configurable status.
type sessionGateway struct {
	status string
	gets   atomic.Int32
}

func (g *sessionGateway) CreateSession(_ context.Context, p checkoutsession.CreateParams) (*checkoutsession.Session, error) {
	return &checkoutsession.Session{ID: "cs_" + p.ClientReference, URL: "https://pay.test", Metadata: p.Metadata}, nil
}

func (g *sessionGateway) GetSession(_ context.Context, id string) (*checkoutsession.Session, error) {
	g.gets.Add(1)
	ref := id[len("cs_"):]
	return &checkoutsession.Session{ID: id, PaymentStatus: g.status, AmountTotal: 1035, Metadata: map[string]string{"order_id": ref}}, nil
}

type harness struct {
	store   *memory.Store
	svc     *Service
	gateway *sessionGateway
	product *products.Product
}

func newHarness(t *testing.T, stock int) *harness {
	t.Helper()
	store := memory.New()
	logger := zap.NewNop().Sugar()

	p, err := store.Sales().Products.Create(context.Background(), &products.Product{Name: "Mug", Price: decimal.NewFromInt(10), Stock: stock})
	require.NoError(t, err)

	manual, err := NewManual("salt")
	require.NoError(t, err)
	gw := &sessionGateway{status: "paid"}

	mgr := NewManager(manual, NewRedirectSession(gw))
	return &harness{
		store:   store,
		svc:     NewService(store, mgr, reconcile.NewEngine(store, logger), logger),
		gateway: gw,
		product: p,
	}
}

func (h *harness) order(t *testing.T, userID int64, method orders.PaymentMethod, qty int) *orders.Order {
	t.Helper()
	o, err := h.store.Sales().Orders.Create(context.Background(), &orders.Order{
		UserID:        userID,
		OrderNumber:   orders.NewOrderNumberGenerator("x").Generate(userID),
		PaymentMethod: method,
		Items:         []orders.Item{{ProductID: h.product.ID, Name: "Mug", UnitPrice: decimal.NewFromInt(10), Quantity: qty}},
		ItemsTotal:    decimal.NewFromInt(int64(10 * qty)),
		ShippingTotal: decimal.NewFromInt(35),
		GrandTotal:    decimal.NewFromInt(int64(10*qty + 35)),
	})
	require.NoError(t, err)
	return o
}

func (h *harness) stock(t *testing.T) int {
	t.Helper()
	p, err := h.store.Sales().Products.GetByID(context.Background(), h.product.ID)
	require.NoError(t, err)
	return p.Stock
}

func (h *harness) logTypes(t *testing.T, orderID int64) []string {
	t.Helper()
	logs, err := h.store.Sales().PayLogs.ListForOrder(context.Background(), orderID)
	require.NoError(t, err)
	var out []string
	for _, l := range logs {
		out = append(out, l.LogType)
	}
	return out
}

func TestConfirm_ManualWithoutInitiate(t *testing.T) {
	h := newHarness(t, 5)
	o := h.order(t, 1, orders.Manual, 2)

	res, err := h.svc.Confirm(context.Background(), 1, o.ID, "")
	require.NoError(t, err)
	assert.False(t, res.AlreadyPaid)
	assert.True(t, res.Order.IsPaid)
	assert.Regexp(t, `^COD-`, res.Order.PaymentReceipt.ExternalID)
	assert.Equal(t, 3, h.stock(t))
}

func TestRedirectFlow_InitiateConfirmReplay(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()
	o := h.order(t, 1, orders.GatewayA, 1)

	handle, err := h.svc.Initiate(ctx, 1, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "cs_"+strconv.FormatInt(o.ID, 10), handle.Ref)

	payment, err := h.store.Sales().Payments.GetLatestForOrder(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, payment.ProviderRef)
	assert.Equal(t, handle.Ref, *payment.ProviderRef)
	assert.Equal(t, paymentsrepo.StatusPending, payment.Status)

	// Initiating again reuses the pending payment row.
	_, err = h.svc.Initiate(ctx, 1, o.ID)
	require.NoError(t, err)
	again, err := h.store.Sales().Payments.GetLatestForOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, again.ID)

	res, err := h.svc.Confirm(ctx, 1, o.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Order.IsPaid)
	assert.Equal(t, "gateway_a", res.Order.PaymentReceipt.Provider)

	replay, err := h.svc.Confirm(ctx, 1, o.ID, handle.Ref)
	require.NoError(t, err)
	assert.True(t, replay.AlreadyPaid)
	assert.Equal(t, int32(1), h.gateway.gets.Load(), "paid orders are not re-confirmed remotely")
	assert.Equal(t, 4, h.stock(t))

	paid, err := h.store.Sales().Payments.GetLatestForOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentsrepo.StatusPaid, paid.Status)

	_, err = h.svc.Initiate(ctx, 1, o.ID)
	assert.ErrorIs(t, err, ErrOrderAlreadyPaid)

	assert.Contains(t, h.logTypes(t, o.ID), paymentsrepo.LogRequest)
	assert.Contains(t, h.logTypes(t, o.ID), paymentsrepo.LogResponse)
}

func TestConfirm_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("not initiated", func(t *testing.T) {
		h := newHarness(t, 5)
		o := h.order(t, 1, orders.GatewayA, 1)
		_, err := h.svc.Confirm(ctx, 1, o.ID, "")
		assert.ErrorIs(t, err, ErrPaymentNotCompleted)
	})

	t.Run("handle differs from initiated one", func(t *testing.T) {
		h := newHarness(t, 5)
		o := h.order(t, 1, orders.GatewayA, 1)
		_, err := h.svc.Initiate(ctx, 1, o.ID)
		require.NoError(t, err)
		_, err = h.svc.Confirm(ctx, 1, o.ID, "cs_999")
		assert.ErrorIs(t, err, ErrHandleMismatch)
	})

	t.Run("gateway not paid", func(t *testing.T) {
		h := newHarness(t, 5)
		h.gateway.status = "unpaid"
		o := h.order(t, 1, orders.GatewayA, 1)
		_, err := h.svc.Initiate(ctx, 1, o.ID)
		require.NoError(t, err)

		_, err = h.svc.Confirm(ctx, 1, o.ID, "")
		require.ErrorIs(t, err, ErrPaymentNotCompleted)

		got, err := h.store.Sales().Orders.GetByID(ctx, o.ID)
		require.NoError(t, err)
		assert.False(t, got.IsPaid)
		assert.Equal(t, 5, h.stock(t))
		assert.Contains(t, h.logTypes(t, o.ID), paymentsrepo.LogError)
	})

	t.Run("someone else's order", func(t *testing.T) {
		h := newHarness(t, 5)
		o := h.order(t, 1, orders.Manual, 1)
		_, err := h.svc.Confirm(ctx, 2, o.ID, "")
		assert.ErrorIs(t, err, orders.ErrNotFound)
	})
}

func TestConfirm_StockFailureAfterCaptureIsAnIncident(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	o := h.order(t, 1, orders.GatewayA, 2)

	_, err := h.svc.Initiate(ctx, 1, o.ID)
	require.NoError(t, err)

	_, err = h.svc.Confirm(ctx, 1, o.ID, "")
	require.ErrorIs(t, err, ErrSettlementIncident)
	require.ErrorIs(t, err, reconcile.ErrInsufficientStockAtSettlement)
	assert.False(t, IsSettlementStockFailure(err))

	var inc *SettlementIncident
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, o.ID, inc.OrderID)
	assert.Equal(t, "gateway_a", inc.Receipt.Provider)
	assert.Contains(t, h.logTypes(t, o.ID), paymentsrepo.LogIncident)
	assert.Equal(t, 1, h.stock(t))
}

func TestConfirm_ManualStockFailureIsRetryable(t *testing.T) {
	h := newHarness(t, 1)
	o := h.order(t, 1, orders.Manual, 2)

	_, err := h.svc.Confirm(context.Background(), 1, o.ID, "")
	require.Error(t, err)
	assert.True(t, IsSettlementStockFailure(err))
}

func TestHandleWebhook(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()
	o := h.order(t, 1, orders.GatewayA, 1)

	_, err := h.svc.HandleWebhook(ctx, orders.GatewayA, "cs_unknown")
	assert.ErrorIs(t, err, ErrUnknownReference)

	handle, err := h.svc.Initiate(ctx, 1, o.ID)
	require.NoError(t, err)

	res, err := h.svc.HandleWebhook(ctx, orders.GatewayA, handle.Ref)
	require.NoError(t, err)
	assert.True(t, res.Order.IsPaid)
	assert.Contains(t, h.logTypes(t, o.ID), paymentsrepo.LogWebhook)

	again, err := h.svc.HandleWebhook(ctx, orders.GatewayA, handle.Ref)
	require.NoError(t, err)
	assert.True(t, again.AlreadyPaid)
}

type flakySettler struct {
	failures int
	calls    int
}

func (f *flakySettler) MarkPaid(_ context.Context, orderID int64, _ orders.PaymentReceipt) (*reconcile.Settlement, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, dbx.ErrTxConflict
	}
	return &reconcile.Settlement{Order: &orders.Order{ID: orderID, IsPaid: true}}, nil
}

func TestSettle_RetriesConflicts(t *testing.T) {
	fs := &flakySettler{failures: 2}
	svc := NewService(memory.New(), NewManager(), fs, zap.NewNop().Sugar())

	res, err := svc.settle(context.Background(), 3, orders.PaymentReceipt{Provider: "manual", ExternalID: "x"})
	require.NoError(t, err)
	assert.True(t, res.Order.IsPaid)
	assert.Equal(t, 3, fs.calls)

	fs = &flakySettler{failures: 5}
	svc = NewService(memory.New(), NewManager(), fs, zap.NewNop().Sugar())
	_, err = svc.settle(context.Background(), 3, orders.PaymentReceipt{Provider: "manual", ExternalID: "x"})
	assert.ErrorIs(t, err, dbx.ErrTxConflict)
	assert.Equal(t, settleAttempts, fs.calls)
}
