// Package reconcile settles orders: it turns a confirmed payment receipt into
// a paid order and the matching stock decrement, exactly once.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront/internal/domain/orders"
	"storefront/internal/domain/storage"
	"storefront/internal/events"
	"storefront/internal/infra/dbx"

	"go.uber.org/zap"
)

// Settlement is the result of MarkPaid. AlreadyPaid is a success: the order
// was settled by an earlier call and nothing changed this time.
type Settlement struct {
	Order       *orders.Order
	AlreadyPaid bool
}

type Engine struct {
	store     storage.Store
	now       func() time.Time
	metrics   *Metrics
	publisher events.Publisher
	logger    *zap.SugaredLogger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.publisher = p } }

func NewEngine(store storage.Store, logger *zap.SugaredLogger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		now:       time.Now,
		publisher: events.Noop{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MarkPaid allocates stock for every line of the order and flips it to paid,
// all in one transaction. Either every decrement and the paid flag commit
// together or nothing does.
func (e *Engine) MarkPaid(ctx context.Context, orderID int64, receipt orders.PaymentReceipt) (*Settlement, error) {
	if receipt.Provider == "" || receipt.ExternalID == "" {
		return nil, ErrInvalidReceipt
	}

	start := time.Now()
	var out Settlement

	err := e.store.WithSalesTx(ctx, func(tx *storage.Sales) error {
		o, err := tx.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.IsPaid {
			out = Settlement{Order: o, AlreadyPaid: true}
			return nil
		}

		want := o.Quantities()
		ids := make([]int64, 0, len(want))
		for id := range want {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		locked, err := tx.Products.GetForUpdate(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		var shortages []StockShortage
		for _, id := range ids {
			available := 0
			if p, ok := locked[id]; ok {
				available = p.Stock
			}
			if available < want[id] {
				shortages = append(shortages, StockShortage{ProductID: id, Requested: want[id], Available: available})
			}
		}
		if len(shortages) > 0 {
			return &InsufficientStockError{OrderID: orderID, Shortages: shortages}
		}

		for _, id := range ids {
			ok, err := tx.Products.DecrementStockIfAvailable(ctx, id, want[id])
			if err != nil {
				return fmt.Errorf("decrement product %d: %w", id, err)
			}
			if !ok {
				return &InsufficientStockError{
					OrderID:   orderID,
					Shortages: []StockShortage{{ProductID: id, Requested: want[id], Available: locked[id].Stock}},
				}
			}
		}

		changed, err := tx.Orders.MarkPaid(ctx, orderID, e.now().UTC(), receipt)
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		if !changed {
			// Someone settled between our lock and the update; retrying
			// observes the paid order.
			return dbx.ErrTxConflict
		}

		paid, err := tx.Orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		out = Settlement{Order: paid}
		return nil
	})

	elapsed := time.Since(start).Seconds()
	switch {
	case err == nil && out.AlreadyPaid:
		e.metrics.observe(OutcomeAlreadyPaid, elapsed)
	case err == nil:
		e.metrics.observe(OutcomePaid, elapsed)
	case errors.Is(err, ErrInsufficientStockAtSettlement):
		e.metrics.observe(OutcomeInsufficientStock, elapsed)
	default:
		e.metrics.observe(OutcomeError, elapsed)
	}

	if err != nil {
		if errors.Is(err, ErrInsufficientStockAtSettlement) {
			e.logger.Warnw("settlement rejected", "order_id", orderID, "provider", receipt.Provider, "error", err)
		}
		return nil, err
	}

	if out.AlreadyPaid {
		e.logger.Infow("order already paid", "order_id", orderID, "provider", receipt.Provider)
		return &out, nil
	}

	e.logger.Infow("order paid",
		"order_id", orderID,
		"provider", receipt.Provider,
		"external_id", receipt.ExternalID,
		"amount", receipt.AmountSettled.StringFixed(2),
	)
	e.publishPaid(ctx, out.Order)
	return &out, nil
}

func (e *Engine) publishPaid(ctx context.Context, o *orders.Order) {
	evt := events.OrderPaid{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Amount:      o.GrandTotal,
	}
	if o.PaymentReceipt != nil {
		evt.Provider = o.PaymentReceipt.Provider
		evt.ExternalID = o.PaymentReceipt.ExternalID
		evt.Amount = o.PaymentReceipt.AmountSettled
	}
	if o.PaidAt != nil {
		evt.PaidAt = *o.PaidAt
	}

	if err := e.publisher.PublishOrderPaid(ctx, evt); err != nil {
		e.metrics.publishFailed()
		e.logger.Errorw("publish order.paid failed", "order_id", o.ID, "error", err)
	}
}

// MarkDelivered records delivery of a paid order. Repeated calls keep the
// first delivery time.
func (e *Engine) MarkDelivered(ctx context.Context, orderID int64) (*orders.Order, error) {
	var out *orders.Order
	err := e.store.WithSalesTx(ctx, func(tx *storage.Sales) error {
		o, err := tx.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.IsPaid {
			return orders.ErrNotPaid
		}
		if err := tx.Orders.MarkDelivered(ctx, orderID, e.now().UTC()); err != nil {
			return err
		}
		out, err = tx.Orders.GetByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Infow("order delivered", "order_id", orderID)
	return out, nil
}
