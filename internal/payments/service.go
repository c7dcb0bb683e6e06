package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain/orders"
	"storefront/internal/domain/paymentsrepo"
	"storefront/internal/domain/storage"
	"storefront/internal/infra/dbx"
	"storefront/internal/reconcile"

	"go.uber.org/zap"
)

const (
	defaultGatewayTimeout = 20 * time.Second
	settleAttempts        = 3
)

// Settler is the reconciliation step run after a provider confirms payment.
type Settler interface {
	MarkPaid(ctx context.Context, orderID int64, receipt orders.PaymentReceipt) (*reconcile.Settlement, error)
}

// Service runs initiate and confirm for an order. Gateway calls always run
// outside any database transaction.
type Service struct {
	store   storage.Store
	manager *Manager
	settler Settler
	timeout time.Duration
	logger  *zap.SugaredLogger
}

func NewService(store storage.Store, manager *Manager, settler Settler, logger *zap.SugaredLogger) *Service {
	return &Service{
		store:   store,
		manager: manager,
		settler: settler,
		timeout: defaultGatewayTimeout,
		logger:  logger,
	}
}

// WithTimeout bounds each gateway call.
func (s *Service) WithTimeout(d time.Duration) *Service {
	s.timeout = d
	return s
}

func (s *Service) audit(ctx context.Context, orderID int64, logType string, payload any) {
	if err := s.store.Sales().PayLogs.InsertPaymentLog(ctx, orderID, logType, payload); err != nil {
		s.logger.Warnw("payment log insert failed", "order_id", orderID, "log_type", logType, "error", err)
	}
}

// Initiate starts payment for one of the user's unpaid orders.
func (s *Service) Initiate(ctx context.Context, userID, orderID int64) (Handle, error) {
	sales := s.store.Sales()

	o, err := sales.Orders.GetForUser(ctx, userID, orderID)
	if err != nil {
		return Handle{}, err
	}
	if o.IsPaid {
		return Handle{}, ErrOrderAlreadyPaid
	}

	adapter, err := s.manager.Adapter(o.PaymentMethod)
	if err != nil {
		return Handle{}, err
	}

	payment, err := sales.Payments.GetLatestForOrder(ctx, o.ID)
	if err != nil {
		return Handle{}, err
	}
	if payment == nil || payment.Status != paymentsrepo.StatusPending || payment.Provider != string(o.PaymentMethod) {
		payment, err = sales.Payments.Create(ctx, &paymentsrepo.Payment{
			OrderID:  o.ID,
			Provider: string(o.PaymentMethod),
			Amount:   o.GrandTotal,
			Status:   paymentsrepo.StatusPending,
		})
		if err != nil {
			return Handle{}, err
		}
	}

	s.audit(ctx, o.ID, paymentsrepo.LogRequest, map[string]any{
		"op":       "initiate",
		"provider": o.PaymentMethod,
		"amount":   o.GrandTotal.StringFixed(2),
	})

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	h, err := adapter.Initiate(rctx, o)
	if err != nil {
		s.audit(ctx, o.ID, paymentsrepo.LogError, map[string]any{"op": "initiate", "error": err.Error()})
		s.logger.Errorw("payment initiate failed", "order_id", o.ID, "provider", o.PaymentMethod, "error", err)
		return Handle{}, err
	}

	if err := sales.Payments.SetProviderRef(ctx, payment.ID, h.Ref, h.Raw); err != nil {
		return Handle{}, err
	}
	s.audit(ctx, o.ID, paymentsrepo.LogResponse, map[string]any{
		"op":           "initiate",
		"ref":          h.Ref,
		"redirect_url": h.RedirectURL,
	})

	s.logger.Infow("payment initiated", "order_id", o.ID, "provider", o.PaymentMethod, "ref", h.Ref)
	return h, nil
}

// Confirm asks the order's provider whether ref was paid and, if so,
// settles the order. An already paid order is returned without any remote
// call.
func (s *Service) Confirm(ctx context.Context, userID, orderID int64, ref string) (*reconcile.Settlement, error) {
	o, err := s.store.Sales().Orders.GetForUser(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.IsPaid {
		return &reconcile.Settlement{Order: o, AlreadyPaid: true}, nil
	}
	return s.confirm(ctx, o, ref)
}

// HandleWebhook resolves a provider reference to its order and runs the
// confirm path. Unknown references return ErrUnknownReference.
func (s *Service) HandleWebhook(ctx context.Context, method orders.PaymentMethod, ref string) (*reconcile.Settlement, error) {
	sales := s.store.Sales()

	payment, err := sales.Payments.GetByProviderRef(ctx, string(method), ref)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrUnknownReference
	}

	s.audit(ctx, payment.OrderID, paymentsrepo.LogWebhook, map[string]any{"provider": method, "ref": ref})

	o, err := sales.Orders.GetByID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if o.IsPaid {
		return &reconcile.Settlement{Order: o, AlreadyPaid: true}, nil
	}
	return s.confirm(ctx, o, ref)
}

func (s *Service) confirm(ctx context.Context, o *orders.Order, ref string) (*reconcile.Settlement, error) {
	sales := s.store.Sales()

	adapter, err := s.manager.Adapter(o.PaymentMethod)
	if err != nil {
		return nil, err
	}

	payment, err := sales.Payments.GetLatestForOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod != orders.Manual {
		stored := ""
		if payment != nil && payment.ProviderRef != nil {
			stored = *payment.ProviderRef
		}
		switch {
		case ref == "" && stored == "":
			return nil, fmt.Errorf("%w: no payment has been initiated", ErrPaymentNotCompleted)
		case ref == "":
			ref = stored
		case stored != "" && ref != stored:
			return nil, ErrHandleMismatch
		}
	}

	s.audit(ctx, o.ID, paymentsrepo.LogRequest, map[string]any{"op": "confirm", "provider": o.PaymentMethod, "ref": ref})

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	receipt, err := adapter.Confirm(rctx, o, ref)
	cancel()
	if err != nil {
		s.audit(ctx, o.ID, paymentsrepo.LogError, map[string]any{"op": "confirm", "ref": ref, "error": err.Error()})
		s.logger.Warnw("payment confirm rejected", "order_id", o.ID, "provider", o.PaymentMethod, "error", err)
		return nil, err
	}
	s.audit(ctx, o.ID, paymentsrepo.LogResponse, receipt)

	settlement, err := s.settle(ctx, o.ID, receipt)
	if err != nil {
		if errors.Is(err, reconcile.ErrInsufficientStockAtSettlement) && o.PaymentMethod != orders.Manual {
			incident := &SettlementIncident{OrderID: o.ID, Receipt: receipt, Cause: err}
			s.audit(ctx, o.ID, paymentsrepo.LogIncident, map[string]any{"receipt": receipt, "error": err.Error()})
			s.logger.Errorw("payment captured but settlement failed",
				"order_id", o.ID,
				"provider", receipt.Provider,
				"external_id", receipt.ExternalID,
				"error", err,
			)
			return nil, incident
		}
		return nil, err
	}

	if payment != nil {
		if err := sales.Payments.SetStatus(ctx, payment.ID, paymentsrepo.StatusPaid); err != nil {
			s.logger.Warnw("payment status update failed", "payment_id", payment.ID, "error", err)
		}
	}
	return settlement, nil
}

// settle retries transaction-level conflicts with the same inputs; MarkPaid
// is idempotent so a retry after an unseen commit reports AlreadyPaid.
func (s *Service) settle(ctx context.Context, orderID int64, receipt orders.PaymentReceipt) (*reconcile.Settlement, error) {
	var lastErr error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		res, err := s.settler.MarkPaid(ctx, orderID, receipt)
		if err == nil {
			return res, nil
		}
		if !dbx.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		s.logger.Warnw("settlement conflict, retrying", "order_id", orderID, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt*25) * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("settle order %d: %w", orderID, lastErr)
}
