// Package memory is an in-process implementation of storage.Store. A single
// mutex serialises transactions and each transaction works on a private copy
// of the state that replaces the shared one only on success.
package memory

import (
	"context"
	"sync"
	"time"

	"storefront/internal/domain/carts"
	"storefront/internal/domain/orders"
	"storefront/internal/domain/paymentsrepo"
	"storefront/internal/domain/products"
	"storefront/internal/domain/storage"
	"storefront/internal/domain/users"
)

type cartRow struct {
	cart      *carts.Cart
	expiresAt *time.Time
}

type state struct {
	products map[int64]*products.Product
	carts    map[string]cartRow
	orders   map[int64]*orders.Order
	profiles map[int64]*users.Profile
	payments map[int64]*paymentsrepo.Payment
	logs     []paymentsrepo.PaymentLog

	productSeq, cartSeq, orderSeq, paymentSeq, logSeq int64
}

func newState() *state {
	return &state{
		products: make(map[int64]*products.Product),
		carts:    make(map[string]cartRow),
		orders:   make(map[int64]*orders.Order),
		profiles: make(map[int64]*users.Profile),
		payments: make(map[int64]*paymentsrepo.Payment),
	}
}

func (s *state) clone() *state {
	cp := &state{
		products:   make(map[int64]*products.Product, len(s.products)),
		carts:      make(map[string]cartRow, len(s.carts)),
		orders:     make(map[int64]*orders.Order, len(s.orders)),
		profiles:   make(map[int64]*users.Profile, len(s.profiles)),
		payments:   make(map[int64]*paymentsrepo.Payment, len(s.payments)),
		logs:       append([]paymentsrepo.PaymentLog(nil), s.logs...),
		productSeq: s.productSeq,
		cartSeq:    s.cartSeq,
		orderSeq:   s.orderSeq,
		paymentSeq: s.paymentSeq,
		logSeq:     s.logSeq,
	}
	for id, p := range s.products {
		v := *p
		cp.products[id] = &v
	}
	for k, row := range s.carts {
		cp.carts[k] = cartRow{cart: row.cart.Clone(), expiresAt: row.expiresAt}
	}
	for id, o := range s.orders {
		cp.orders[id] = o.Clone()
	}
	for id, p := range s.profiles {
		cp.profiles[id] = cloneProfile(p)
	}
	for id, p := range s.payments {
		v := *p
		cp.payments[id] = &v
	}
	return cp
}

// access runs repository bodies either against the shared state under the
// store lock (autocommit) or directly against a transaction's private copy.
type access struct {
	store *Store
	tx    *state
}

func (a *access) do(fn func(st *state) error) error {
	if a.tx != nil {
		return fn(a.tx)
	}
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return fn(a.store.st)
}

func (a *access) now() time.Time { return a.store.now() }

type Store struct {
	mu      sync.Mutex
	st      *state
	now     func() time.Time
	cartTTL time.Duration
	sales   *storage.Sales
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	s := &Store{
		st:      newState(),
		now:     time.Now,
		cartTTL: 7 * 24 * time.Hour,
	}
	s.sales = salesFor(&access{store: s})
	return s
}

// WithClock replaces the time source used for timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func salesFor(a *access) *storage.Sales {
	return &storage.Sales{
		Products: &productRepo{a},
		Carts:    &cartRepo{a},
		Orders:   &orderRepo{a},
		Profiles: &profileRepo{a},
		Payments: &paymentRepo{a},
		PayLogs:  &logRepo{a},
	}
}

func (s *Store) Sales() *storage.Sales { return s.sales }

// WithSalesTx must not call Sales() from inside fn; use the repositories it
// receives instead.
func (s *Store) WithSalesTx(ctx context.Context, fn func(tx *storage.Sales) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.st.clone()
	if err := fn(salesFor(&access{store: s, tx: work})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}
