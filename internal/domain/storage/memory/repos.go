package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"storefront/internal/domain/carts"
	"storefront/internal/domain/orders"
	"storefront/internal/domain/paymentsrepo"
	"storefront/internal/domain/products"
	"storefront/internal/domain/users"
)

// --- products ---

type productRepo struct{ a *access }

func (r *productRepo) Create(_ context.Context, p *products.Product) (*products.Product, error) {
	if p.Stock < 0 {
		return nil, products.ErrNegativeStock
	}
	err := r.a.do(func(st *state) error {
		st.productSeq++
		now := r.a.now()
		p.ID, p.CreatedAt, p.UpdatedAt = st.productSeq, now, now
		v := *p
		st.products[p.ID] = &v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *productRepo) GetByID(_ context.Context, id int64) (*products.Product, error) {
	var out *products.Product
	err := r.a.do(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return products.ErrNotFound
		}
		v := *p
		out = &v
		return nil
	})
	return out, err
}

func (r *productRepo) List(_ context.Context, limit, offset int) ([]*products.Product, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var (
		out   []*products.Product
		total int
	)
	err := r.a.do(func(st *state) error {
		ids := make([]int64, 0, len(st.products))
		for id := range st.products {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		total = len(ids)
		for i := offset; i < len(ids) && i < offset+limit; i++ {
			v := *st.products[ids[i]]
			out = append(out, &v)
		}
		return nil
	})
	return out, total, err
}

func (r *productRepo) GetForUpdate(_ context.Context, ids []int64) (map[int64]*products.Product, error) {
	out := make(map[int64]*products.Product, len(ids))
	err := r.a.do(func(st *state) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				v := *p
				out[id] = &v
			}
		}
		return nil
	})
	return out, err
}

func (r *productRepo) DecrementStockIfAvailable(_ context.Context, id int64, qty int) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("qty must be > 0")
	}
	var ok bool
	err := r.a.do(func(st *state) error {
		p, found := st.products[id]
		if !found || p.Stock < qty {
			return nil
		}
		p.Stock -= qty
		p.UpdatedAt = r.a.now()
		ok = true
		return nil
	})
	return ok, err
}

func (r *productRepo) SetStock(_ context.Context, id int64, stock int) error {
	if stock < 0 {
		return products.ErrNegativeStock
	}
	return r.a.do(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return products.ErrNotFound
		}
		p.Stock = stock
		p.UpdatedAt = r.a.now()
		return nil
	})
}

// --- carts ---

type cartRepo struct{ a *access }

func (r *cartRepo) Get(_ context.Context, owner carts.Identity) (*carts.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	var out *carts.Cart
	err := r.a.do(func(st *state) error {
		row, ok := st.carts[owner.Key()]
		if !ok || (row.expiresAt != nil && !row.expiresAt.After(r.a.now())) {
			return carts.ErrNotFound
		}
		out = row.cart.Clone()
		return nil
	})
	return out, err
}

func (r *cartRepo) GetForUpdate(ctx context.Context, owner carts.Identity) (*carts.Cart, error) {
	return r.Get(ctx, owner)
}

func (r *cartRepo) GetOrCreateForUpdate(ctx context.Context, owner carts.Identity) (*carts.Cart, error) {
	c, err := r.Get(ctx, owner)
	if !errors.Is(err, carts.ErrNotFound) {
		return c, err
	}
	c = carts.New(owner)
	if err := r.Save(ctx, c); err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (r *cartRepo) Save(_ context.Context, c *carts.Cart) error {
	if err := c.Owner.Validate(); err != nil {
		return err
	}
	c.Recompute()
	return r.a.do(func(st *state) error {
		now := r.a.now()
		key := c.Owner.Key()
		if prev, ok := st.carts[key]; ok {
			c.ID, c.CreatedAt = prev.cart.ID, prev.cart.CreatedAt
		} else {
			st.cartSeq++
			c.ID, c.CreatedAt = st.cartSeq, now
		}
		c.UpdatedAt = now

		var exp *time.Time
		if !c.Owner.IsUser() {
			t := now.Add(r.a.store.cartTTL)
			exp = &t
		}
		st.carts[key] = cartRow{cart: c.Clone(), expiresAt: exp}
		return nil
	})
}

func (r *cartRepo) Delete(_ context.Context, owner carts.Identity) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	return r.a.do(func(st *state) error {
		delete(st.carts, owner.Key())
		return nil
	})
}

func (r *cartRepo) DeleteExpired(_ context.Context) (int64, error) {
	var n int64
	err := r.a.do(func(st *state) error {
		now := r.a.now()
		for k, row := range st.carts {
			if row.expiresAt != nil && !row.expiresAt.After(now) {
				delete(st.carts, k)
				n++
			}
		}
		return nil
	})
	return n, err
}

// --- orders ---

type orderRepo struct{ a *access }

func (r *orderRepo) Create(_ context.Context, o *orders.Order) (*orders.Order, error) {
	if !orders.ValidOrderNumber(o.OrderNumber) {
		return nil, fmt.Errorf("%w: %q", orders.ErrInvalidOrderNumber, o.OrderNumber)
	}
	err := r.a.do(func(st *state) error {
		for _, existing := range st.orders {
			if existing.OrderNumber == o.OrderNumber {
				return fmt.Errorf("%w: %s", orders.ErrDuplicateOrderNumber, o.OrderNumber)
			}
		}
		st.orderSeq++
		o.ID = st.orderSeq
		o.CreatedAt = r.a.now()
		st.orders[o.ID] = o.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepo) find(match func(o *orders.Order) bool) (*orders.Order, error) {
	var out *orders.Order
	err := r.a.do(func(st *state) error {
		for _, o := range st.orders {
			if match(o) {
				out = o.Clone()
				return nil
			}
		}
		return orders.ErrNotFound
	})
	return out, err
}

func (r *orderRepo) GetByID(_ context.Context, id int64) (*orders.Order, error) {
	return r.find(func(o *orders.Order) bool { return o.ID == id })
}

func (r *orderRepo) GetForUpdate(ctx context.Context, id int64) (*orders.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *orderRepo) GetForUser(_ context.Context, userID, id int64) (*orders.Order, error) {
	return r.find(func(o *orders.Order) bool { return o.ID == id && o.UserID == userID })
}

func (r *orderRepo) ListByUser(_ context.Context, userID int64, limit, offset int) ([]*orders.Order, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var (
		out   []*orders.Order
		total int
	)
	err := r.a.do(func(st *state) error {
		var mine []*orders.Order
		for _, o := range st.orders {
			if o.UserID == userID {
				mine = append(mine, o)
			}
		}
		sort.Slice(mine, func(i, j int) bool {
			if !mine[i].CreatedAt.Equal(mine[j].CreatedAt) {
				return mine[i].CreatedAt.After(mine[j].CreatedAt)
			}
			return mine[i].ID > mine[j].ID
		})
		total = len(mine)
		for i := offset; i < len(mine) && i < offset+limit; i++ {
			out = append(out, mine[i].Clone())
		}
		return nil
	})
	return out, total, err
}

func (r *orderRepo) MarkPaid(_ context.Context, id int64, paidAt time.Time, receipt orders.PaymentReceipt) (bool, error) {
	var changed bool
	err := r.a.do(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return orders.ErrNotFound
		}
		if o.IsPaid {
			return nil
		}
		t := paidAt
		rc := receipt
		o.IsPaid, o.PaidAt, o.PaymentReceipt = true, &t, &rc
		changed = true
		return nil
	})
	return changed, err
}

func (r *orderRepo) MarkDelivered(_ context.Context, id int64, at time.Time) error {
	return r.a.do(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return orders.ErrNotFound
		}
		o.IsDelivered = true
		if o.DeliveredAt == nil {
			t := at
			o.DeliveredAt = &t
		}
		return nil
	})
}

// --- profiles ---

type profileRepo struct{ a *access }

func cloneProfile(p *users.Profile) *users.Profile {
	cp := *p
	if p.ShippingAddress != nil {
		a := *p.ShippingAddress
		cp.ShippingAddress = &a
	}
	if p.PaymentMethod != nil {
		m := *p.PaymentMethod
		cp.PaymentMethod = &m
	}
	return &cp
}

func (r *profileRepo) GetProfile(_ context.Context, userID int64) (*users.Profile, error) {
	out := &users.Profile{UserID: userID}
	err := r.a.do(func(st *state) error {
		if p, ok := st.profiles[userID]; ok {
			out = cloneProfile(p)
		}
		return nil
	})
	return out, err
}

func (r *profileRepo) update(userID int64, fn func(p *users.Profile)) (*users.Profile, error) {
	var out *users.Profile
	err := r.a.do(func(st *state) error {
		p, ok := st.profiles[userID]
		if !ok {
			p = &users.Profile{UserID: userID}
			st.profiles[userID] = p
		}
		fn(p)
		p.UpdatedAt = r.a.now()
		out = cloneProfile(p)
		return nil
	})
	return out, err
}

func (r *profileRepo) SetShippingAddress(_ context.Context, userID int64, addr orders.ShippingAddress) (*users.Profile, error) {
	return r.update(userID, func(p *users.Profile) { p.ShippingAddress = &addr })
}

func (r *profileRepo) SetPaymentMethod(_ context.Context, userID int64, method orders.PaymentMethod) (*users.Profile, error) {
	return r.update(userID, func(p *users.Profile) { p.PaymentMethod = &method })
}

// --- payments ---

type paymentRepo struct{ a *access }

func clonePayment(p *paymentsrepo.Payment) *paymentsrepo.Payment {
	cp := *p
	if p.ProviderRef != nil {
		ref := *p.ProviderRef
		cp.ProviderRef = &ref
	}
	cp.GatewayResp = slices.Clone(p.GatewayResp)
	return &cp
}

func (r *paymentRepo) Create(_ context.Context, p *paymentsrepo.Payment) (*paymentsrepo.Payment, error) {
	if p.Status == "" {
		p.Status = paymentsrepo.StatusPending
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	err := r.a.do(func(st *state) error {
		st.paymentSeq++
		now := r.a.now()
		p.ID, p.CreatedAt, p.UpdatedAt = st.paymentSeq, now, now
		st.payments[p.ID] = clonePayment(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *paymentRepo) GetByID(_ context.Context, id int64) (*paymentsrepo.Payment, error) {
	var out *paymentsrepo.Payment
	err := r.a.do(func(st *state) error {
		if p, ok := st.payments[id]; ok {
			out = clonePayment(p)
		}
		return nil
	})
	return out, err
}

func (r *paymentRepo) latest(match func(p *paymentsrepo.Payment) bool) (*paymentsrepo.Payment, error) {
	var out *paymentsrepo.Payment
	err := r.a.do(func(st *state) error {
		for _, p := range st.payments {
			if match(p) && (out == nil || p.ID > out.ID) {
				out = p
			}
		}
		if out != nil {
			out = clonePayment(out)
		}
		return nil
	})
	return out, err
}

func (r *paymentRepo) GetLatestForOrder(_ context.Context, orderID int64) (*paymentsrepo.Payment, error) {
	return r.latest(func(p *paymentsrepo.Payment) bool { return p.OrderID == orderID })
}

func (r *paymentRepo) GetByProviderRef(_ context.Context, provider, ref string) (*paymentsrepo.Payment, error) {
	return r.latest(func(p *paymentsrepo.Payment) bool {
		return p.Provider == provider && p.ProviderRef != nil && *p.ProviderRef == ref
	})
}

func (r *paymentRepo) SetProviderRef(_ context.Context, paymentID int64, ref string, raw any) error {
	var jb json.RawMessage
	if raw != nil {
		if b, err := json.Marshal(raw); err == nil {
			jb = b
		}
	}
	return r.a.do(func(st *state) error {
		p, ok := st.payments[paymentID]
		if !ok {
			return nil
		}
		p.ProviderRef = &ref
		p.GatewayResp = jb
		p.UpdatedAt = r.a.now()
		return nil
	})
}

func (r *paymentRepo) SetStatus(_ context.Context, paymentID int64, status string) error {
	return r.a.do(func(st *state) error {
		if p, ok := st.payments[paymentID]; ok {
			p.Status = status
			p.UpdatedAt = r.a.now()
		}
		return nil
	})
}

// --- payment logs ---

type logRepo struct{ a *access }

func (r *logRepo) InsertPaymentLog(_ context.Context, orderID int64, logType string, payload any) error {
	var jb json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			jb = b
		}
	}
	return r.a.do(func(st *state) error {
		st.logSeq++
		st.logs = append(st.logs, paymentsrepo.PaymentLog{
			ID:        st.logSeq,
			OrderID:   orderID,
			LogType:   logType,
			Payload:   jb,
			CreatedAt: r.a.now(),
		})
		return nil
	})
}

func (r *logRepo) ListForOrder(_ context.Context, orderID int64) ([]paymentsrepo.PaymentLog, error) {
	var out []paymentsrepo.PaymentLog
	err := r.a.do(func(st *state) error {
		for _, l := range st.logs {
			if l.OrderID == orderID {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}
