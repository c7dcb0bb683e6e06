package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{q: q}
}

const orderColumns = `
id, user_id, order_number, shipping_address, payment_method,
items_total, shipping_total, grand_total,
is_paid, paid_at, payment_receipt, is_delivered, delivered_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner, extra ...any) (*Order, error) {
	var (
		o       Order
		addr    []byte
		receipt []byte
	)
	dest := []any{
		&o.ID, &o.UserID, &o.OrderNumber, &addr, &o.PaymentMethod,
		&o.ItemsTotal, &o.ShippingTotal, &o.GrandTotal,
		&o.IsPaid, &o.PaidAt, &receipt, &o.IsDelivered, &o.DeliveredAt, &o.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	if len(receipt) > 0 {
		var r PaymentReceipt
		if err := json.Unmarshal(receipt, &r); err != nil {
			return nil, fmt.Errorf("decode payment receipt: %w", err)
		}
		o.PaymentReceipt = &r
	}
	return &o, nil
}

// Create inserts the order header and its item snapshots. It must run inside
// the same transaction that empties the source cart.
func (r *Repository) Create(ctx context.Context, o *Order) (*Order, error) {
	if !ValidOrderNumber(o.OrderNumber) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrderNumber, o.OrderNumber)
	}
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("encode shipping address: %w", err)
	}

	err = r.q.QueryRow(ctx, `
		INSERT INTO orders (
		  user_id, order_number, shipping_address, payment_method,
		  items_total, shipping_total, grand_total
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, o.UserID, o.OrderNumber, addr, o.PaymentMethod,
		o.ItemsTotal, o.ShippingTotal, o.GrandTotal,
	).Scan(&o.ID, &o.CreatedAt)
	if dbx.IsUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrderNumber, o.OrderNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	for _, it := range o.Items {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, name, image_ref, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, o.ID, it.ProductID, it.Name, it.ImageRef, it.UnitPrice, it.Quantity); err != nil {
			return nil, fmt.Errorf("copy order item %d: %w", it.ProductID, err)
		}
	}
	return o, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *Repository) GetForUpdate(ctx context.Context, id int64) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) GetForUser(ctx context.Context, userID, id int64) (*Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *Repository) getOne(ctx context.Context, q string, args ...any) (*Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := r.loadItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *Repository) loadItems(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := r.q.Query(ctx, `
SELECT product_id, name, image_ref, unit_price, quantity
FROM order_items
WHERE order_id = $1
ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.ImageRef, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*Order, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.Query(ctx, `
SELECT `+orderColumns+`,
       COUNT(*) OVER() AS total_count
FROM orders
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		out   []*Order
		total int
	)
	for rows.Next() {
		o, err := scanOrder(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, o := range out {
		if o.Items, err = r.loadItems(ctx, o.ID); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func (r *Repository) MarkPaid(ctx context.Context, id int64, paidAt time.Time, receipt PaymentReceipt) (bool, error) {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return false, fmt.Errorf("encode payment receipt: %w", err)
	}

	// is_paid = false in the WHERE clause keeps a replayed settlement from
	// overwriting the first receipt even without a prior row lock.
	tag, err := r.q.Exec(ctx, `
		UPDATE orders
		   SET is_paid = true,
		       paid_at = $2,
		       payment_receipt = $3,
		       updated_at = now()
		 WHERE id = $1
		   AND is_paid = false
	`, id, paidAt, raw)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE orders
		   SET is_delivered = true,
		       delivered_at = COALESCE(delivered_at, $2),
		       updated_at = now()
		 WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark order delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
