package products

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"storefront/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{q: q}
}

func (r *Repository) Create(ctx context.Context, p *Product) (*Product, error) {
	if p.Stock < 0 {
		return nil, ErrNegativeStock
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO products (name, price, stock, image_ref)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, p.Name, p.Price, p.Stock, p.ImageRef).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if dbx.IsCheckViolation(err) {
		return nil, ErrNegativeStock
	}
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Product, error) {
	var p Product
	err := r.q.QueryRow(ctx, `
		SELECT id, name, price, stock, image_ref, created_at, updated_at
		FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.ImageRef, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]*Product, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.Query(ctx, `
SELECT id, name, price, stock, image_ref, created_at, updated_at,
       COUNT(*) OVER() AS total_count
FROM products
ORDER BY id ASC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var (
		out   []*Product
		total int
	)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.ImageRef, &p.CreatedAt, &p.UpdatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repository) GetForUpdate(ctx context.Context, ids []int64) (map[int64]*Product, error) {
	out := make(map[int64]*Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	// ORDER BY id keeps lock acquisition order stable across transactions.
	rows, err := r.q.Query(ctx, `
		SELECT id, name, price, stock, image_ref, created_at, updated_at
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, sorted)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.ImageRef, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan locked product: %w", err)
		}
		out[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) DecrementStockIfAvailable(ctx context.Context, id int64, qty int) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("qty must be > 0")
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE products
		   SET stock = stock - $2,
		       updated_at = now()
		 WHERE id = $1
		   AND stock >= $2
	`, id, qty)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) SetStock(ctx context.Context, id int64, stock int) error {
	if stock < 0 {
		return ErrNegativeStock
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE products SET stock = $2, updated_at = now() WHERE id = $1
	`, id, stock)
	if dbx.IsCheckViolation(err) {
		return ErrNegativeStock
	}
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
