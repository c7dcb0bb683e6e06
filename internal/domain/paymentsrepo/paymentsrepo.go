package paymentsrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

const paymentColumns = `id, order_id, provider, provider_ref, amount, currency, status,
       gateway_response, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	if err := row.Scan(
		&p.ID, &p.OrderID, &p.Provider, &p.ProviderRef, &p.Amount, &p.Currency, &p.Status,
		&p.GatewayResp, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) Create(ctx context.Context, p *Payment) (*Payment, error) {
	if p.Status == "" {
		p.Status = StatusPending
	}
	if err := r.q.QueryRow(ctx, `
		INSERT INTO payments (order_id, provider, provider_ref, amount, currency, status)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'USD'), $6)
		RETURNING id, currency, created_at, updated_at
	`, p.OrderID, p.Provider, p.ProviderRef, p.Amount, p.Currency, p.Status).
		Scan(&p.ID, &p.Currency, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return p, nil
}

// GetByID returns nil, nil when the payment does not exist.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Payment, error) {
	p, err := scanPayment(r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (r *Repository) GetLatestForOrder(ctx context.Context, orderID int64) (*Payment, error) {
	p, err := scanPayment(r.q.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments WHERE order_id=$1
		ORDER BY id DESC
		LIMIT 1
	`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest payment: %w", err)
	}
	return p, nil
}

func (r *Repository) GetByProviderRef(ctx context.Context, provider, ref string) (*Payment, error) {
	p, err := scanPayment(r.q.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE provider = $1 AND provider_ref = $2
		ORDER BY id DESC
		LIMIT 1
	`, provider, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by provider_ref: %w", err)
	}
	return p, nil
}

func (r *Repository) SetProviderRef(ctx context.Context, paymentID int64, ref string, raw any) error {
	var jb []byte
	if raw != nil {
		if b, err := json.Marshal(raw); err == nil {
			jb = b
		}
	}
	_, err := r.q.Exec(ctx, `
		UPDATE payments SET provider_ref=$2, gateway_response=$3, updated_at=now() WHERE id=$1
	`, paymentID, ref, jb)
	if err != nil {
		return fmt.Errorf("set provider_ref: %w", err)
	}
	return nil
}

func (r *Repository) SetStatus(ctx context.Context, paymentID int64, status string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE payments SET status=$2, updated_at=now() WHERE id=$1
	`, paymentID, status)
	if err != nil {
		return fmt.Errorf("set payment status: %w", err)
	}
	return nil
}
