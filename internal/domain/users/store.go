package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/domain/orders"
	"storefront/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{q: q}
}

func (r *Repository) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	p := Profile{UserID: userID}
	var (
		addr   []byte
		method *string
	)
	err := r.q.QueryRow(ctx, `
		SELECT shipping_address, payment_method, updated_at
		FROM profiles WHERE user_id = $1
	`, userID).Scan(&addr, &method, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &p, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	if len(addr) > 0 {
		var a orders.ShippingAddress
		if err := json.Unmarshal(addr, &a); err != nil {
			return nil, fmt.Errorf("decode shipping address: %w", err)
		}
		p.ShippingAddress = &a
	}
	if method != nil {
		m, err := orders.ParsePaymentMethod(*method)
		if err != nil {
			return nil, err
		}
		p.PaymentMethod = &m
	}
	return &p, nil
}

func (r *Repository) SetShippingAddress(ctx context.Context, userID int64, addr orders.ShippingAddress) (*Profile, error) {
	raw, err := json.Marshal(addr)
	if err != nil {
		return nil, fmt.Errorf("encode shipping address: %w", err)
	}
	if _, err := r.q.Exec(ctx, `
		INSERT INTO profiles (user_id, shipping_address)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET shipping_address = EXCLUDED.shipping_address, updated_at = now()
	`, userID, raw); err != nil {
		return nil, fmt.Errorf("set shipping address: %w", err)
	}
	return r.GetProfile(ctx, userID)
}

func (r *Repository) SetPaymentMethod(ctx context.Context, userID int64, method orders.PaymentMethod) (*Profile, error) {
	if _, err := r.q.Exec(ctx, `
		INSERT INTO profiles (user_id, payment_method)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET payment_method = EXCLUDED.payment_method, updated_at = now()
	`, userID, string(method)); err != nil {
		return nil, fmt.Errorf("set payment method: %w", err)
	}
	return r.GetProfile(ctx, userID)
}
