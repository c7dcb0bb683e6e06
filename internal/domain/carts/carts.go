package carts

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
	db  dbx.Querier
	ttl time.Duration
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{db: q, ttl: 7 * 24 * time.Hour}
}

func NewRepositoryWithTTL(q dbx.Querier, ttl time.Duration) *Repository {
	return &Repository{db: q, ttl: ttl}
}

// ownerClause maps an identity to the column that keys it.
func ownerClause(owner Identity) (string, any, error) {
	if err := owner.Validate(); err != nil {
		return "", nil, err
	}
	if owner.IsUser() {
		return "user_id = $1", owner.UserID, nil
	}
	return "session_id = $1", owner.SessionID, nil
}

func (r *Repository) Get(ctx context.Context, owner Identity) (*Cart, error) {
	return r.get(ctx, owner, false)
}

func (r *Repository) GetForUpdate(ctx context.Context, owner Identity) (*Cart, error) {
	return r.get(ctx, owner, true)
}

func (r *Repository) get(ctx context.Context, owner Identity, lock bool) (*Cart, error) {
	where, arg, err := ownerClause(owner)
	if err != nil {
		return nil, err
	}

	q := `
SELECT id, items, items_total, shipping_total, grand_total, created_at, updated_at
FROM carts
WHERE ` + where + `
  AND (expires_at IS NULL OR expires_at > now())`
	if lock {
		q += "\nFOR UPDATE"
	}

	c := Cart{Owner: owner}
	var raw []byte
	err = r.db.QueryRow(ctx, q, arg).Scan(
		&c.ID, &raw, &c.ItemsTotal, &c.ShippingTotal, &c.GrandTotal, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	if err := json.Unmarshal(raw, &c.Items); err != nil {
		return nil, fmt.Errorf("decode cart items: %w", err)
	}
	if c.Items == nil {
		c.Items = []Item{}
	}
	return &c, nil
}

// ownerColumns splits an identity into the nullable owner columns and the
// unique index that keys it.
func ownerColumns(owner Identity) (userID *int64, sessionID *string, conflict string) {
	if owner.IsUser() {
		id := owner.UserID
		return &id, nil, "(user_id)"
	}
	sid := owner.SessionID
	return nil, &sid, "(session_id)"
}

// GetOrCreateForUpdate locks the owner's cart row, inserting an empty one
// first when there is none. An expired row is emptied and its expiry renewed.
//
// Concurrent first writers for the same owner serialize on the unique owner
// index: the loser waits for the winner to commit, takes the DO UPDATE path
// (which locks the row even when its WHERE is false) and then reads the
// winner's items.
func (r *Repository) GetOrCreateForUpdate(ctx context.Context, owner Identity) (*Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	userID, sessionID, conflict := ownerColumns(owner)

	_, err := r.db.Exec(ctx, `
INSERT INTO carts (user_id, session_id, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT `+conflict+`
DO UPDATE SET
  items          = '[]'::jsonb,
  items_total    = 0,
  shipping_total = 0,
  grand_total    = 0,
  expires_at     = EXCLUDED.expires_at,
  updated_at     = now()
WHERE carts.expires_at IS NOT NULL
  AND carts.expires_at <= now()
`, userID, sessionID, r.expiry(owner))
	if err != nil {
		return nil, fmt.Errorf("ensure cart: %w", err)
	}

	return r.get(ctx, owner, true)
}

// Save writes the cart for its owner. Totals are recomputed before writing so
// the stored grand total always equals items plus shipping. Read-modify-write
// callers lock the row with GetOrCreateForUpdate first.
func (r *Repository) Save(ctx context.Context, c *Cart) error {
	if err := c.Owner.Validate(); err != nil {
		return err
	}
	c.Recompute()

	raw, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("encode cart items: %w", err)
	}

	userID, sessionID, conflict := ownerColumns(c.Owner)

	err = r.db.QueryRow(ctx, `
INSERT INTO carts (user_id, session_id, items, items_total, shipping_total, grand_total, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT `+conflict+`
DO UPDATE SET
  items          = EXCLUDED.items,
  items_total    = EXCLUDED.items_total,
  shipping_total = EXCLUDED.shipping_total,
  grand_total    = EXCLUDED.grand_total,
  expires_at     = EXCLUDED.expires_at,
  updated_at     = now()
RETURNING id, created_at, updated_at
`, userID, sessionID, raw, c.ItemsTotal, c.ShippingTotal, c.GrandTotal, r.expiry(c.Owner)).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// expiry is nil for user carts; anonymous carts lapse after the TTL.
func (r *Repository) expiry(owner Identity) *time.Time {
	if owner.IsUser() {
		return nil
	}
	t := time.Now().Add(r.ttl)
	return &t
}

func (r *Repository) Delete(ctx context.Context, owner Identity) error {
	where, arg, err := ownerClause(owner)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM carts WHERE `+where, arg); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
DELETE FROM carts
WHERE expires_at IS NOT NULL
  AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("purge expired carts: %w", err)
	}
	return tag.RowsAffected(), nil
}
