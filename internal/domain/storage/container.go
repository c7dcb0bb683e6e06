package storage

import (
	"context"
	"fmt"

	"storefront/internal/domain/carts"
	"storefront/internal/domain/orders"
	"storefront/internal/domain/paymentsrepo"
	"storefront/internal/domain/products"
	"storefront/internal/domain/users"
	"storefront/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sales groups the repositories touched by checkout and settlement. Outside a
// transaction every call autocommits; inside WithSalesTx they share one tx.
type Sales struct {
	Products products.Store
	Carts    carts.Store
	Orders   orders.Store
	Profiles users.Store
	Payments paymentsrepo.Store
	PayLogs  paymentsrepo.LogsStore
}

// Store is implemented by the Postgres container and the in-memory store.
type Store interface {
	Sales() *Sales
	// WithSalesTx runs fn atomically. If fn returns an error nothing it did
	// is visible to other callers.
	WithSalesTx(ctx context.Context, fn func(s *Sales) error) error
}

type Container struct {
	pool  *pgxpool.Pool
	sales *Sales
}

func NewContainer(db *pgxpool.Pool) *Container {
	return &Container{
		pool:  db,
		sales: newSales(db),
	}
}

func newSales(q dbx.Querier) *Sales {
	return &Sales{
		Products: products.NewRepository(q),
		Carts:    carts.NewRepository(q),
		Orders:   orders.NewRepository(q),
		Profiles: users.NewRepository(q),
		Payments: paymentsrepo.NewRepository(q),
		PayLogs:  paymentsrepo.NewLogsRepository(q),
	}
}

func (c *Container) Sales() *Sales { return c.sales }

// WithSalesTx runs a sales unit-of-work atomically.
func (c *Container) WithSalesTx(ctx context.Context, fn func(s *Sales) error) error {
	if c.pool == nil {
		return fmt.Errorf("storage container pool is nil")
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	if err := fn(newSales(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
