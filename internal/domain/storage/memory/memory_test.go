package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/carts"
	"storefront/internal/domain/orders"
	"storefront/internal/domain/products"
	"storefront/internal/domain/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store, stock int) *products.Product {
	t.Helper()
	p, err := s.Sales().Products.Create(context.Background(), &products.Product{
		Name: "Mug", Price: decimal.NewFromInt(10), Stock: stock,
	})
	require.NoError(t, err)
	return p
}

func TestWithSalesTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seed(t, s, 5)

	boom := errors.New("boom")
	err := s.WithSalesTx(ctx, func(tx *storage.Sales) error {
		ok, err := tx.Products.DecrementStockIfAvailable(ctx, p.ID, 3)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Sales().Products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
}

func TestWithSalesTx_CommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seed(t, s, 5)

	err := s.WithSalesTx(ctx, func(tx *storage.Sales) error {
		_, err := tx.Products.DecrementStockIfAvailable(ctx, p.ID, 3)
		return err
	})
	require.NoError(t, err)

	got, _ := s.Sales().Products.GetByID(ctx, p.ID)
	assert.Equal(t, 2, got.Stock)
}

func TestDecrementStockIfAvailable_NeverNegative(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seed(t, s, 3)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Sales().Products.DecrementStockIfAvailable(ctx, p.ID, 2)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, _ := s.Sales().Products.GetByID(ctx, p.ID)
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, got.Stock)
}

func TestCarts_SessionCartsExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return now })
	ctx := context.Background()

	anon := carts.SessionIdentity("sess-1")
	require.NoError(t, s.Sales().Carts.Save(ctx, carts.New(anon)))
	user := carts.UserIdentity(1)
	require.NoError(t, s.Sales().Carts.Save(ctx, carts.New(user)))

	_, err := s.Sales().Carts.Get(ctx, anon)
	require.NoError(t, err)

	now = now.Add(8 * 24 * time.Hour)
	_, err = s.Sales().Carts.Get(ctx, anon)
	assert.ErrorIs(t, err, carts.ErrNotFound)

	n, err := s.Sales().Carts.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Sales().Carts.Get(ctx, user)
	assert.NoError(t, err, "user carts do not expire")
}

func TestCarts_ReturnedValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner := carts.UserIdentity(9)

	c := carts.New(owner)
	c.Upsert(carts.Item{ProductID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(4)})
	require.NoError(t, s.Sales().Carts.Save(ctx, c))

	got, err := s.Sales().Carts.Get(ctx, owner)
	require.NoError(t, err)
	got.Items[0].Quantity = 99

	again, _ := s.Sales().Carts.Get(ctx, owner)
	assert.Equal(t, 1, again.Items[0].Quantity)
}

func TestConstraintErrors(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seed(t, s, 1)

	assert.ErrorIs(t, s.Sales().Products.SetStock(ctx, p.ID, -1), products.ErrNegativeStock)
	_, err := s.Sales().Products.Create(ctx, &products.Product{Name: "Bad", Stock: -2})
	assert.ErrorIs(t, err, products.ErrNegativeStock)

	_, err = s.Sales().Orders.Create(ctx, &orders.Order{UserID: 1, OrderNumber: "SHOP-AAAA-BBBB"})
	assert.ErrorIs(t, err, orders.ErrInvalidOrderNumber)

	number := orders.NewOrderNumberGenerator("x").Generate(1)
	_, err = s.Sales().Orders.Create(ctx, &orders.Order{UserID: 1, OrderNumber: number})
	require.NoError(t, err)
	_, err = s.Sales().Orders.Create(ctx, &orders.Order{UserID: 2, OrderNumber: number})
	assert.ErrorIs(t, err, orders.ErrDuplicateOrderNumber)
}
