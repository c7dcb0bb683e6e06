package cartstore

import (
	"context"
	"sync"
	"testing"

	"storefront/internal/cache"
	"storefront/internal/domain/carts"
	"storefront/internal/domain/products"
	"storefront/internal/domain/storage"
	"storefront/internal/domain/storage/memory"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc   *Service
	store *memory.Store
	mr    *miniredis.Miniredis
	a, b  *products.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	a, err := store.Sales().Products.Create(ctx, &products.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 5, ImageRef: "shop/a"})
	require.NoError(t, err)
	b, err := store.Sales().Products.Create(ctx, &products.Product{Name: "B", Price: decimal.NewFromInt(5), Stock: 3, ImageRef: "shop/b"})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return &fixture{
		svc:   NewService(store, cache.NewRedisCache(client), zap.NewNop().Sugar()),
		store: store,
		mr:    mr,
		a:     a,
		b:     b,
	}
}

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func TestAddItem_SnapshotsAndTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := carts.UserIdentity(1)

	_, err := f.svc.AddItem(ctx, owner, f.a.ID, 2)
	require.NoError(t, err)
	c, err := f.svc.AddItem(ctx, owner, f.b.ID, 1)
	require.NoError(t, err)

	require.Len(t, c.Items, 2)
	assert.Equal(t, "A", c.Items[0].Name)
	assert.Equal(t, "shop/a", c.Items[0].ImageRef)
	assert.Equal(t, 5, c.Items[0].StockAtLastSync)
	assert.True(t, dec(25).Equal(c.ItemsTotal))
	assert.True(t, dec(35).Equal(c.ShippingTotal))
	assert.True(t, dec(60).Equal(c.GrandTotal))
}

func TestAddItem_MergesLineAndChecksCombinedQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := carts.SessionIdentity("s-1")

	_, err := f.svc.AddItem(ctx, owner, f.a.ID, 3)
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, owner, f.a.ID, 3)
	require.ErrorIs(t, err, ErrInsufficientStock)
	var se *StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 6, se.Requested)
	assert.Equal(t, 5, se.Available)

	c, err := f.svc.AddItem(ctx, owner, f.a.ID, 2)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
}

func TestAddItem_RefreshesPriceSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := carts.UserIdentity(1)

	_, err := f.svc.AddItem(ctx, owner, f.a.ID, 1)
	require.NoError(t, err)

	require.NoError(t, f.store.WithSalesTx(ctx, func(tx *storage.Sales) error {
		return tx.Products.SetStock(ctx, f.a.ID, 9)
	}))

	c, err := f.svc.AddItem(ctx, owner, f.a.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 9, c.Items[0].StockAtLastSync)
}

func TestAddItem_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, carts.UserIdentity(1), f.a.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.AddItem(ctx, carts.UserIdentity(1), 999, 1)
	assert.ErrorIs(t, err, products.ErrNotFound)

	_, err = f.svc.AddItem(ctx, carts.Identity{}, f.a.ID, 1)
	assert.ErrorIs(t, err, carts.ErrInvalidIdentity)
}

func TestSetQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := carts.UserIdentity(1)

	_, err := f.svc.AddItem(ctx, owner, f.a.ID, 1)
	require.NoError(t, err)

	c, err := f.svc.SetQuantity(ctx, owner, f.a.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Items[0].Quantity)
	assert.True(t, dec(40).Equal(c.ItemsTotal))

	_, err = f.svc.SetQuantity(ctx, owner, f.a.ID, 6)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = f.svc.SetQuantity(ctx, owner, f.b.ID, 1)
	assert.ErrorIs(t, err, ErrItemNotInCart)

	c, err = f.svc.SetQuantity(ctx, owner, f.a.ID, 0)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.True(t, c.GrandTotal.IsZero())

	c, err = f.svc.SetQuantity(ctx, owner, f.a.ID, -1)
	require.NoError(t, err, "removing an absent line is not an error")
	assert.True(t, c.IsEmpty())
}

func TestClear_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := carts.UserIdentity(1)

	_, err := f.svc.AddItem(ctx, owner, f.a.ID, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.Clear(ctx, owner))
	require.NoError(t, f.svc.Clear(ctx, owner))

	_, err = f.store.Sales().Carts.Get(ctx, owner)
	assert.ErrorIs(t, err, carts.ErrNotFound)

	c, err := f.svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestGet_ReadThroughCacheIsInvalidatedOnMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := carts.UserIdentity(7)

	_, err := f.svc.AddItem(ctx, owner, f.a.ID, 1)
	require.NoError(t, err)

	c, err := f.svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.True(t, f.mr.Exists("cart:user:7"))

	_, err = f.svc.SetQuantity(ctx, owner, f.a.ID, 2)
	require.NoError(t, err)
	assert.False(t, f.mr.Exists("cart:user:7"))

	c, err = f.svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Items[0].Quantity)
}

// gatedCache parks the first Set until release is closed.
type gatedCache struct {
	cache.CartCache
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCache) Set(ctx context.Context, c *carts.Cart, gen int64) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.CartCache.Set(ctx, c, gen)
}

func TestGet_DoesNotCacheCartLoadedBeforeMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := carts.UserIdentity(11)

	_, err := f.svc.AddItem(ctx, owner, f.a.ID, 1)
	require.NoError(t, err)

	gate := &gatedCache{
		CartCache: f.svc.cache,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	f.svc.cache = gate

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Get(ctx, owner)
		done <- err
	}()
	<-gate.entered

	// The reader holds the one-item cart; the line is removed under it.
	_, err = f.svc.SetQuantity(ctx, owner, f.a.ID, 0)
	require.NoError(t, err)

	close(gate.release)
	require.NoError(t, <-done)

	assert.False(t, f.mr.Exists("cart:user:11"))

	c, err := f.svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestGet_SurvivesCacheOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := carts.UserIdentity(7)

	_, err := f.svc.AddItem(ctx, owner, f.a.ID, 1)
	require.NoError(t, err)

	f.mr.Close()

	c, err := f.svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, c.Items, 1)
}

func TestMergeAnonymousIntoUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	anon := carts.SessionIdentity("sess")
	user := carts.UserIdentity(3)

	_, err := f.svc.AddItem(ctx, user, f.a.ID, 3)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, anon, f.a.ID, 4)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, anon, f.b.ID, 2)
	require.NoError(t, err)

	merged, err := f.svc.MergeAnonymousIntoUser(ctx, "sess", 3)
	require.NoError(t, err)
	assert.Equal(t, user, merged.Owner)

	require.Len(t, merged.Items, 2)
	i, _ := merged.Find(f.a.ID)
	assert.Equal(t, 5, merged.Items[i].Quantity, "3+4 clamped to stock 5")
	i, _ = merged.Find(f.b.ID)
	assert.Equal(t, 2, merged.Items[i].Quantity)
	assert.True(t, dec(60).Equal(merged.ItemsTotal))
	assert.True(t, dec(95).Equal(merged.GrandTotal))

	_, err = f.store.Sales().Carts.Get(ctx, anon)
	assert.ErrorIs(t, err, carts.ErrNotFound)

	stored, err := f.store.Sales().Carts.Get(ctx, user)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
}

func TestMergeAnonymousIntoUser_NoAnonymousCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, carts.UserIdentity(3), f.b.ID, 1)
	require.NoError(t, err)

	merged, err := f.svc.MergeAnonymousIntoUser(ctx, "missing", 3)
	require.NoError(t, err)
	require.Len(t, merged.Items, 1)
	assert.Equal(t, 1, merged.Items[0].Quantity)
}
