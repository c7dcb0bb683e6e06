package cache

import (
	"context"
	"testing"
	"time"

	"storefront/internal/domain/carts"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client), mr
}

func sampleCart(owner carts.Identity) *carts.Cart {
	c := carts.New(owner)
	c.ID = 3
	c.Upsert(carts.Item{ProductID: 1, Name: "Mug", Quantity: 2, UnitPrice: decimal.NewFromInt(10)})
	c.Upsert(carts.Item{ProductID: 2, Name: "Tee", Quantity: 1, UnitPrice: decimal.NewFromInt(5)})
	return c
}

func TestSetThenGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	owner := carts.UserIdentity(42)

	require.NoError(t, cache.Set(ctx, sampleCart(owner), 0))
	assert.True(t, mr.Exists("cart:user:42"))

	got, err := cache.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, owner, got.Owner)
	assert.Len(t, got.Items, 2)
	assert.True(t, decimal.NewFromInt(60).Equal(got.GrandTotal))
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	got, err := cache.Get(context.Background(), carts.SessionIdentity("nope"))
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, got)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("cart:session:bad", "{not json"))

	_, err := cache.Get(context.Background(), carts.SessionIdentity("bad"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_TTLIsJittered(t *testing.T) {
	cache, mr := setupTestRedis(t)
	owner := carts.SessionIdentity("s1")
	require.NoError(t, cache.Set(context.Background(), sampleCart(owner), 0))

	ttl := mr.TTL("cart:session:s1")
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.Less(t, ttl, 20*time.Minute)
}

func TestDelete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	owner := carts.UserIdentity(1)

	require.NoError(t, cache.Set(ctx, sampleCart(owner), 0))
	require.NoError(t, cache.Delete(ctx, owner))
	assert.False(t, mr.Exists("cart:user:1"))

	_, err := cache.Get(ctx, owner)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisUnavailable(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), carts.UserIdentity(1))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestDelete_AdvancesGeneration(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()
	owner := carts.UserIdentity(9)

	gen, err := cache.Generation(ctx, owner)
	require.NoError(t, err)
	assert.Zero(t, gen)

	require.NoError(t, cache.Delete(ctx, owner))
	require.NoError(t, cache.Delete(ctx, owner))

	gen, err = cache.Generation(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)
}

func TestSet_RejectsOldGeneration(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	owner := carts.UserIdentity(9)

	gen, err := cache.Generation(ctx, owner)
	require.NoError(t, err)

	// An invalidation lands between the reader's load and its write.
	require.NoError(t, cache.Delete(ctx, owner))

	err = cache.Set(ctx, sampleCart(owner), gen)
	assert.ErrorIs(t, err, ErrStale)
	assert.False(t, mr.Exists("cart:user:9"))

	gen, err = cache.Generation(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, sampleCart(owner), gen))
	assert.True(t, mr.Exists("cart:user:9"))
}
