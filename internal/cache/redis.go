package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"storefront/internal/domain/carts"

	"github.com/redis/go-redis/v9"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
		genTTL:  24 * time.Hour,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
	// genTTL outlives any cart entry so a generation never resets while a
	// reader still holds it.
	genTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, owner carts.Identity) (*carts.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart carts.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

func (r *RedisCache) Generation(ctx context.Context, owner carts.Identity) (int64, error) {
	gen, err := r.client.Get(ctx, genKey(owner)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

// Set stores the cart with a jittered TTL so entries written together do not
// all expire together. The write happens in a WATCH transaction on the
// generation key and is dropped with ErrStale if gen is no longer current.
func (r *RedisCache) Set(ctx context.Context, cart *carts.Cart, gen int64) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	jitter := time.Duration(rand.Intn(5)) * time.Minute

	gk := genKey(cart.Owner)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(cart.Owner), data, r.baseTTL+jitter)
			return nil
		})
		return err
	}, gk)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStale), errors.Is(err, redis.TxFailedErr):
		return ErrStale
	default:
		return fmt.Errorf("redis set failed: %w", err)
	}
}

// Delete advances the owner's generation and drops the entry in one MULTI.
func (r *RedisCache) Delete(ctx context.Context, owner carts.Identity) error {
	gk := genKey(owner)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, r.genTTL)
		pipe.Del(ctx, cacheKey(owner))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(owner carts.Identity) string {
	return fmt.Sprintf("cart:%s", owner.Key())
}

func genKey(owner carts.Identity) string {
	return fmt.Sprintf("cartgen:%s", owner.Key())
}
