package cache

import (
	"context"
	"errors"

	"storefront/internal/domain/carts"
)

// CartCache is a read-through cache of cart views keyed by owner identity.
//
// Each owner has a generation that Delete advances. A reader takes the
// generation before loading the cart and hands it to Set, which refuses to
// write once the generation has moved on.
type CartCache interface {
	Get(ctx context.Context, owner carts.Identity) (*carts.Cart, error)
	Generation(ctx context.Context, owner carts.Identity) (int64, error)
	Set(ctx context.Context, cart *carts.Cart, gen int64) error
	Delete(ctx context.Context, owner carts.Identity) error
}

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStale is returned by Set when the owner was invalidated after gen
	// was read. Nothing is written.
	ErrStale = errors.New("cache entry is stale")
)

// Noop never stores anything; every Get is a miss.
type Noop struct{}

func (Noop) Get(context.Context, carts.Identity) (*carts.Cart, error) { return nil, ErrCacheMiss }
func (Noop) Generation(context.Context, carts.Identity) (int64, error) { return 0, nil }
func (Noop) Set(context.Context, *carts.Cart, int64) error { return nil }
func (Noop) Delete(context.Context, carts.Identity) error { return nil }
