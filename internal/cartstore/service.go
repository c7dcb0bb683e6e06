package cartstore

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/cache"
	"storefront/internal/domain/carts"
	"storefront/internal/domain/products"
	"storefront/internal/domain/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Service owns cart mutations. Stock checks here are advisory: nothing is
// reserved until an order settles.
type Service struct {
	store  storage.Store
	cache  cache.CartCache
	group  singleflight.Group
	logger *zap.SugaredLogger
}

func NewService(store storage.Store, c cache.CartCache, logger *zap.SugaredLogger) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	return &Service{store: store, cache: c, logger: logger}
}

// Get returns the owner's cart, or an empty unsaved cart when there is none.
func (s *Service) Get(ctx context.Context, owner carts.Identity) (*carts.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	cached, err := s.cache.Get(ctx, owner)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warnw("cart cache read failed", "owner", owner.Key(), "error", err)
	}

	v, err, _ := s.group.Do(owner.Key(), func() (any, error) {
		// Taken before the load so an invalidation racing this read makes the
		// write below a no-op instead of caching the old cart.
		gen, genErr := s.cache.Generation(ctx, owner)
		if genErr != nil {
			s.logger.Warnw("cart cache generation read failed", "owner", owner.Key(), "error", genErr)
		}

		c, err := s.store.Sales().Carts.Get(ctx, owner)
		if errors.Is(err, carts.ErrNotFound) {
			return carts.New(owner), nil
		}
		if err != nil {
			return nil, err
		}
		if genErr != nil {
			return c, nil
		}
		if err := s.cache.Set(ctx, c, gen); err != nil && !errors.Is(err, cache.ErrStale) {
			s.logger.Warnw("cart cache write failed", "owner", owner.Key(), "error", err)
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	// Shared between every caller collapsed into the same flight.
	return v.(*carts.Cart).Clone(), nil
}

// Invalidate drops the cached view for owner. Call it after any committed
// change to the cart made outside this service.
func (s *Service) Invalidate(ctx context.Context, owner carts.Identity) {
	// Later readers start a fresh load rather than joining one begun before
	// the change committed.
	s.group.Forget(owner.Key())
	if err := s.cache.Delete(ctx, owner); err != nil {
		s.logger.Warnw("cart cache invalidate failed", "owner", owner.Key(), "error", err)
	}
}

// mutate runs fn against the locked cart inside one transaction. fn reports
// whether it changed the cart; unchanged carts are not written.
func (s *Service) mutate(
	ctx context.Context,
	owner carts.Identity,
	fn func(tx *storage.Sales, c *carts.Cart) (bool, error),
) (*carts.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	var out *carts.Cart
	err := s.store.WithSalesTx(ctx, func(tx *storage.Sales) error {
		c, err := tx.Carts.GetOrCreateForUpdate(ctx, owner)
		if err != nil {
			return err
		}

		changed, err := fn(tx, c)
		if err != nil {
			return err
		}
		if changed {
			if err := tx.Carts.Save(ctx, c); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, owner)
	return out, nil
}

func snapshot(p *products.Product, qty int) carts.Item {
	return carts.Item{
		ProductID:       p.ID,
		Name:            p.Name,
		ImageRef:        p.ImageRef,
		UnitPrice:       p.Price,
		Quantity:        qty,
		StockAtLastSync: p.Stock,
	}
}

// AddItem adds qty of a product, merging with an existing line. The combined
// quantity must not exceed live stock.
func (s *Service) AddItem(ctx context.Context, owner carts.Identity, productID int64, qty int) (*carts.Cart, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	return s.mutate(ctx, owner, func(tx *storage.Sales, c *carts.Cart) (bool, error) {
		p, err := tx.Products.GetByID(ctx, productID)
		if err != nil {
			return false, err
		}

		existing := 0
		if i, ok := c.Find(productID); ok {
			existing = c.Items[i].Quantity
		}

		want := existing + qty
		if want > p.Stock {
			return false, &StockError{ProductID: productID, Requested: want, Available: p.Stock}
		}

		c.Upsert(snapshot(p, want))
		return true, nil
	})
}

// SetQuantity replaces a line's quantity. qty <= 0 removes the line and is a
// no-op when the line is absent.
func (s *Service) SetQuantity(ctx context.Context, owner carts.Identity, productID int64, qty int) (*carts.Cart, error) {
	return s.mutate(ctx, owner, func(tx *storage.Sales, c *carts.Cart) (bool, error) {
		if qty <= 0 {
			return c.Remove(productID), nil
		}

		if _, ok := c.Find(productID); !ok {
			return false, ErrItemNotInCart
		}

		p, err := tx.Products.GetByID(ctx, productID)
		if err != nil {
			return false, err
		}
		if qty > p.Stock {
			return false, &StockError{ProductID: productID, Requested: qty, Available: p.Stock}
		}

		c.Upsert(snapshot(p, qty))
		return true, nil
	})
}

// Clear deletes the owner's cart. Clearing a missing cart succeeds.
func (s *Service) Clear(ctx context.Context, owner carts.Identity) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	if err := s.store.Sales().Carts.Delete(ctx, owner); err != nil {
		return err
	}
	s.Invalidate(ctx, owner)
	return nil
}

// MergeAnonymousIntoUser moves an anonymous session's cart onto the user at
// sign-in using carts.Merge, then deletes the anonymous cart.
func (s *Service) MergeAnonymousIntoUser(ctx context.Context, sessionID string, userID int64) (*carts.Cart, error) {
	anonOwner := carts.SessionIdentity(sessionID)
	userOwner := carts.UserIdentity(userID)
	if err := anonOwner.Validate(); err != nil {
		return nil, err
	}
	if err := userOwner.Validate(); err != nil {
		return nil, err
	}

	var out *carts.Cart
	err := s.store.WithSalesTx(ctx, func(tx *storage.Sales) error {
		// Both rows are locked, anonymous first, so adds racing the merge on
		// either identity wait for it instead of being overwritten.
		anon, err := tx.Carts.GetOrCreateForUpdate(ctx, anonOwner)
		if err != nil {
			return err
		}
		user, err := tx.Carts.GetOrCreateForUpdate(ctx, userOwner)
		if err != nil {
			return err
		}

		if anon.IsEmpty() {
			if err := tx.Carts.Delete(ctx, anonOwner); err != nil {
				return err
			}
			out = user
			return nil
		}

		stock := make(map[int64]int)
		live := make(map[int64]*products.Product)
		for _, c := range []*carts.Cart{user, anon} {
			for _, id := range c.ProductIDs() {
				if _, seen := live[id]; seen {
					continue
				}
				p, err := tx.Products.GetByID(ctx, id)
				if errors.Is(err, products.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				live[id] = p
				stock[id] = p.Stock
			}
		}

		merged := carts.Merge(userOwner, user, anon, stock)
		for i, it := range merged.Items {
			merged.Items[i] = snapshot(live[it.ProductID], it.Quantity)
		}
		merged.Recompute()

		if err := tx.Carts.Save(ctx, merged); err != nil {
			return err
		}
		if err := tx.Carts.Delete(ctx, anonOwner); err != nil {
			return err
		}
		out = merged
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge carts: %w", err)
	}

	s.Invalidate(ctx, anonOwner)
	s.Invalidate(ctx, userOwner)

	s.logger.Infow("anonymous cart merged", "session", sessionID, "user_id", userID, "items", len(out.Items))
	return out, nil
}
