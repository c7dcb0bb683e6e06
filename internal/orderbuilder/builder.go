// Package orderbuilder turns a user's cart into an immutable order.
package orderbuilder

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain/carts"
	"storefront/internal/domain/orders"
	"storefront/internal/domain/storage"
	"storefront/internal/domain/users"

	"go.uber.org/zap"
)

var (
	ErrMissingAddress       = errors.New("shipping address is required")
	ErrMissingPaymentMethod = errors.New("payment method is required")
	ErrEmptyCart            = errors.New("cart is empty")
)

// CartInvalidator drops cached cart views after the builder empties a cart.
type CartInvalidator interface {
	Invalidate(ctx context.Context, owner carts.Identity)
}

const numberAttempts = 3

type Builder struct {
	store   storage.Store
	numbers *orders.OrderNumberGenerator
	carts   CartInvalidator
	logger  *zap.SugaredLogger
}

func New(store storage.Store, numbers *orders.OrderNumberGenerator, inv CartInvalidator, logger *zap.SugaredLogger) *Builder {
	return &Builder{
		store:   store,
		numbers: numbers,
		carts:   inv,
		logger:  logger,
	}
}

// Build snapshots the user's cart into a new unpaid order and empties the
// cart in the same transaction. Stock is not checked here; settlement does
// that.
func (b *Builder) Build(ctx context.Context, userID int64) (*orders.Order, error) {
	owner := carts.UserIdentity(userID)
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	profile, err := b.store.Sales().Profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile.ShippingAddress == nil {
		return nil, ErrMissingAddress
	}
	if profile.PaymentMethod == nil || *profile.PaymentMethod == "" {
		return nil, ErrMissingPaymentMethod
	}

	var created *orders.Order
	for attempt := 1; ; attempt++ {
		created, err = b.create(ctx, owner, profile)
		if errors.Is(err, orders.ErrDuplicateOrderNumber) && attempt < numberAttempts {
			b.logger.Warnw("order number collision, regenerating", "user_id", userID, "attempt", attempt)
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	if b.carts != nil {
		b.carts.Invalidate(ctx, owner)
	}

	b.logger.Infow("order created",
		"order_id", created.ID,
		"order_number", created.OrderNumber,
		"user_id", userID,
		"grand_total", created.GrandTotal.StringFixed(2),
		"payment_method", created.PaymentMethod,
	)
	return created, nil
}

// create runs one attempt with a freshly generated order number.
func (b *Builder) create(ctx context.Context, owner carts.Identity, profile *users.Profile) (*orders.Order, error) {
	userID := owner.UserID

	var created *orders.Order
	err := b.store.WithSalesTx(ctx, func(tx *storage.Sales) error {
		cart, err := tx.Carts.GetForUpdate(ctx, owner)
		if errors.Is(err, carts.ErrNotFound) {
			return ErrEmptyCart
		}
		if err != nil {
			return err
		}
		if cart.IsEmpty() {
			return ErrEmptyCart
		}

		// Totals are taken from the cart as priced at its last mutation.
		cart.Recompute()

		o := &orders.Order{
			UserID:          userID,
			OrderNumber:     b.numbers.Generate(userID),
			ShippingAddress: *profile.ShippingAddress,
			PaymentMethod:   *profile.PaymentMethod,
			Items:           make([]orders.Item, 0, len(cart.Items)),
			ItemsTotal:      cart.ItemsTotal,
			ShippingTotal:   cart.ShippingTotal,
			GrandTotal:      cart.GrandTotal,
		}
		for _, it := range cart.Items {
			o.Items = append(o.Items, orders.Item{
				ProductID: it.ProductID,
				Name:      it.Name,
				ImageRef:  it.ImageRef,
				UnitPrice: it.UnitPrice,
				Quantity:  it.Quantity,
			})
		}

		created, err = tx.Orders.Create(ctx, o)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		cart.Empty()
		return tx.Carts.Save(ctx, cart)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
