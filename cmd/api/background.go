package main

import (
	"context"
	"time"

	"storefront/internal/ratelimiter"
)

// purgeExpiredCartsEvery drops anonymous carts past their expiry, once
// immediately and then every d until ctx is done.
func (app *application) purgeExpiredCartsEvery(ctx context.Context, d time.Duration) {
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()

		for {
			n, err := app.store.Sales().Carts.DeleteExpired(ctx)
			if err != nil {
				app.logger.Errorf("Error purging expired carts: %v", err)
			} else if n > 0 {
				app.logger.Infof("Purged %d expired carts at %s", n, time.Now().Format(time.RFC1123))
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (app *application) sweepRateLimiterEvery(ctx context.Context, rl *ratelimiter.FixedWindowRateLimiter, d time.Duration) {
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Sweep()
			}
		}
	}()
}
