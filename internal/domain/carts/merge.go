package carts

// Merge folds an anonymous cart into a user's cart and returns a new cart
// owned by the user. Lines for the same product sum their quantities, and
// every line is clamped to the live stock in stock. Lines that clamp to zero,
// including products missing from stock, are dropped. Neither input is
// modified. userCart may be nil when the user has no cart yet.
func Merge(owner Identity, userCart, anonCart *Cart, stock map[int64]int) *Cart {
	merged := New(owner)
	if userCart != nil {
		merged.ID = userCart.ID
		merged.CreatedAt = userCart.CreatedAt
		merged.Items = append(merged.Items, userCart.Items...)
	}

	if anonCart != nil {
		for _, it := range anonCart.Items {
			if i, ok := merged.Find(it.ProductID); ok {
				merged.Items[i].Quantity += it.Quantity
				continue
			}
			merged.Items = append(merged.Items, it)
		}
	}

	kept := merged.Items[:0]
	for _, it := range merged.Items {
		available := stock[it.ProductID]
		if it.Quantity > available {
			it.Quantity = available
		}
		if it.Quantity <= 0 {
			continue
		}
		it.StockAtLastSync = available
		kept = append(kept, it)
	}
	merged.Items = kept
	merged.Recompute()
	return merged
}
