package carts

import "github.com/shopspring/decimal"

var (
	FreeShippingThreshold = decimal.NewFromInt(150)
	FlatShippingFee       = decimal.NewFromInt(35)
)

// ShippingFor returns the shipping charge for an items total. Orders strictly
// above the threshold ship free; an empty cart ships nothing.
func ShippingFor(itemsTotal decimal.Decimal, empty bool) decimal.Decimal {
	if empty || itemsTotal.GreaterThan(FreeShippingThreshold) {
		return decimal.Zero
	}
	return FlatShippingFee
}

// Recompute refreshes the derived totals from the current items.
func (c *Cart) Recompute() {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.LineTotal())
	}
	c.ItemsTotal = total
	c.ShippingTotal = ShippingFor(total, len(c.Items) == 0)
	c.GrandTotal = c.ItemsTotal.Add(c.ShippingTotal)
}

func (c *Cart) Find(productID int64) (int, bool) {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i, true
		}
	}
	return -1, false
}

// Upsert replaces the line for item.ProductID or appends it.
func (c *Cart) Upsert(item Item) {
	if i, ok := c.Find(item.ProductID); ok {
		c.Items[i] = item
	} else {
		c.Items = append(c.Items, item)
	}
	c.Recompute()
}

func (c *Cart) Remove(productID int64) bool {
	i, ok := c.Find(productID)
	if !ok {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.Recompute()
	return true
}

func (c *Cart) Empty() {
	c.Items = []Item{}
	c.Recompute()
}

func (c *Cart) ProductIDs() []int64 {
	ids := make([]int64, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ProductID)
	}
	return ids
}
