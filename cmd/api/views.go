package main

import (
	"time"

	"storefront/internal/domain/carts"
	"storefront/internal/domain/orders"
	"storefront/internal/domain/products"

	"github.com/shopspring/decimal"
)

type productView struct {
	*products.Product
	ImageURL string `json:"image_url"`
}

type cartItemView struct {
	carts.Item
	ImageURL  string          `json:"image_url"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type cartView struct {
	Items                 []cartItemView  `json:"items"`
	ItemsTotal            decimal.Decimal `json:"items_total"`
	ShippingTotal         decimal.Decimal `json:"shipping_total"`
	GrandTotal            decimal.Decimal `json:"grand_total"`
	FreeShippingThreshold decimal.Decimal `json:"free_shipping_threshold"`
	UpdatedAt             string          `json:"updated_at,omitempty"`
}

type orderItemView struct {
	orders.Item
	ImageURL string `json:"image_url"`
}

type orderView struct {
	*orders.Order
	Items []orderItemView `json:"items"`
}

func (app *application) productView(p *products.Product) productView {
	return productView{Product: p, ImageURL: app.images.URL(p.ImageRef)}
}

func (app *application) cartView(c *carts.Cart) cartView {
	v := cartView{
		Items:                 make([]cartItemView, 0, len(c.Items)),
		ItemsTotal:            c.ItemsTotal,
		ShippingTotal:         c.ShippingTotal,
		GrandTotal:            c.GrandTotal,
		FreeShippingThreshold: carts.FreeShippingThreshold,
	}
	for _, it := range c.Items {
		v.Items = append(v.Items, cartItemView{
			Item:      it,
			ImageURL:  app.images.URL(it.ImageRef),
			LineTotal: it.LineTotal(),
		})
	}
	if !c.UpdatedAt.IsZero() {
		v.UpdatedAt = c.UpdatedAt.Format(time.RFC3339)
	}
	return v
}

// orderView shadows the embedded items so each line carries its image URL.
func (app *application) orderView(o *orders.Order) orderView {
	v := orderView{Order: o, Items: make([]orderItemView, 0, len(o.Items))}
	for _, it := range o.Items {
		v.Items = append(v.Items, orderItemView{Item: it, ImageURL: app.images.URL(it.ImageRef)})
	}
	return v
}
