package main

import (
	"context"
	"net/http"
	"time"
)

type addCartItemPayload struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       int   `json:"qty" validate:"required,gte=1"`
}

// A qty of zero or less removes the line.
type setCartQtyPayload struct {
	Qty *int `json:"qty" validate:"required"`
}

// GetCart godoc
//
//	@Summary		Get cart
//	@Description	Returns the signed-in user's cart, or the anonymous session cart
//	@Tags			Store-Cart
//	@Produce		json
//	@Success		200	{object}	cartView
//	@Failure		401	{object}	error	"Invalid bearer token"
//	@Failure		500	{object}	error
//	@Security		ApiKeyAuth
//	@Router			/store/cart [get]
func (app *application) getCartHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := app.carts.Get(ctx, getIdentityFromContext(r).cart)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, app.cartView(c))
}

// AddCartItem godoc
//
//	@Summary		Add item to cart
//	@Description	Adds qty of a product, merging with an existing line. Fails when the combined quantity exceeds stock.
//	@Tags			Store-Cart
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		addCartItemPayload	true	"Item"
//	@Success		201		{object}	cartView
//	@Failure		400		{object}	error
//	@Failure		404		{object}	error	"Product not found"
//	@Failure		409		{object}	error	"Insufficient stock"
//	@Security		ApiKeyAuth
//	@Router			/store/cart/items [post]
func (app *application) addCartItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var in addCartItemPayload
	if err := readJSON(w, r, &in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	c, err := app.carts.AddItem(ctx, getIdentityFromContext(r).cart, in.ProductID, in.Qty)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusCreated, app.cartView(c))
}

// SetCartItemQuantity godoc
//
//	@Summary		Set cart line quantity
//	@Description	Replaces the quantity of a line. Zero removes the line.
//	@Tags			Store-Cart
//	@Accept			json
//	@Produce		json
//	@Param			productID	path		int					true	"Product ID"
//	@Param			payload		body		setCartQtyPayload	true	"Quantity"
//	@Success		200			{object}	cartView
//	@Failure		400			{object}	error
//	@Failure		404			{object}	error	"Item not in cart"
//	@Failure		409			{object}	error	"Insufficient stock"
//	@Security		ApiKeyAuth
//	@Router			/store/cart/items/{productID} [put]
func (app *application) setCartItemQuantityHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	productID, err := parseIDParam(r, "productID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var in setCartQtyPayload
	if err := readJSON(w, r, &in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	c, err := app.carts.SetQuantity(ctx, getIdentityFromContext(r).cart, productID, *in.Qty)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, app.cartView(c))
}

// ClearCart godoc
//
//	@Summary	Clear cart
//	@Tags		Store-Cart
//	@Success	204	"Cart cleared"
//	@Failure	500	{object}	error
//	@Security	ApiKeyAuth
//	@Router		/store/cart [delete]
func (app *application) clearCartHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := app.carts.Clear(ctx, getIdentityFromContext(r).cart); err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClaimCart godoc
//
//	@Summary		Claim anonymous cart
//	@Description	Merges the cart_session cart into the signed-in user's cart, clamping quantities to stock
//	@Tags			Store-Cart
//	@Produce		json
//	@Success		200	{object}	cartView
//	@Failure		401	{object}	error
//	@Security		ApiKeyAuth
//	@Router			/store/cart/claim [post]
func (app *application) claimCartHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id := getIdentityFromContext(r)

	c, err := app.carts.MergeAnonymousIntoUser(ctx, id.sessionID, id.cart.UserID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, app.cartView(c))
}
