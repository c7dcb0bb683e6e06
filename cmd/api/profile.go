package main

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/domain/orders"
)

type paymentMethodPayload struct {
	PaymentMethod string `json:"payment_method" validate:"required"`
}

// GetProfile godoc
//
//	@Summary	Get checkout profile
//	@Tags		Store-Profile
//	@Produce	json
//	@Success	200	{object}	users.Profile
//	@Failure	401	{object}	error
//	@Security	ApiKeyAuth
//	@Router		/store/profile [get]
func (app *application) getProfileHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := app.store.Sales().Profiles.GetProfile(ctx, getIdentityFromContext(r).cart.UserID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, p)
}

// SetShippingAddress godoc
//
//	@Summary	Save shipping address
//	@Tags		Store-Profile
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		orders.ShippingAddress	true	"Address"
//	@Success	200		{object}	users.Profile
//	@Failure	400		{object}	error
//	@Security	ApiKeyAuth
//	@Router		/store/profile/address [put]
func (app *application) setShippingAddressHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var in orders.ShippingAddress
	if err := readJSON(w, r, &in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	p, err := app.store.Sales().Profiles.SetShippingAddress(ctx, getIdentityFromContext(r).cart.UserID, in)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, p)
}

// SetPaymentMethod godoc
//
//	@Summary		Choose payment method
//	@Description	One of gateway_a, gateway_b or manual
//	@Tags			Store-Profile
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		paymentMethodPayload	true	"Method"
//	@Success		200		{object}	users.Profile
//	@Failure		400		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/store/profile/payment-method [put]
func (app *application) setPaymentMethodHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var in paymentMethodPayload
	if err := readJSON(w, r, &in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	method, err := orders.ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	p, err := app.store.Sales().Profiles.SetPaymentMethod(ctx, getIdentityFromContext(r).cart.UserID, method)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, p)
}
