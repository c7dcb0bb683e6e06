package main

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/params"
)

type confirmPaymentPayload struct {
	Handle string `json:"handle" validate:"max=255"`
}

type settlementResponse struct {
	Order       orderView `json:"order"`
	AlreadyPaid bool      `json:"already_paid"`
}

// CreateOrder godoc
//
//	@Summary		Place order
//	@Description	Builds an order from the cart, saved address and payment method, then empties the cart
//	@Tags			Store-Orders
//	@Produce		json
//	@Success		201	{object}	orderView
//	@Failure		401	{object}	error
//	@Failure		422	{object}	error	"Empty cart, missing address or payment method"
//	@Security		ApiKeyAuth
//	@Router			/store/orders [post]
func (app *application) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := app.builder.Build(ctx, getIdentityFromContext(r).cart.UserID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusCreated, app.orderView(o))
}

// ListOrders godoc
//
//	@Summary	List my orders
//	@Tags		Store-Orders
//	@Produce	json
//	@Param		page	query		int	false	"Page number"
//	@Param		limit	query		int	false	"Items per page"
//	@Success	200		{object}	map[string]any
//	@Security	ApiKeyAuth
//	@Router		/store/orders [get]
func (app *application) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p := params.ParsePagination(r.URL.Query(), params.OrderHistory)

	list, total, err := app.store.Sales().Orders.ListByUser(ctx, getIdentityFromContext(r).cart.UserID, p.Limit, p.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	p.ComputeMeta(total)

	views := make([]orderView, 0, len(list))
	for _, o := range list {
		views = append(views, app.orderView(o))
	}

	app.jsonResponse(w, http.StatusOK, map[string]any{
		"orders":     views,
		"pagination": p,
	})
}

// GetOrder godoc
//
//	@Summary	Get my order
//	@Tags		Store-Orders
//	@Produce	json
//	@Param		orderID	path		int	true	"Order ID"
//	@Success	200		{object}	orderView
//	@Failure	404		{object}	error
//	@Security	ApiKeyAuth
//	@Router		/store/orders/{orderID} [get]
func (app *application) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	o, err := app.store.Sales().Orders.GetForUser(ctx, getIdentityFromContext(r).cart.UserID, orderID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, app.orderView(o))
}

// InitiatePayment godoc
//
//	@Summary		Start payment
//	@Description	Opens a payment with the order's provider and returns the handle to confirm with
//	@Tags			Store-Orders
//	@Produce		json
//	@Param			orderID	path		int	true	"Order ID"
//	@Success		200		{object}	payments.Handle
//	@Failure		404		{object}	error
//	@Failure		409		{object}	error	"Order already paid"
//	@Failure		502		{object}	error	"Provider unavailable"
//	@Security		ApiKeyAuth
//	@Router			/store/orders/{orderID}/payment [post]
func (app *application) initiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	h, err := app.payments.Initiate(ctx, getIdentityFromContext(r).cart.UserID, orderID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, h)
}

// ConfirmPayment godoc
//
//	@Summary		Confirm payment
//	@Description	Verifies the payment with the provider and settles the order. Replays return the paid order.
//	@Tags			Store-Orders
//	@Accept			json
//	@Produce		json
//	@Param			orderID	path		int						true	"Order ID"
//	@Param			payload	body		confirmPaymentPayload	true	"Provider handle"
//	@Success		200		{object}	settlementResponse
//	@Failure		402		{object}	error	"Payment not completed"
//	@Failure		409		{object}	error	"Stock changed"
//	@Security		ApiKeyAuth
//	@Router			/store/orders/{orderID}/payment/confirm [post]
func (app *application) confirmPaymentHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var in confirmPaymentPayload
	if err := readJSON(w, r, &in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	s, err := app.payments.Confirm(ctx, getIdentityFromContext(r).cart.UserID, orderID, in.Handle)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, settlementResponse{
		Order:       app.orderView(s.Order),
		AlreadyPaid: s.AlreadyPaid,
	})
}
