package main

import (
	"context"
	"errors"
	"net/http"

	"storefront/internal/cartstore"
	"storefront/internal/domain/carts"
	"storefront/internal/domain/orders"
	"storefront/internal/domain/products"
	"storefront/internal/orderbuilder"
	"storefront/internal/payments"
	"storefront/internal/payments/gateways"
	"storefront/internal/reconcile"

	"github.com/sony/gobreaker/v2"
)

func (app *application) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Errorw("internal error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusInternalServerError, "the server encountered a problem")
}

func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("bad request", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusBadRequest, err.Error())
}

func (app *application) notFoundResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("not found error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusNotFound, err.Error())
}

func (app *application) conflictResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("conflict response", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusConflict, err.Error())
}

func (app *application) unprocessableResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unprocessable entity", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
}

func (app *application) paymentRequiredResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("payment not completed", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusPaymentRequired, err.Error())
}

func (app *application) badGatewayResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Errorw("payment gateway error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusBadGateway, "payment provider unavailable, please try again")
}

func (app *application) unauthorizedErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) unauthorizedBasicErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized basic error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)

	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request, retryAfter string) {
	app.logger.Warnw("rate limit exceeded", "method", r.Method, "path", r.URL.Path)

	w.Header().Set("Retry-After", retryAfter)

	writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, retry after: "+retryAfter)
}

// domainErrorResponse maps checkout and settlement errors to HTTP statuses.
// Anything unrecognised is a 500.
func (app *application) domainErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr *gateways.StatusError

	switch {
	case errors.Is(err, payments.ErrSettlementIncident):
		app.logger.Errorw("settlement incident", "path", r.URL.Path, "error", err.Error())
		writeJSONError(w, http.StatusConflict,
			"payment received but stock could not be allocated; our team will contact you")

	case errors.Is(err, reconcile.ErrInsufficientStockAtSettlement):
		app.logger.Warnw("settlement stock check failed", "path", r.URL.Path, "error", err.Error())
		writeJSONError(w, http.StatusConflict, "stock changed, nothing was charged, please retry")

	case errors.Is(err, cartstore.ErrInsufficientStock),
		errors.Is(err, payments.ErrOrderAlreadyPaid),
		errors.Is(err, orders.ErrNotPaid):
		app.conflictResponse(w, r, err)

	case errors.Is(err, orderbuilder.ErrEmptyCart),
		errors.Is(err, orderbuilder.ErrMissingAddress),
		errors.Is(err, orderbuilder.ErrMissingPaymentMethod),
		errors.Is(err, payments.ErrGatewayNotRegistered):
		app.unprocessableResponse(w, r, err)

	case errors.Is(err, payments.ErrPaymentNotCompleted):
		app.paymentRequiredResponse(w, r, err)

	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, products.ErrNotFound),
		errors.Is(err, cartstore.ErrItemNotInCart),
		errors.Is(err, payments.ErrUnknownReference):
		app.notFoundResponse(w, r, err)

	case errors.Is(err, cartstore.ErrInvalidQuantity),
		errors.Is(err, carts.ErrInvalidIdentity),
		errors.Is(err, orders.ErrUnknownPaymentMethod),
		errors.Is(err, products.ErrNegativeStock),
		errors.Is(err, payments.ErrHandleMismatch),
		errors.Is(err, reconcile.ErrInvalidReceipt):
		app.badRequestResponse(w, r, err)

	case errors.As(err, &statusErr),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, context.DeadlineExceeded):
		app.badGatewayResponse(w, r, err)

	default:
		app.internalServerError(w, r, err)
	}
}
