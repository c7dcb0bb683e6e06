package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront/internal/domain/orders"
	"storefront/internal/payments"

	"github.com/go-chi/chi/v5"
)

const signatureHeader = "X-Signature"

type webhookPayload struct {
	Ref string `json:"ref" validate:"required,max=255"`
}

// webhookSecret reports the callback secret for a gateway. In production a
// gateway without one has no webhook at all rather than an unsigned one.
func (app *application) webhookSecret(method orders.PaymentMethod) (string, bool) {
	var secret string
	switch method {
	case orders.GatewayA:
		secret = app.config.checkout.gatewayAWebhookSecret
	case orders.GatewayB:
		secret = app.config.checkout.gatewayBWebhookSecret
	default:
		return "", false
	}
	if secret == "" && app.config.env == "production" {
		return "", false
	}
	return secret, true
}

// unsignedWebhooks lists enabled gateways whose callbacks would be accepted
// without a signature check.
func (c checkoutConfig) unsignedWebhooks() []orders.PaymentMethod {
	var out []orders.PaymentMethod
	if c.gatewayA.BaseURL != "" && c.gatewayAWebhookSecret == "" {
		out = append(out, orders.GatewayA)
	}
	if c.gatewayB.BaseURL != "" && c.gatewayBWebhookSecret == "" {
		out = append(out, orders.GatewayB)
	}
	return out
}

// PaymentWebhook godoc
//
//	@Summary		Gateway callback
//	@Description	Signed notification from a payment gateway. The body carries the provider reference; the order is settled exactly as on confirm.
//	@Tags			Store-Payments
//	@Accept			json
//	@Produce		json
//	@Param			provider	path		string			true	"gateway_a or gateway_b"
//	@Param			payload		body		webhookPayload	true	"Provider reference"
//	@Success		200			{object}	map[string]string
//	@Failure		400			{object}	error
//	@Failure		401			{object}	error	"Bad signature"
//	@Failure		502			{object}	error
//	@Router			/store/payments/webhook/{provider} [post]
func (app *application) paymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	method, err := orders.ParsePaymentMethod(chi.URLParam(r, "provider"))
	if err != nil {
		app.notFoundResponse(w, r, err)
		return
	}
	secret, ok := app.webhookSecret(method)
	if !ok {
		app.notFoundResponse(w, r, fmt.Errorf("no webhook for %s", method))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if !payments.VerifySignature(secret, body, r.Header.Get(signatureHeader)) {
		app.unauthorizedErrorResponse(w, r, fmt.Errorf("webhook signature mismatch for %s", method))
		return
	}

	var in webhookPayload
	if err := json.Unmarshal(body, &in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	s, err := app.payments.HandleWebhook(ctx, method, in.Ref)
	switch {
	case err == nil:
	case errors.Is(err, payments.ErrUnknownReference):
		app.logger.Warnw("webhook for unknown reference", "provider", method, "ref", in.Ref)
		app.jsonResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	case errors.Is(err, payments.ErrPaymentNotCompleted):
		app.jsonResponse(w, http.StatusOK, map[string]string{"status": "pending"})
		return
	case errors.Is(err, payments.ErrSettlementIncident):
		// Recorded as an incident; a redelivery cannot fix it.
		app.logger.Errorw("webhook settlement incident", "provider", method, "ref", in.Ref, "error", err)
		app.jsonResponse(w, http.StatusOK, map[string]string{"status": "incident"})
		return
	default:
		app.domainErrorResponse(w, r, err)
		return
	}

	status := "paid"
	if s.AlreadyPaid {
		status = "already_paid"
	}
	app.jsonResponse(w, http.StatusOK, map[string]any{
		"status":       status,
		"order_number": s.Order.OrderNumber,
	})
}
