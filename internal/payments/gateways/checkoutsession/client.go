// Package checkoutsession is a client for a hosted checkout gateway: the
// shopper is redirected to a session page and the server later reads the
// session's payment status.
package checkoutsession

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/payments/gateways"

	"go.uber.org/zap"
)

const StatusPaid = "paid"

type Config struct {
	BaseURL    string
	SecretKey  string
	SuccessURL string
	CancelURL  string
	Currency   string
}

type Session struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type CreateParams struct {
	ClientReference string
	AmountMinor     int64
	Metadata        map[string]string
	IdempotencyKey  string
}

type Client struct {
	cfg  Config
	http *gateways.Client
}

func New(cfg Config, logger *zap.SugaredLogger) *Client {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: gateways.NewClient("checkout-session", 15*time.Second, logger),
	}
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	return h
}

// CreateSession opens a hosted checkout session. Repeating a call with the
// same idempotency key returns the original session.
func (c *Client) CreateSession(ctx context.Context, p CreateParams) (*Session, error) {
	h := c.headers()
	if p.IdempotencyKey != "" {
		h.Set("Idempotency-Key", p.IdempotencyKey)
	}

	body := map[string]any{
		"mode":                "payment",
		"client_reference_id": p.ClientReference,
		"amount_total":        p.AmountMinor,
		"currency":            c.cfg.Currency,
		"success_url":         c.cfg.SuccessURL,
		"cancel_url":          c.cfg.CancelURL,
		"metadata":            p.Metadata,
	}

	var s Session
	err := c.http.Do(ctx, gateways.Request{
		Method: http.MethodPost,
		URL:    c.cfg.BaseURL + "/v1/checkout/sessions",
		Header: h,
		Body:   body,
	}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := c.http.Do(ctx, gateways.Request{
		Method: http.MethodGet,
		URL:    c.cfg.BaseURL + "/v1/checkout/sessions/" + url.PathEscape(id),
		Header: c.headers(),
	}, &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
