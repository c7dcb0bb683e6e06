// Package ordercapture is a client for an approve-then-capture gateway: a
// remote order is created, approved by the payer on the gateway, then
// captured by the server.
package ordercapture

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"storefront/internal/payments/gateways"

	"go.uber.org/zap"
)

const StatusCompleted = "COMPLETED"

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Currency     string
}

type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type CaptureDetail struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount Money  `json:"amount"`
}

type PurchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	Amount      *Money `json:"amount,omitempty"`
	Payments    *struct {
		Captures []CaptureDetail `json:"captures"`
	} `json:"payments,omitempty"`
}

type Order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Links         []Link         `json:"links,omitempty"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units,omitempty"`
	Payer         *struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer,omitempty"`
}

// ApproveURL is where the payer approves the order.
func (o *Order) ApproveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

// FirstCapture returns the first capture of the first purchase unit.
func (o *Order) FirstCapture() (CaptureDetail, bool) {
	for _, pu := range o.PurchaseUnits {
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 {
			return pu.Payments.Captures[0], true
		}
	}
	return CaptureDetail{}, false
}

func (o *Order) PayerEmail() string {
	if o.Payer == nil {
		return ""
	}
	return o.Payer.EmailAddress
}

type CreateParams struct {
	ReferenceID string
	Amount      string
	RequestID   string
}

type Client struct {
	cfg  Config
	http *gateways.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
	now      func() time.Time
}

func New(cfg Config, logger *zap.SugaredLogger) *Client {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: gateways.NewClient("order-capture", 15*time.Second, logger),
		now:  time.Now,
	}
}

// accessToken returns a cached client-credentials token, refreshing it a
// minute before expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExp) {
		return c.token, nil
	}

	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID+":"+c.cfg.ClientSecret)))

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	err := c.http.Do(ctx, gateways.Request{
		Method:  http.MethodPost,
		URL:     c.cfg.BaseURL + "/v1/oauth2/token",
		Header:  h,
		RawBody: []byte(url.Values{"grant_type": {"client_credentials"}}.Encode()),
	}, &out)
	if err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("gateway returned an empty access token")
	}

	c.token = out.AccessToken
	c.tokenExp = c.now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

func (c *Client) authed(ctx context.Context, requestID string) (http.Header, error) {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	if requestID != "" {
		h.Set("PayPal-Request-Id", requestID)
	}
	return h, nil
}

func (c *Client) CreateOrder(ctx context.Context, p CreateParams) (*Order, error) {
	h, err := c.authed(ctx, p.RequestID)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []PurchaseUnit{{
			ReferenceID: p.ReferenceID,
			Amount:      &Money{CurrencyCode: c.cfg.Currency, Value: p.Amount},
		}},
	}

	var o Order
	err = c.http.Do(ctx, gateways.Request{
		Method: http.MethodPost,
		URL:    c.cfg.BaseURL + "/v2/checkout/orders",
		Header: h,
		Body:   body,
	}, &o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Capture captures an approved order. Retrying with the same request id is
// safe.
func (c *Client) Capture(ctx context.Context, orderID, requestID string) (*Order, error) {
	h, err := c.authed(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var o Order
	err = c.http.Do(ctx, gateways.Request{
		Method: http.MethodPost,
		URL:    c.cfg.BaseURL + "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture",
		Header: h,
		Body:   map[string]any{},
	}, &o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	h, err := c.authed(ctx, "")
	if err != nil {
		return nil, err
	}

	var o Order
	err = c.http.Do(ctx, gateways.Request{
		Method: http.MethodGet,
		URL:    c.cfg.BaseURL + "/v2/checkout/orders/" + url.PathEscape(orderID),
		Header: h,
	}, &o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
