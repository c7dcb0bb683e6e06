package paymentsrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

// Payment is one attempt to collect an order's total through a provider.
type Payment struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	Provider    string          `json:"provider"`     // gateway_a, gateway_b, manual
	ProviderRef *string         `json:"provider_ref"` // remote session or order id
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	GatewayResp json.RawMessage `json:"gateway_response,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Store interface {
	Create(ctx context.Context, p *Payment) (*Payment, error)
	GetByID(ctx context.Context, id int64) (*Payment, error)
	GetLatestForOrder(ctx context.Context, orderID int64) (*Payment, error)
	GetByProviderRef(ctx context.Context, provider, ref string) (*Payment, error)
	SetProviderRef(ctx context.Context, paymentID int64, ref string, raw any) error
	SetStatus(ctx context.Context, paymentID int64, status string) error
}

const (
	LogRequest  = "request"
	LogResponse = "response"
	LogWebhook  = "webhook"
	LogError    = "error"
	LogIncident = "incident"
)

type PaymentLog struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	LogType   string          `json:"log_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type LogsStore interface {
	InsertPaymentLog(ctx context.Context, orderID int64, logType string, payload any) error
	ListForOrder(ctx context.Context, orderID int64) ([]PaymentLog, error)
}
