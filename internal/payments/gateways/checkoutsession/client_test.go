package checkoutsession

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreateAndGetSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
			assert.Equal(t, "order_12", r.Header.Get("Idempotency-Key"))
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.EqualValues(t, 6000, body["amount_total"])
			assert.Equal(t, "eur", body["currency"])
			assert.Equal(t, "https://shop.test/ok", body["success_url"])
			_ = json.NewEncoder(w).Encode(Session{ID: "cs_1", URL: "https://pay.test/cs_1", PaymentStatus: "unpaid"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/checkout/sessions/cs_1":
			_ = json.NewEncoder(w).Encode(Session{ID: "cs_1", PaymentStatus: StatusPaid, AmountTotal: 6000, Metadata: map[string]string{"order_id": "12"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", SecretKey: "sk_test", SuccessURL: "https://shop.test/ok", Currency: "eur"}, zap.NewNop().Sugar())
	ctx := context.Background()

	s, err := c.CreateSession(ctx, CreateParams{ClientReference: "12", AmountMinor: 6000, IdempotencyKey: "order_12"})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", s.ID)
	assert.Equal(t, "https://pay.test/cs_1", s.URL)

	got, err := c.GetSession(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.PaymentStatus)
	assert.Equal(t, "12", got.Metadata["order_id"])

	_, err = c.GetSession(ctx, "missing")
	assert.Error(t, err)
}
