package gateways

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_DecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "abc", r.Header.Get("X-Test"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"s_1"}`))
	}))
	defer srv.Close()

	c := NewClient("test", time.Second, zap.NewNop().Sugar())
	var out struct {
		ID string `json:"id"`
	}
	err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Header: http.Header{"X-Test": {"abc"}},
		Body:   map[string]string{"a": "b"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "s_1", out.ID)
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("test", time.Second, zap.NewNop().Sugar())
	for i := 0; i < 10; i++ {
		err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, nil)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	}
	assert.Equal(t, int32(10), calls.Load())
}

func TestClient_ServerErrorsOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("test", time.Second, zap.NewNop().Sugar())
	for i := 0; i < 5; i++ {
		_ = c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, nil)
	}

	err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, nil)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(5), calls.Load())
}
