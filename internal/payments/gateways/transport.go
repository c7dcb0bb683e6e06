// Package gateways holds the HTTP plumbing shared by the remote payment
// gateway clients.
package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// StatusError is a non-2xx reply from a gateway. Bodies are kept for the
// payment audit log.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

type response struct {
	status int
	body   []byte
}

// Client is an HTTP client guarded by a circuit breaker. Only transport
// failures and 5xx replies count against the breaker.
type Client struct {
	http   *http.Client
	cb     *gobreaker.CircuitBreaker[*response]
	logger *zap.SugaredLogger
}

func NewClient(name string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("gateway circuit breaker state changed", "gateway", name, "from", from.String(), "to", to.String())
		},
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		cb:     gobreaker.NewCircuitBreaker[*response](st),
		logger: logger,
	}
}

func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode < 500
	}
	return false
}

// Request describes one call. RawBody is sent as is; otherwise Body, when
// set, is encoded as JSON.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    any
	RawBody []byte
}

// Do sends req and decodes a 2xx JSON reply into out when out is non-nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var body io.Reader
	switch {
	case req.RawBody != nil:
		body = bytes.NewReader(req.RawBody)
	case req.Body != nil:
		b, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	resp, err := c.cb.Execute(func() (*response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
		if err != nil {
			return nil, err
		}
		for k, vs := range req.Header {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
		if httpReq.Header.Get("Content-Type") == "" && req.Body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		httpReq.Header.Set("Accept", "application/json")

		res, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if res.StatusCode < 200 || res.StatusCode > 299 {
			return nil, &StatusError{StatusCode: res.StatusCode, Body: string(raw)}
		}
		return &response{status: res.StatusCode, body: raw}, nil
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}

	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
