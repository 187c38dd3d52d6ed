// Package orchestrator implements a small HTTP client with retry/backoff
// for pushing results, posting ACKs, and fetching oversized operation
// bodies, wrapped in a sony/gobreaker circuit breaker so a long-dead
// orchestrator doesn't pin a goroutine in a permanent retry loop.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwhagent/agent/internal/model"
)

// Retry policy: tries=3, delay=1s, factor=2.
const (
	maxRetries    = 3
	baseDelay     = 1 * time.Second
	backoffFactor = 2.0
)

// resultPUTTimeout bounds the result PUT; other calls use the http.Client's
// own (or no) timeout.
const resultPUTTimeout = 60 * time.Second

// keepAlivePeriod sets the TCP keep-alive interval on the orchestrator
// connection so a silently dropped connection is detected promptly.
const keepAlivePeriod = 30 * time.Second

// Client is the HTTP client the agent uses to talk back to the
// orchestrator.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    func() map[string]string
	logger     *slog.Logger
	breaker    *gobreaker.CircuitBreaker
	sleepFunc  func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client against baseURL. headers resolves the
// per-request auth headers (x-mcd-id/x-mcd-token) fresh on every call,
// since credentials can rotate across the agent's lifetime.
func NewClient(baseURL string, headers func() map[string]string, logger *slog.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: keepAlivePeriod,
		}).DialContext,
	}

	breakerSettings := gobreaker.Settings{
		Name:        "orchestrator",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("orchestrator circuit breaker state change", "from", from, "to", to)
		},
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Transport: transport},
		headers:    headers,
		logger:     logger,
		breaker:    gobreaker.NewCircuitBreaker(breakerSettings),
		sleepFunc:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PushResults PUTs the result envelope for operationID. Best-effort: errors
// are logged and swallowed — the orchestrator's own ACK-timeout path
// re-dispatches if the push never lands.
func (c *Client) PushResults(ctx context.Context, operationID string, result model.Envelope) {
	ctx, cancel := context.WithTimeout(ctx, resultPUTTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{"result": result})
	if err != nil {
		c.logger.Error("orchestrator: failed to encode result envelope", "operation_id", operationID, "error", err)
		return
	}

	path := fmt.Sprintf("/api/v1/agent/operations/%s/result", operationID)
	if _, err := c.doRetry(ctx, http.MethodPut, path, body); err != nil {
		c.logger.Error("orchestrator: push_results failed", "operation_id", operationID, "error", err)
	}
}

// SendAck POSTs the ACK for operationID.
func (c *Client) SendAck(ctx context.Context, operationID string) error {
	path := fmt.Sprintf("/api/v1/agent/operations/%s/ack", operationID)
	_, err := c.doRetry(ctx, http.MethodPost, path, nil)
	return err
}

// Ping probes reachability with a trace ID for end-to-end correlation.
func (c *Client) Ping(ctx context.Context, traceID string) error {
	path := fmt.Sprintf("/api/v1/test/ping?trace_id=%s", traceID)
	_, err := c.doRetry(ctx, http.MethodGet, path, nil)
	return err
}

// PushMetrics POSTs Prometheus-format metric lines.
func (c *Client) PushMetrics(ctx context.Context, lines []string) error {
	body, err := json.Marshal(map[string]any{"format": "prometheus", "metrics": lines})
	if err != nil {
		return fmt.Errorf("orchestrator: encoding metrics: %w", err)
	}
	_, err = c.doRetry(ctx, http.MethodPost, "/api/v1/agent/metrics", body)
	return err
}

// ExecuteOperation is the generic request/response call: 4xx/5xx raise;
// an empty 2xx body returns {"error": "empty response"}.
func (c *Client) ExecuteOperation(ctx context.Context, path, method string, body []byte) (map[string]any, error) {
	respBody, err := c.doRetry(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if len(respBody) == 0 {
		return map[string]any{"error": "empty response"}, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("orchestrator: decoding response for %s: %w", path, err)
	}
	return parsed, nil
}

// DownloadOperation fetches the full operation body for operationID when an
// inbound event was flagged __mcd_size_exceeded__.
func (c *Client) DownloadOperation(ctx context.Context, operationID string) (map[string]any, error) {
	path := fmt.Sprintf("/api/v1/agent/operations/%s/request", operationID)
	return c.ExecuteOperation(ctx, path, http.MethodGet, nil)
}

// doRetry performs one logical call, making at most maxRetries attempts in
// total on transient failures, wrapped in the circuit breaker. Returns the response
// body on a 2xx status.
func (c *Client) doRetry(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.retryLoop(ctx, method, path, body)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) retryLoop(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var attempt int
	delay := baseDelay

	for {
		respBody, status, err := c.doOnce(ctx, method, path, body)
		if err == nil && status >= 200 && status < 300 {
			return respBody, nil
		}

		retryable := err != nil || status >= 500 || status == http.StatusTooManyRequests
		if !retryable || attempt >= maxRetries-1 {
			if err != nil {
				return nil, fmt.Errorf("orchestrator: %s %s failed after %d attempts: %w", method, path, attempt+1, err)
			}
			return nil, fmt.Errorf("orchestrator: %s %s failed with status %d", method, path, status)
		}

		c.logger.Warn("orchestrator: retrying request", "method", method, "path", path, "attempt", attempt+1, "delay", delay)
		if sleepErr := c.sleepFunc(ctx, delay); sleepErr != nil {
			return nil, fmt.Errorf("orchestrator: request canceled: %w", sleepErr)
		}

		attempt++
		delay = time.Duration(float64(delay) * backoffFactor)
	}
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	url := c.baseURL + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers() {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response body: %w", err)
	}

	return respBody, resp.StatusCode, nil
}
