package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/logging"
)

// DefaultResponseLimit caps bodies read by DoJSON.
const DefaultResponseLimit int64 = 8 << 20

// ErrResponseTooLarge is returned when a body exceeds the read limit.
var ErrResponseTooLarge = errors.New("response body too large")

// New returns an HTTP client with the given timeout whose transport logs
// every request at debug level.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &loggingRoundTripper{
			base:   http.DefaultTransport,
			logger: logging.OrNop(logger),
		},
	}
}

type loggingRoundTripper struct {
	base   http.RoundTripper
	logger logging.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Debug("%s %s failed after %v: %v", req.Method, req.URL.Redacted(), time.Since(started), err)
		return nil, err
	}
	t.logger.Debug("%s %s -> %d (%v)", req.Method, req.URL.Redacted(), resp.StatusCode, time.Since(started))
	return resp, nil
}

// DoJSON sends a request with an optional JSON body and decodes a JSON
// response into out when out is non-nil. Non-2xx statuses are mapped with
// MapHTTPError so callers can retry transient failures.
func DoJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := readLimited(resp.Body, DefaultResponseLimit)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return chemerrors.MapHTTPError(resp.StatusCode, data, resp.Header)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readLimited reads r up to limit bytes; limit <= 0 reads everything.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, limit)
	}
	return data, nil
}

// Guarded returns New's client behind a circuit breaker named upstream.
// Transport errors, 5xx and 429 count as failures; cancellation does not.
func Guarded(timeout time.Duration, upstream string, logger logging.Logger) *http.Client {
	return guard(New(timeout, logger), upstream, chemerrors.DefaultCircuitBreakerConfig(), logger)
}

func guard(client *http.Client, upstream string, cfg chemerrors.CircuitBreakerConfig, logger logging.Logger) *http.Client {
	client.Transport = &guardedTransport{
		next:    client.Transport,
		breaker: chemerrors.NewCircuitBreaker(upstream, cfg, logger),
	}
	return client
}

type guardedTransport struct {
	next    http.RoundTripper
	breaker *chemerrors.CircuitBreaker
}

func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}
	resp, err := t.next.RoundTrip(req)
	switch {
	case errors.Is(err, context.Canceled):
		t.breaker.Mark(nil)
	case err != nil:
		t.breaker.Mark(err)
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		t.breaker.Mark(fmt.Errorf("upstream status %d", resp.StatusCode))
	default:
		t.breaker.Mark(nil)
	}
	return resp, err
}
