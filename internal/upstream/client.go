// Package upstream is the shared outbound HTTP layer used by tool bodies.
// One Client is built per process; per-service timeouts derive from it
// without creating new connection pools.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultUserAgent = "weather-app/1.0"
	DefaultTimeout   = 30 * time.Second

	maxBodyBytes = 8 << 20
)

// Error is a non-2xx status, network fault, timeout or undecodable body.
type Error struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed with status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Kind() string { return "upstream" }

// EmptyResultError is a well-formed upstream answer with nothing in it.
type EmptyResultError struct {
	Message string
}

func (e *EmptyResultError) Error() string { return e.Message }

func (e *EmptyResultError) Kind() string { return "empty_result" }

// Empty builds an EmptyResultError.
func Empty(message string) error {
	return &EmptyResultError{Message: message}
}

// Client issues bounded outbound requests.
type Client struct {
	http      *http.Client
	userAgent string
	timeout   time.Duration
}

// New creates a client. The underlying http.Client is shared by every
// client derived with WithTimeout.
func New(userAgent string, timeout time.Duration) *Client {
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:      &http.Client{},
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// WithTimeout returns a client sharing c's connections with another bound.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout <= 0 {
		return c
	}
	cp := *c
	cp.timeout = timeout
	return &cp
}

// Timeout returns the per-request bound.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// GetJSON fetches rawURL and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, service, rawURL string, headers map[string]string, out any) error {
	body, err := c.do(ctx, service, http.MethodGet, rawURL, headers, nil)
	if err != nil {
		return err
	}
	return decode(service, body, out)
}

// GetText fetches rawURL and returns the body as text.
func (c *Client) GetText(ctx context.Context, service, rawURL string, headers map[string]string) (string, error) {
	body, err := c.do(ctx, service, http.MethodGet, rawURL, headers, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// PostJSON sends payload as JSON and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, service, rawURL string, headers map[string]string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", service, err)
	}
	body, err := c.do(ctx, service, http.MethodPost, rawURL, headers, data)
	if err != nil {
		return err
	}
	return decode(service, body, out)
}

func (c *Client) do(ctx context.Context, service, method, rawURL string, headers map[string]string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, &Error{Service: service, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Service: service, Err: describe(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Service: service, Err: describe(err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Service: service, StatusCode: resp.StatusCode}
	}
	return body, nil
}

func decode(service string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return &Error{Service: service, Err: errors.New("empty response body")}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Service: service, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return nil
}

// describe strips the request URL from transport errors.
func describe(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.New("timed out")
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
