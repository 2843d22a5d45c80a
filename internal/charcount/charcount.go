// Package charcount counts CJK Unified Ideographs, both as a standalone
// HTTP function and as a client of that function.
package charcount

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hession/haxu-mcp/internal/logger"
	"github.com/hession/haxu-mcp/internal/upstream"
)

const (
	// DefaultEndpoint is the hosted counting function.
	DefaultEndpoint = "https://haxufunctions.azurewebsites.net/api/http_trigger"
	// Route is the path the function is served on.
	Route = "/api/http_trigger"

	rangeStart = 0x4E00
	rangeEnd   = 0x9FFF

	apology   = "抱歉，无法计算。"
	maxBodyKB = 1 << 10
)

// Count returns the number of code points in s within U+4E00..U+9FFF.
func Count(s string) int {
	n := 0
	for _, r := range s {
		if r >= rangeStart && r <= rangeEnd {
			n++
		}
	}
	return n
}

// Message formats the function's answer for a text.
func Message(count int) string {
	return fmt.Sprintf("这段中文的字数是: %d个字", count)
}

// Handler serves the counting function. It always answers 200.
func Handler(w http.ResponseWriter, r *http.Request) {
	logger.Info("charcount function processed a %s request", r.Method)

	text := r.URL.Query().Get("text")
	if text == "" && r.Body != nil {
		var body struct {
			Text string `json:"text"`
		}
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyKB<<10))
		if err == nil && len(data) > 0 {
			if err := json.Unmarshal(data, &body); err == nil {
				text = body.Text
			}
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if text == "" {
		io.WriteString(w, apology)
		return
	}
	io.WriteString(w, Message(Count(text)))
}

// Client calls a counting function endpoint.
type Client struct {
	endpoint string
	http     *upstream.Client
}

// NewClient creates a client for endpoint.
func NewClient(endpoint string, http *upstream.Client) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{endpoint: endpoint, http: http}
}

// Count asks the endpoint to count text and returns its raw answer.
func (c *Client) Count(ctx context.Context, text string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid charcount endpoint: %w", err)
	}
	q := u.Query()
	q.Set("text", text)
	u.RawQuery = q.Encode()

	return c.http.GetText(ctx, "character count", u.String(), nil)
}
