package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

const (
	defaultClientName    = "haxu-mcp-client"
	defaultClientVersion = "dev"
)

// ErrClientClosed is returned for requests after the stream ended.
var ErrClientClosed = errors.New("mcp: client is closed")

// Client is an SSE transport client. Requests are correlated with their
// responses by id, so several calls may be outstanding at once.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	info    Implementation

	mu       sync.Mutex
	endpoint string
	nextID   int64
	pending  map[string]chan Message
	catalog  ToolsListResult
	err      error

	catalogReady chan struct{}
	catalogOnce  sync.Once
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewClient creates a client for a server base URL such as
// http://localhost:8000. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("mcp: invalid server url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:      u,
		http:         httpClient,
		info:         Implementation{Name: defaultClientName, Version: defaultClientVersion},
		nextID:       1,
		pending:      make(map[string]chan Message),
		catalogReady: make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// Connect opens the event stream and waits for the message endpoint.
func (c *Client) Connect(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.baseURL.String()+SSEPath, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("mcp: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("mcp: open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("mcp: stream returned status %d", resp.StatusCode)
	}
	c.cancel = cancel

	endpoint := make(chan string, 1)
	go c.readLoop(resp.Body, endpoint)

	select {
	case ep := <-endpoint:
		ref, err := url.Parse(ep)
		if err != nil {
			c.Close()
			return fmt.Errorf("mcp: invalid endpoint %q: %w", ep, err)
		}
		c.mu.Lock()
		c.endpoint = c.baseURL.ResolveReference(ref).String()
		c.mu.Unlock()
		return nil
	case <-c.done:
		return c.closeErr()
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}
}

// SessionID returns the id assigned by the server.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return ""
	}
	return u.Query().Get("session_id")
}

func (c *Client) readLoop(body io.ReadCloser, endpoint chan<- string) {
	defer body.Close()

	reader := bufio.NewReader(body)
	var event string
	var data strings.Builder
	var err error
	for {
		var line string
		line, err = reader.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() > 0 {
				c.dispatchEvent(event, data.String(), endpoint)
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		err = ErrClientClosed
	}
	c.mu.Lock()
	c.err = err
	pending := c.pending
	c.pending = make(map[string]chan Message)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
	close(c.done)
}

func (c *Client) dispatchEvent(event, data string, endpoint chan<- string) {
	switch event {
	case "endpoint":
		select {
		case endpoint <- data:
		default:
		}
	case "message", "":
		var msg Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			return
		}
		if msg.IsResponse() {
			c.mu.Lock()
			ch, ok := c.pending[idKey(msg.ID)]
			delete(c.pending, idKey(msg.ID))
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
			return
		}
		if msg.Method == NotificationCatalog {
			var list ToolsListResult
			if err := json.Unmarshal(msg.Params, &list); err != nil {
				return
			}
			c.catalogOnce.Do(func() {
				c.mu.Lock()
				c.catalog = list
				c.mu.Unlock()
				close(c.catalogReady)
			})
		}
	}
}

func idKey(id json.RawMessage) string {
	return string(bytes.TrimSpace(id))
}

// Catalog waits for the handshake notification and returns its tools.
func (c *Client) Catalog(ctx context.Context) (ToolsListResult, error) {
	select {
	case <-c.catalogReady:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.catalog, nil
	case <-c.done:
		return ToolsListResult{}, c.closeErr()
	case <-ctx.Done():
		return ToolsListResult{}, ctx.Err()
	}
}

// Initialize performs initialize negotiation and sends the initialized
// notification.
func (c *Client) Initialize(ctx context.Context) (InitializeResult, error) {
	var result InitializeResult
	params := InitializeParams{ProtocolVersion: ProtocolVersion, ClientInfo: c.info}
	if err := c.call(ctx, MethodInitialize, params, &result); err != nil {
		return InitializeResult{}, err
	}
	if err := c.notify(ctx, MethodInitialized, map[string]any{}); err != nil {
		return InitializeResult{}, err
	}
	return result, nil
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, MethodPing, map[string]any{}, nil)
}

// ListTools returns server tools from tools/list.
func (c *Client) ListTools(ctx context.Context) (ToolsListResult, error) {
	var result ToolsListResult
	if err := c.call(ctx, MethodToolsList, map[string]any{}, &result); err != nil {
		return ToolsListResult{}, err
	}
	return result, nil
}

// CallTool executes a tool by name with arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (ToolsCallResult, error) {
	var result ToolsCallResult
	if err := c.call(ctx, MethodToolsCall, ToolsCallParams{Name: name, Arguments: arguments}, &result); err != nil {
		return ToolsCallResult{}, err
	}
	return result, nil
}

// Close stops the event stream.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return nil
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return ErrClientClosed
	}
	return c.err
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return &RequestError{Method: method, Err: err}
	}

	c.mu.Lock()
	if c.endpoint == "" {
		c.mu.Unlock()
		return &RequestError{Method: method, Err: errors.New("not connected")}
	}
	select {
	case <-c.done:
		c.mu.Unlock()
		return &RequestError{Method: method, Err: ErrClientClosed}
	default:
	}
	id := json.RawMessage(strconv.FormatInt(c.nextID, 10))
	c.nextID++
	ch := make(chan Message, 1)
	c.pending[idKey(id)] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, idKey(id))
		c.mu.Unlock()
	}

	if err := c.post(ctx, Message{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: paramsRaw}); err != nil {
		forget()
		return &RequestError{Method: method, Err: err}
	}

	select {
	case response, ok := <-ch:
		if !ok {
			return &RequestError{Method: method, Err: c.closeErr()}
		}
		if response.Error != nil {
			return &RequestError{Method: method, Err: response.Error}
		}
		if out == nil || len(response.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(response.Result, out); err != nil {
			return &RequestError{Method: method, Err: fmt.Errorf("decode result: %w", err)}
		}
		return nil
	case <-ctx.Done():
		forget()
		return &RequestError{Method: method, Err: ctx.Err()}
	}
}

func (c *Client) notify(ctx context.Context, method string, params any) error {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return &RequestError{Method: method, Err: err}
	}
	if err := c.post(ctx, Message{JSONRPC: jsonRPCVersion, Method: method, Params: paramsRaw}); err != nil {
		return &RequestError{Method: method, Err: err}
	}
	return nil
}

func (c *Client) post(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	c.mu.Lock()
	endpoint := c.endpoint
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
