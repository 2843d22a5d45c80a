// Package mcp exposes a tool dispatcher over a JSON-RPC 2.0 protocol
// compatible with the Model Context Protocol, carried by SSE or WebSocket.
package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hession/haxu-mcp/internal/tools"
)

const (
	jsonRPCVersion  = "2.0"
	ProtocolVersion = "2025-06-18"
)

// Methods and notifications understood by the server.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"

	// NotificationCatalog is pushed once when a session opens.
	NotificationCatalog = "notifications/tools/catalog"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
)

// Message is a JSON-RPC 2.0 envelope. ID is kept raw so string and
// numeric ids are echoed back verbatim.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsNotification reports whether m is a request without an id.
func (m Message) IsNotification() bool {
	return m.Method != "" && !hasID(m.ID)
}

// IsResponse reports whether m answers a request.
func (m Message) IsResponse() bool {
	return m.Method == "" && hasID(m.ID)
}

func hasID(id json.RawMessage) bool {
	id = bytes.TrimSpace(id)
	return len(id) > 0 && !bytes.Equal(id, []byte("null"))
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mcp: rpc error %d: %s", e.Code, e.Message)
}

// RequestError wraps transport/protocol failures in request flow.
type RequestError struct {
	Method string
	Err    error
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mcp: request %q failed: %v", e.Method, e.Err)
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Implementation identifies a client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeParams is sent in the initialize request.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ClientInfo      Implementation `json:"clientInfo"`
}

// InitializeResult is returned by the initialize request.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ServerInfo      Implementation `json:"serverInfo"`
}

// Tool describes one tool in the catalog.
type Tool struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Parameters  []tools.ParameterDef `json:"parameters,omitempty"`
	InputSchema map[string]any       `json:"inputSchema,omitempty"`
}

// ToolsListResult is the catalog, returned by tools/list and pushed as the
// handshake notification.
type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

// ToolsCallParams is sent in the tools/call request.
type ToolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentBlock is a content item returned by tools/call.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolsCallResult is returned by the tools/call request. IsError false is
// the ok status.
type ToolsCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// Text returns the concatenated text content.
func (r ToolsCallResult) Text() string {
	var b bytes.Buffer
	for _, c := range r.Content {
		b.WriteString(c.Text)
	}
	return b.String()
}

func newCallResult(result tools.Result) ToolsCallResult {
	if !result.Success {
		return ToolsCallResult{Content: []ContentBlock{{Type: "text", Text: result.Error}}, IsError: true}
	}
	return ToolsCallResult{Content: []ContentBlock{{Type: "text", Text: result.Output}}}
}

func catalog(registry *tools.Registry) ToolsListResult {
	schemas := registry.GetSchemas()
	list := make([]Tool, 0, len(schemas))
	for _, s := range schemas {
		list = append(list, Tool{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Parameters,
			InputSchema: s.InputSchema,
		})
	}
	return ToolsListResult{Tools: list}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return data, nil
}

func newResult(id json.RawMessage, result any) Message {
	data, err := json.Marshal(result)
	if err != nil {
		return newError(id, CodeInvalidRequest, fmt.Sprintf("encode result: %v", err))
	}
	return Message{JSONRPC: jsonRPCVersion, ID: id, Result: data}
}

func newError(id json.RawMessage, code int, message string) Message {
	if !hasID(id) {
		id = json.RawMessage("null")
	}
	return Message{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
}
