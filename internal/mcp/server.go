package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/hession/haxu-mcp/internal/logger"
	"github.com/hession/haxu-mcp/internal/tools"
)

const outboundBuffer = 64

// ErrParse is returned by Handle for payloads that are not JSON-RPC.
var ErrParse = errors.New("mcp: could not parse message")

// Session is one connected client. Outbound messages are queued until the
// transport writes them; once closed, further messages are dropped.
type Session struct {
	ID string

	log       *logger.Entry
	out       chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// Outbound returns the queue the transport drains.
func (s *Session) Outbound() <-chan Message {
	return s.out
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send queues a message. It reports false when the session is closed.
func (s *Session) Send(msg Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- msg:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Server routes JSON-RPC messages of every session to a dispatcher.
type Server struct {
	dispatcher *tools.Dispatcher
	info       Implementation

	mu       sync.RWMutex
	sessions map[string]*Session
	inflight sync.WaitGroup
}

// NewServer creates a protocol server.
func NewServer(dispatcher *tools.Dispatcher, info Implementation) *Server {
	return &Server{
		dispatcher: dispatcher,
		info:       info,
		sessions:   make(map[string]*Session),
	}
}

// Catalog lists every registered tool once, in registration order.
func (s *Server) Catalog() ToolsListResult {
	return catalog(s.dispatcher.Registry())
}

// Open registers a new session and queues the catalog handshake as its
// first message.
func (s *Server) Open() *Session {
	id := uuid.NewString()
	sess := &Session{
		ID:   id,
		log:  logger.Session(id),
		out:  make(chan Message, outboundBuffer),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	params, _ := marshalParams(s.Catalog())
	sess.Send(Message{JSONRPC: jsonRPCVersion, Method: NotificationCatalog, Params: params})

	sess.log.Info("opened")
	return sess
}

// Session looks up an open session.
func (s *Server) Session(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Close ends a session. Handlers still running complete, but their results
// are discarded.
func (s *Server) Close(sess *Session) {
	s.mu.Lock()
	_, open := s.sessions[sess.ID]
	delete(s.sessions, sess.ID)
	s.mu.Unlock()

	sess.close()
	if open {
		sess.log.Info("closed")
	}
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Shutdown closes every session and waits for in-flight calls to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		s.Close(sess)
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle processes one inbound payload. It never blocks on tool execution:
// tools/call is run on its own goroutine and answered when it completes.
func (s *Server) Handle(ctx context.Context, sess *Session, payload []byte) error {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		sess.Send(newError(nil, CodeParseError, "parse error"))
		return ErrParse
	}
	if msg.JSONRPC != jsonRPCVersion {
		sess.Send(newError(msg.ID, CodeInvalidRequest, "invalid request: jsonrpc must be \"2.0\""))
		return nil
	}

	if msg.IsResponse() {
		return nil
	}
	if msg.IsNotification() {
		if msg.Method == MethodInitialized {
			sess.log.Debug("initialized")
		}
		return nil
	}
	if msg.Method == "" {
		sess.Send(newError(msg.ID, CodeInvalidRequest, "invalid request: missing method"))
		return nil
	}

	switch msg.Method {
	case MethodInitialize:
		sess.Send(newResult(msg.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{"listChanged": false}},
			ServerInfo:      s.info,
		}))

	case MethodPing:
		sess.Send(newResult(msg.ID, struct{}{}))

	case MethodToolsList:
		sess.Send(newResult(msg.ID, s.Catalog()))

	case MethodToolsCall:
		params, err := decodeCallParams(msg.Params)
		if err != nil || params.Name == "" {
			sess.Send(newError(msg.ID, CodeInvalidParams, "invalid params: tools/call requires a tool name"))
			return nil
		}
		s.inflight.Add(1)
		go s.call(context.WithoutCancel(ctx), sess, msg.ID, params)

	default:
		sess.Send(newError(msg.ID, CodeMethodNotFound, "method not found: "+msg.Method))
	}
	return nil
}

// decodeCallParams keeps numeric arguments as json.Number so integers
// beyond 2^53 reach the binder intact.
func decodeCallParams(raw json.RawMessage) (ToolsCallParams, error) {
	var params ToolsCallParams
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&params); err != nil {
		return ToolsCallParams{}, err
	}
	return params, nil
}

func (s *Server) call(ctx context.Context, sess *Session, id json.RawMessage, params ToolsCallParams) {
	defer s.inflight.Done()

	result := s.dispatcher.Dispatch(ctx, params.Name, params.Arguments)
	if !sess.Send(newResult(id, newCallResult(result))) {
		sess.log.With("tool", params.Name).Debug("session closed, result discarded")
	}
}
