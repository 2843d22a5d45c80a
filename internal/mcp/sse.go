package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HeartbeatInterval is the interval between SSE heartbeat comments.
const HeartbeatInterval = 15 * time.Second

const (
	SSEPath     = "/sse"
	MessagePath = "/messages/"

	maxMessageBytes = 4 << 20
)

// SSEHandler serves the SSE transport: a GET stream per session plus a
// POST endpoint for client messages.
//
// Stream format:
//
//	event: endpoint
//	data: /messages/?session_id={id}
//
//	event: message
//	data: {json}
//
// A heartbeat comment ": ping\n\n" is sent every HeartbeatInterval.
type SSEHandler struct {
	server    *Server
	heartbeat time.Duration
}

// NewSSEHandler creates the SSE transport for server.
func NewSSEHandler(server *Server) *SSEHandler {
	return &SSEHandler{server: server, heartbeat: HeartbeatInterval}
}

// Register mounts the stream and message routes on mux.
func (h *SSEHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+SSEPath, h.ServeStream)
	mux.HandleFunc("POST "+MessagePath, h.ServeMessage)
}

// ServeStream opens a session and streams its outbound messages until the
// client disconnects.
func (h *SSEHandler) ServeStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sess := h.server.Open()
	defer h.server.Close(sess)

	if _, err := fmt.Fprintf(w, "event: endpoint\ndata: %s?session_id=%s\n\n", MessagePath, sess.ID); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-sess.Done():
			return

		case msg := <-sess.Outbound():
			if err := writeSSEMessage(w, msg); err != nil {
				sess.log.Warn("write failed: %v", err)
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ServeMessage accepts one JSON-RPC message for an open session. The
// answer, if any, is delivered on the session's stream.
func (h *SSEHandler) ServeMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	sess, ok := h.server.Session(sessionID)
	if !ok {
		http.Error(w, "could not find session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "could not read message", http.StatusBadRequest)
		return
	}

	if err := h.server.Handle(r.Context(), sess, body); err != nil {
		if errors.Is(err, ErrParse) {
			http.Error(w, "could not parse message", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	io.WriteString(w, "Accepted")
}

// writeSSEMessage writes a single message in SSE format.
func writeSSEMessage(w io.Writer, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
	return err
}
