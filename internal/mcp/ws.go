package mcp

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/hession/haxu-mcp/internal/logger"
)

// WSPath is the WebSocket transport route.
const WSPath = "/ws"

// WSHandler serves the WebSocket transport: one JSON-RPC message per text
// frame in each direction.
type WSHandler struct {
	server         *Server
	originPatterns []string
}

// NewWSHandler creates the WebSocket transport for server. Browser clients
// are accepted from the request's own host and from hosts matching
// originPatterns; clients that send no Origin header are always accepted.
func NewWSHandler(server *Server, originPatterns ...string) *WSHandler {
	return &WSHandler{server: server, originPatterns: originPatterns}
}

// Register mounts the WebSocket route on mux.
func (h *WSHandler) Register(mux *http.ServeMux) {
	mux.Handle("GET "+WSPath, h)
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		logger.Error("websocket accept failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "session ended")
	conn.SetReadLimit(maxMessageBytes)

	sess := h.server.Open()
	defer h.server.Close(sess)

	g, ctx := errgroup.WithContext(r.Context())

	// a reader blocked on a full outbound queue is released by the close
	g.Go(func() error {
		<-ctx.Done()
		h.server.Close(sess)
		return nil
	})

	g.Go(func() error {
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return err
			}
			if typ != websocket.MessageText {
				sess.Send(newError(nil, CodeInvalidRequest, "invalid request: expected a text frame"))
				continue
			}
			if err := h.server.Handle(ctx, sess, data); err != nil && !errors.Is(err, ErrParse) {
				return err
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-sess.Done():
				return context.Canceled
			case msg := <-sess.Outbound():
				if err := wsjson.Write(ctx, conn, msg); err != nil {
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !isClosed(err) {
		sess.log.Debug("websocket ended: %v", err)
	}
}

func isClosed(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}
