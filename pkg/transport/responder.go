package transport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-teach/internal/log"
	"github.com/teslashibe/go-teach/pkg/protocol"
)

// HandlerFunc answers one request. A returned error is sent back as an error
// message.
type HandlerFunc func(ctx context.Context, req *protocol.Message) (*protocol.Message, error)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ReplyHandler serves the robot host side of a Requester: every message read
// from a connection is answered by h, in order.
func ReplyHandler(h HandlerFunc, logger *slog.Logger) http.Handler {
	logger = log.OrDefault(logger)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("upgrade failed", "error", err)
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxMessageSize)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var reply *protocol.Message
			req, err := protocol.ParseMessage(data)
			if err == nil {
				reply, err = h(r.Context(), req)
			}
			if err != nil {
				logger.Debug("request failed", "error", err)
				reply, err = protocol.NewErrorMessage(err.Error())
				if err != nil {
					return
				}
			}

			out, err := reply.Bytes()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		}
	})
}
