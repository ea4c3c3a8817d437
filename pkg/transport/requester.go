package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-teach/pkg/protocol"
)

// Requester performs request/reply exchanges with the robot host. At most one
// request is outstanding at a time; concurrent callers queue on a mutex.
//
// A request that times out or is cancelled mid-exchange leaves the reply
// unread, so the connection is marked broken and later requests fail with
// ErrClosed.
type Requester struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
	broken  bool
}

// DialRequester connects to the robot host's control endpoint.
func DialRequester(ctx context.Context, rawURL string, opts Options) (*Requester, error) {
	conn, err := dial(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	return &Requester{conn: conn, timeout: opts.ReplyTimeout}, nil
}

// Request sends msg and waits for the reply.
func (r *Requester) Request(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.broken {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := msg.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	// Unblock socket I/O when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.SetWriteDeadline(time.Now())
		_ = r.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, r.fail(ctx, fmt.Errorf("send %s: %w", msg.Type, err))
	}

	var deadline time.Time
	if r.timeout > 0 {
		deadline = time.Now().Add(r.timeout)
	}
	_ = r.conn.SetReadDeadline(deadline)

	_, reply, err := r.conn.ReadMessage()
	if err != nil {
		return nil, r.fail(ctx, fmt.Errorf("reply to %s: %w", msg.Type, err))
	}
	return protocol.ParseMessage(reply)
}

func (r *Requester) fail(ctx context.Context, err error) error {
	r.broken = true
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ErrTimeout
	}
	return err
}

// Close closes the connection.
func (r *Requester) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken && r.conn == nil {
		return nil
	}
	r.broken = true
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	err := r.conn.Close()
	r.conn = nil
	return err
}
