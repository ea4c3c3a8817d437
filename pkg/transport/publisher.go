package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-teach/pkg/protocol"
)

// Publisher sends messages to one relay topic.
type Publisher struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Publish connects to a relay publish URL (see PubURL).
func Publish(ctx context.Context, rawURL string, opts Options) (*Publisher, error) {
	conn, err := dial(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	p := &Publisher{conn: conn}
	// Drain control frames so close handshakes complete.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	return p, nil
}

// Send publishes msg.
func (p *Publisher) Send(ctx context.Context, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = p.conn.SetWriteDeadline(deadline)
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	return nil
}

// Close closes the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return p.conn.Close()
}
