// Package transport connects the teleoperator and the observation env to the
// robot host and the topic relay over WebSocket.
//
// Two socket patterns are provided: a Subscriber that receives every message
// published on a relay topic, and a Requester that performs strict
// request/reply exchanges with the robot host, one at a time.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrTimeout is returned when no message arrives within the configured
	// receive timeout.
	ErrTimeout = errors.New("transport: receive timed out")

	// ErrClosed is returned after the connection has been closed or broken.
	ErrClosed = errors.New("transport: connection closed")
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 8 << 20 // camera frames
	defaultBuffer  = 64
)

// Options configure a connection.
type Options struct {
	// ReplyTimeout bounds each blocking receive. Zero waits forever.
	ReplyTimeout time.Duration

	// Buffer is the number of undelivered subscription messages kept before
	// the oldest are dropped. Zero uses a default.
	Buffer int

	Header http.Header
	Dialer *websocket.Dialer
}

func (o Options) dialer() *websocket.Dialer {
	if o.Dialer != nil {
		return o.Dialer
	}
	return websocket.DefaultDialer
}

func dial(ctx context.Context, rawURL string, opts Options) (*websocket.Conn, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	conn, resp, err := opts.dialer().DialContext(ctx, rawURL, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	conn.SetReadLimit(maxMessageSize)
	return conn, nil
}

// PubURL returns the relay URL publishers of topic connect to.
func PubURL(base, topic string) string {
	return base + "/ws/pub/" + url.PathEscape(topic)
}

// SubURL returns the relay URL subscribers of topic connect to.
func SubURL(base, topic string) string {
	return base + "/ws/sub/" + url.PathEscape(topic)
}
