package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-teach/pkg/protocol"
)

// Subscriber receives the messages published on one relay topic.
//
// A background reader keeps the socket drained; when the consumer falls
// behind by more than Options.Buffer messages the oldest are dropped.
type Subscriber struct {
	conn    *websocket.Conn
	timeout time.Duration

	msgs chan *protocol.Message
	done chan struct{}

	errMu sync.Mutex
	err   error

	dropped   atomic.Uint64
	closeOnce sync.Once
}

// Subscribe connects to a relay subscription URL (see SubURL).
func Subscribe(ctx context.Context, rawURL string, opts Options) (*Subscriber, error) {
	conn, err := dial(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	buf := opts.Buffer
	if buf <= 0 {
		buf = defaultBuffer
	}
	s := &Subscriber{
		conn:    conn,
		timeout: opts.ReplyTimeout,
		msgs:    make(chan *protocol.Message, buf),
		done:    make(chan struct{}),
	}
	go s.readPump()
	return s, nil
}

func (s *Subscriber) readPump() {
	defer close(s.done)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.errMu.Lock()
			s.err = err
			s.errMu.Unlock()
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			continue
		}
		select {
		case s.msgs <- msg:
		default:
			// Full: drop the oldest. This goroutine is the only sender.
			select {
			case <-s.msgs:
				s.dropped.Add(1)
			default:
			}
			s.msgs <- msg
		}
	}
}

// Next blocks until the next message arrives, ctx is done or the receive
// timeout expires.
func (s *Subscriber) Next(ctx context.Context) (*protocol.Message, error) {
	var timeout <-chan time.Time
	if s.timeout > 0 {
		t := time.NewTimer(s.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case msg := <-s.msgs:
		return msg, nil
	default:
	}

	select {
	case msg := <-s.msgs:
		return msg, nil
	case <-s.done:
		// Deliver anything queued before the connection dropped.
		select {
		case msg := <-s.msgs:
			return msg, nil
		default:
		}
		return nil, s.closedErr()
	case <-timeout:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Subscriber) closedErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil || websocket.IsCloseError(s.err, websocket.CloseNormalClosure) {
		return ErrClosed
	}
	return errors.Join(ErrClosed, s.err)
}

// Dropped returns how many messages were discarded because the consumer fell
// behind.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

// Close closes the connection.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(writeWait)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
		<-s.done
	})
	return err
}
