// Package relay provides a WebSocket topic relay: publishers push messages to
// /ws/pub/:topic and every subscriber of /ws/sub/:topic receives them.
//
// It stands between the VR controller, the robot host and the cameras on one
// side and the teleoperator and observation env on the other.
package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-teach/internal/log"
	"github.com/teslashibe/go-teach/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 20 // camera frames

	// SendBuffer is the per-subscriber queue. Messages for a subscriber whose
	// queue is full are dropped.
	SendBuffer = 256
)

// Relay fans published messages out to topic subscribers.
type Relay struct {
	logger *slog.Logger

	mu         sync.RWMutex
	topics     map[string]map[string]*subscriber
	publishers map[string]*ConnInfo

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	invalid   atomic.Uint64
}

// ConnInfo describes one relay connection.
type ConnInfo struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Role      string    `json:"role"`
	Connected time.Time `json:"connected"`
}

type subscriber struct {
	info ConnInfo
	conn *websocket.Conn
	send chan []byte
	done chan struct{} // closed when writePump exits
}

// New creates an empty relay.
func New(logger *slog.Logger) *Relay {
	return &Relay{
		logger:     log.OrDefault(logger).With("component", "relay"),
		topics:     make(map[string]map[string]*subscriber),
		publishers: make(map[string]*ConnInfo),
	}
}

// RegisterRoutes registers the WebSocket and stats routes on a Fiber app.
func (r *Relay) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/pub/:topic", websocket.New(r.handlePublisher))
	app.Get("/ws/sub/:topic", websocket.New(r.handleSubscriber))

	api := app.Group("/api")
	api.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(r.Stats())
	})
	api.Get("/topics", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"connections": r.Connections()})
	})
}

// NewApp returns a Fiber app serving the relay.
func (r *Relay) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "teach relay",
		DisableStartupMessage: true,
		BodyLimit:             maxMessageSize,
	})
	r.RegisterRoutes(app)
	return app
}

func (r *Relay) handlePublisher(c *websocket.Conn) {
	info := &ConnInfo{ID: uuid.NewString(), Topic: c.Params("topic"), Role: "pub", Connected: time.Now()}

	r.mu.Lock()
	r.publishers[info.ID] = info
	r.mu.Unlock()
	r.logger.Info("publisher connected", "topic", info.Topic, "id", info.ID)

	defer func() {
		r.mu.Lock()
		delete(r.publishers, info.ID)
		r.mu.Unlock()
		r.logger.Info("publisher disconnected", "topic", info.Topic, "id", info.ID)
	}()

	c.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if _, err := protocol.ParseMessage(data); err != nil {
			r.invalid.Add(1)
			r.logger.Debug("dropping invalid message", "topic", info.Topic, "error", err)
			continue
		}
		r.fanOut(info.Topic, data)
	}
}

func (r *Relay) handleSubscriber(c *websocket.Conn) {
	sub := &subscriber{
		info: ConnInfo{ID: uuid.NewString(), Topic: c.Params("topic"), Role: "sub", Connected: time.Now()},
		conn: c,
		send: make(chan []byte, SendBuffer),
		done: make(chan struct{}),
	}

	r.mu.Lock()
	if r.topics[sub.info.Topic] == nil {
		r.topics[sub.info.Topic] = make(map[string]*subscriber)
	}
	r.topics[sub.info.Topic][sub.info.ID] = sub
	r.mu.Unlock()
	r.logger.Info("subscriber connected", "topic", sub.info.Topic, "id", sub.info.ID)

	go sub.writePump()
	sub.readPump()

	r.mu.Lock()
	if subs, ok := r.topics[sub.info.Topic]; ok {
		if _, ok := subs[sub.info.ID]; ok {
			delete(subs, sub.info.ID)
			close(sub.send)
		}
		if len(subs) == 0 {
			delete(r.topics, sub.info.Topic)
		}
	}
	r.mu.Unlock()

	// The connection is recycled once this handler returns.
	<-sub.done
	r.logger.Info("subscriber disconnected", "topic", sub.info.Topic, "id", sub.info.ID)
}

// Publish sends msg to the subscribers of topic from inside the process.
func (r *Relay) Publish(topic string, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	r.fanOut(topic, data)
	return nil
}

func (r *Relay) fanOut(topic string, data []byte) {
	r.published.Add(1)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.topics[topic] {
		select {
		case sub.send <- data:
			r.delivered.Add(1)
		default:
			r.dropped.Add(1)
		}
	}
}

// readPump only detects disconnection and keeps the read deadline fresh.
func (s *subscriber) readPump() {
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		close(s.done)
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Stats contains relay statistics.
type Stats struct {
	Topics            int    `json:"topics"`
	Publishers        int    `json:"publishers"`
	Subscribers       int    `json:"subscribers"`
	MessagesPublished uint64 `json:"messages_published"`
	MessagesDelivered uint64 `json:"messages_delivered"`
	MessagesDropped   uint64 `json:"messages_dropped"`
	InvalidMessages   uint64 `json:"invalid_messages"`
}

// Stats returns relay statistics.
func (r *Relay) Stats() Stats {
	r.mu.RLock()
	subs := 0
	for _, t := range r.topics {
		subs += len(t)
	}
	st := Stats{
		Topics:      len(r.topics),
		Publishers:  len(r.publishers),
		Subscribers: subs,
	}
	r.mu.RUnlock()

	st.MessagesPublished = r.published.Load()
	st.MessagesDelivered = r.delivered.Load()
	st.MessagesDropped = r.dropped.Load()
	st.InvalidMessages = r.invalid.Load()
	return st
}

// SubscriberCount returns the number of subscribers of topic.
func (r *Relay) SubscriberCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// Connections lists every open publisher and subscriber connection.
func (r *Relay) Connections() []ConnInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnInfo, 0, len(r.publishers))
	for _, p := range r.publishers {
		out = append(out, *p)
	}
	for _, subs := range r.topics {
		for _, s := range subs {
			out = append(out, s.info)
		}
	}
	return out
}
