package relay

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-teach/internal/log"
	"github.com/teslashibe/go-teach/pkg/protocol"
	"github.com/teslashibe/go-teach/pkg/transport"
)

func startRelay(t *testing.T) (*Relay, string) {
	t.Helper()
	r := New(log.Discard())
	app := r.NewApp()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	return r, "ws://" + ln.Addr().String()
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew(t *testing.T) {
	r := New(nil)
	stats := r.Stats()
	if stats.Subscribers != 0 || stats.Publishers != 0 || stats.MessagesPublished != 0 {
		t.Errorf("fresh relay stats = %+v", stats)
	}
	if len(r.Connections()) != 0 {
		t.Error("Connections should be empty initially")
	}
}

func TestAPIStats(t *testing.T) {
	r := New(log.Discard())
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	r.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/stats", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	var stats Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
}

func TestUpgradeRequired(t *testing.T) {
	r := New(log.Discard())
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	r.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/ws/sub/state", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Status = %d, want 426", resp.StatusCode)
	}
}

func TestFanOutByTopic(t *testing.T) {
	r, base := startRelay(t)

	subA := dial(t, base+"/ws/sub/state")
	subB := dial(t, base+"/ws/sub/state")
	other := dial(t, base+"/ws/sub/controller")
	waitFor(t, "subscribers", func() bool { return r.Stats().Subscribers == 3 })

	pub := dial(t, base+"/ws/pub/state")
	msg, _ := protocol.NewRobotStateMessage(protocol.RobotStateData{Pos: [3]float64{1, 2, 3}})
	data, _ := msg.Bytes()
	if err := pub.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, ws := range []*websocket.Conn{subA, subB} {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, got, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
		m, err := protocol.ParseMessage(got)
		if err != nil || m.Type != protocol.TypeRobotState {
			t.Errorf("got %s, %v", got, err)
		}
	}

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("subscriber of another topic received the message")
	}

	stats := r.Stats()
	if stats.MessagesPublished != 1 || stats.MessagesDelivered != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestInvalidMessagesAreDropped(t *testing.T) {
	r, base := startRelay(t)
	sub := dial(t, base+"/ws/sub/state")
	waitFor(t, "subscriber", func() bool { return r.SubscriberCount("state") == 1 })

	pub := dial(t, base+"/ws/pub/state")
	pub.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`))
	pub.WriteMessage(websocket.TextMessage, []byte(`not json`))

	waitFor(t, "invalid count", func() bool { return r.Stats().InvalidMessages == 2 })

	sub.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := sub.ReadMessage(); err == nil {
		t.Error("invalid message was forwarded")
	}
}

func TestSubscriberDisconnect(t *testing.T) {
	r, base := startRelay(t)
	ws := dial(t, base+"/ws/sub/state")
	waitFor(t, "subscriber", func() bool { return r.SubscriberCount("state") == 1 })

	if len(r.Connections()) != 1 || r.Connections()[0].Role != "sub" {
		t.Errorf("Connections = %+v", r.Connections())
	}

	ws.Close()
	waitFor(t, "unsubscribe", func() bool { return r.SubscriberCount("state") == 0 })
	if r.Stats().Topics != 0 {
		t.Errorf("empty topic kept: %+v", r.Stats())
	}
}

func TestInProcessPublish(t *testing.T) {
	r, base := startRelay(t)
	ws := dial(t, base+"/ws/sub/acks")
	waitFor(t, "subscriber", func() bool { return r.SubscriberCount("acks") == 1 })

	msg, _ := protocol.NewAckMessage("hello")
	if err := r.Publish("acks", msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	m, _ := protocol.ParseMessage(data)
	ack, err := m.GetAck()
	if err != nil || ack.Message != "hello" {
		t.Errorf("ack = %+v, %v", ack, err)
	}
}

func TestTransportEndToEnd(t *testing.T) {
	r, base := startRelay(t)
	ctx := context.Background()

	sub, err := transport.Subscribe(ctx, transport.SubURL(base, "robot_state"), transport.Options{ReplyTimeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	states := transport.NewStateSubscriber(sub)
	defer states.Close()
	waitFor(t, "subscriber", func() bool { return r.SubscriberCount("robot_state") == 1 })

	pub, err := transport.Publish(ctx, transport.PubURL(base, "robot_state"), transport.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	msg, _ := protocol.NewRobotStateMessage(protocol.RobotStateData{Pos: [3]float64{0.4, 0, 0.3}, Quat: [4]float64{0, 0, 0, 1}})
	if err := pub.Send(ctx, msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	s, err := states.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if s.Position.X != 0.4 || s.Position.Z != 0.3 {
		t.Errorf("state = %+v", s)
	}
}

func TestFetchStats(t *testing.T) {
	r, url := startRelay(t)
	base := "http://" + strings.TrimPrefix(url, "ws://")

	dial(t, url+"/ws/sub/controller")
	waitFor(t, "subscriber", func() bool { return r.SubscriberCount("controller") == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := FetchStats(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	if st.Subscribers != 1 || st.Topics != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestFetchStatsUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := FetchStats(context.Background(), "http://"+addr); err == nil {
		t.Error("expected error for closed port")
	}
}
