package sim

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/teslashibe/go-teach/internal/log"
	"github.com/teslashibe/go-teach/pkg/geometry"
	"github.com/teslashibe/go-teach/pkg/observe"
	"github.com/teslashibe/go-teach/pkg/protocol"
	"github.com/teslashibe/go-teach/pkg/robot"
	"github.com/teslashibe/go-teach/pkg/transport"
)

const tolerance = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < tolerance }

func testConfig() HostConfig {
	cfg := DefaultHostConfig()
	cfg.Cameras, cfg.Width, cfg.Height, cfg.SensorWidth = 2, 16, 12, 6
	return cfg
}

func dialHost(t *testing.T, h *Host) *transport.ActionClient {
	t.Helper()
	srv := httptest.NewServer(transport.ReplyHandler(h.Handle, log.Discard()))
	t.Cleanup(srv.Close)

	req, err := transport.DialRequester(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), transport.Options{ReplyTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("DialRequester() error = %v", err)
	}
	c := transport.NewActionClient(req, "")
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHost_ResetAndAction(t *testing.T) {
	cfg := testConfig()
	h := NewHost(cfg, log.Discard())
	client := dialHost(t, h)
	ctx := context.Background()

	reply, err := client.Send(ctx, robot.ResetAction(r3.Vector{X: 0.05}, time.Now()))
	if err != nil {
		t.Fatalf("reset error = %v", err)
	}
	if reply.State == nil || !near(reply.State.Position.X, cfg.Home.X+0.05) {
		t.Fatalf("reset state = %+v", reply.State)
	}
	if reply.State.Gripper != robot.GripperOpen.Value() {
		t.Errorf("gripper after reset = %v, want open", reply.State.Gripper)
	}

	target := r3.Vector{X: 0.5, Y: -0.1, Z: 0.2}
	reply, err = client.Send(ctx, robot.Action{Position: target, Orientation: quat.Number{Real: 1}, Gripper: robot.GripperClosed})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.State.Position != target || reply.State.Gripper != robot.GripperClosed.Value() {
		t.Errorf("state = %+v", reply.State)
	}

	s, err := client.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if s.Position != target {
		t.Errorf("GetState position = %v, want %v", s.Position, target)
	}
	if h.Actions() != 1 {
		t.Errorf("Actions() = %d, want 1 (resets are not counted)", h.Actions())
	}
}

func TestHost_SensorSnapshotFollowsGripper(t *testing.T) {
	h := NewHost(testConfig(), log.Discard())
	client := dialHost(t, h)
	ctx := context.Background()

	open, err := client.SensorSnapshot(ctx)
	if err != nil {
		t.Fatalf("SensorSnapshot() error = %v", err)
	}
	if len(open) != 6 {
		t.Fatalf("got %d values, want 6", len(open))
	}

	if _, err := client.Send(ctx, robot.Action{Orientation: quat.Number{Real: 1}, Gripper: robot.GripperClosed}); err != nil {
		t.Fatal(err)
	}
	closed, err := client.SensorSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for k := range closed {
		if !near(closed[k]-open[k], 1) {
			t.Errorf("value %d: closed %v, open %v", k, closed[k], open[k])
		}
	}
}

func TestHost_NoTactileIsUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.SensorWidth = 0
	client := dialHost(t, NewHost(cfg, log.Discard()))

	_, err := client.SensorSnapshot(context.Background())
	if !errors.Is(err, observe.ErrSensorUnavailable) {
		t.Errorf("error = %v, want ErrSensorUnavailable", err)
	}
}

func TestHost_RejectsUnknownRequest(t *testing.T) {
	h := NewHost(testConfig(), log.Discard())
	msg, _ := protocol.NewAckMessage("hello")
	if _, err := h.Handle(context.Background(), msg); err == nil {
		t.Error("expected error for an ack request")
	}
}

type recordingSender struct {
	mu     sync.Mutex
	msgs   []*protocol.Message
	err    error
	closed bool
}

func (r *recordingSender) Send(ctx context.Context, msg *protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSender) Close() error {
	r.closed = true
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestHost_Publish(t *testing.T) {
	h := NewHost(testConfig(), log.Discard())
	state, tactile := &recordingSender{}, &recordingSender{}
	cams := []*recordingSender{{}, {}}
	out := Outputs{State: state, Tactile: tactile, Cameras: []Sender{cams[0], cams[1]}}

	if err := h.Publish(context.Background(), out); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if _, err := state.msgs[0].GetRobotState(); err != nil {
		t.Errorf("state message: %v", err)
	}
	data, err := tactile.msgs[0].GetSensorState()
	if err != nil || len(data[transport.DefaultSensorKey].Values) != 6 {
		t.Errorf("tactile message = %v, %v", data, err)
	}
	for i, cam := range cams {
		frame, err := cam.msgs[0].GetFrameData()
		if err != nil {
			t.Fatalf("camera %d: %v", i, err)
		}
		if frame.Camera != i {
			t.Errorf("camera index = %d, want %d", frame.Camera, i)
		}
		raw, err := frame.DecodeFrameData()
		if err != nil {
			t.Fatal(err)
		}
		img, err := imaging.Decode(bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("camera %d frame is not a JPEG: %v", i, err)
		}
		if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 12 {
			t.Errorf("camera %d size = %v", i, b)
		}
	}

	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	if !state.closed || !tactile.closed || !cams[1].closed {
		t.Error("outputs not closed")
	}
}

func TestHost_PublishError(t *testing.T) {
	h := NewHost(testConfig(), log.Discard())
	boom := errors.New("relay gone")
	err := h.Publish(context.Background(), Outputs{State: &recordingSender{err: boom}})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestHost_StreamStopsOnCancel(t *testing.T) {
	h := NewHost(testConfig(), log.Discard())
	state := &recordingSender{}
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	if err := h.Stream(ctx, 50, Outputs{State: state}); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if state.count() < 2 {
		t.Errorf("published %d states in 120ms at 50 Hz", state.count())
	}
}

func TestController_Script(t *testing.T) {
	clk := clock.NewMock()
	c := NewController(0.1, 4*time.Second, clk)

	first := c.Next()
	if !first.RightA || first.RightB {
		t.Errorf("first sample should engage: %+v", first)
	}
	if !geometry.AffineFromFlat(first.RightAffine).AlmostEqual(geometry.Identity(), tolerance) {
		t.Errorf("first pose = %v, want identity", first.RightAffine)
	}
	if first.RightHandTrigger != 1 || first.RightIndexTrigger != 0 {
		t.Errorf("first half of the lap should hold the gripper open: %+v", first)
	}

	clk.Add(time.Second)
	quarter := c.Next()
	if quarter.RightA {
		t.Error("only the first sample engages")
	}
	pos := geometry.AffineFromFlat(quarter.RightAffine).Translation()
	if !near(pos.X, -0.1) || !near(pos.Y, 0) || !near(pos.Z, 0.1) {
		t.Errorf("quarter lap position = %v", pos)
	}

	clk.Add(2 * time.Second)
	late := c.Next()
	if late.RightIndexTrigger != 1 || late.RightHandTrigger != 0 {
		t.Errorf("second half of the lap should close the gripper: %+v", late)
	}
}

func TestController_SamplesDriveSubscriber(t *testing.T) {
	c := NewController(0.1, time.Second, clock.NewMock())
	data := c.Next()
	sample := transport.SampleFromData(&data)
	if !sample.Engage || sample.HandTrigger != 1 {
		t.Errorf("sample = %+v", sample)
	}
}
