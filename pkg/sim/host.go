// Package sim provides a simulated robot host and a scripted VR controller so
// the teleoperator and the observation env can run end to end without
// hardware.
package sim

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/num/quat"

	"github.com/teslashibe/go-teach/internal/log"
	"github.com/teslashibe/go-teach/pkg/protocol"
	"github.com/teslashibe/go-teach/pkg/robot"
	"github.com/teslashibe/go-teach/pkg/transport"
)

// Sender publishes one message. *transport.Publisher implements it.
type Sender interface {
	Send(ctx context.Context, msg *protocol.Message) error
}

// HostConfig describes the simulated arm and its sensors.
type HostConfig struct {
	Home        r3.Vector
	SensorKey   string
	SensorWidth int // total tactile values per reading; 0 disables tactile
	Cameras     int
	Width       int
	Height      int
}

// DefaultHostConfig matches the default env layout.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		Home:        r3.Vector{X: 0.45, Y: 0, Z: 0.35},
		SensorKey:   transport.DefaultSensorKey,
		SensorWidth: 30,
		Cameras:     4,
		Width:       640,
		Height:      480,
	}
}

// Host is a kinematic stand-in for the robot host: every action is reached
// instantly.
type Host struct {
	cfg    HostConfig
	logger *slog.Logger

	mu      sync.Mutex
	state   robot.State
	actions uint64
	frameID uint64
}

// NewHost creates a Host resting at its home pose with the gripper open.
func NewHost(cfg HostConfig, logger *slog.Logger) *Host {
	if cfg.SensorKey == "" {
		cfg.SensorKey = transport.DefaultSensorKey
	}
	h := &Host{cfg: cfg, logger: log.OrDefault(logger).With("component", "sim")}
	h.home(r3.Vector{})
	return h
}

// Handle answers control requests. It is a transport.HandlerFunc.
func (h *Host) Handle(ctx context.Context, req *protocol.Message) (*protocol.Message, error) {
	switch req.Type {
	case protocol.TypeAction:
		data, err := req.GetAction()
		if err != nil {
			return nil, err
		}
		h.apply(transport.ActionFromData(data))
		return protocol.NewRobotStateMessage(transport.StateToData(h.State()))
	case protocol.TypeGetState:
		return protocol.NewRobotStateMessage(transport.StateToData(h.State()))
	case protocol.TypeGetSensorState:
		if h.cfg.SensorWidth == 0 {
			return protocol.NewSensorStateMessage(protocol.SensorStateData{})
		}
		return protocol.NewSensorStateMessage(h.Tactile())
	}
	return nil, fmt.Errorf("unsupported request %q", req.Type)
}

// State returns the current arm state.
func (h *Host) State() robot.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.state
	s.Timestamp = time.Now()
	return s
}

// Actions returns how many actions have been applied.
func (h *Host) Actions() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.actions
}

func (h *Host) apply(a robot.Action) {
	if a.Reset {
		h.logger.Info("reset", "offset", a.Position)
		h.home(a.Position)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions++
	h.state.Position = a.Position
	h.state.Orientation = a.Orientation
	h.state.Gripper = a.Gripper.Value()
}

func (h *Host) home(offset r3.Vector) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = robot.State{
		Position:    h.cfg.Home.Add(offset),
		Orientation: quat.Number{Real: 1},
		Gripper:     robot.GripperOpen.Value(),
	}
}

// Tactile returns a reading that rises by one on every value while the
// gripper is closed.
func (h *Host) Tactile() protocol.SensorStateData {
	s := h.State()
	values := make([]float64, h.cfg.SensorWidth)
	for k := range values {
		values[k] = 0.01 * float64(k)
		if s.Gripper > 0 {
			values[k]++
		}
	}
	return protocol.SensorStateData{
		h.cfg.SensorKey: {Values: values, Timestamp: protocol.UnixSeconds(s.Timestamp)},
	}
}

// Frame renders camera i as a JPEG frame message. The shade tracks the arm's
// height so motion is visible in the stream.
func (h *Host) Frame(i int) (*protocol.Message, error) {
	s := h.State()
	shade := uint8(math.Max(0, math.Min(255, s.Position.Z*255)))
	img := imaging.New(h.cfg.Width, h.cfg.Height, color.NRGBA{R: shade, G: uint8(40 * i), B: 255 - shade, A: 255})

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return nil, fmt.Errorf("encode camera %d: %w", i, err)
	}

	h.mu.Lock()
	h.frameID++
	id := h.frameID
	h.mu.Unlock()
	return protocol.NewFrameMessage(i, h.cfg.Width, h.cfg.Height, buf.Bytes(), id)
}

// Outputs are the relay topics a Host streams to. Nil outputs are skipped.
type Outputs struct {
	State   Sender
	Tactile Sender
	Cameras []Sender // index i receives camera i
}

// Close closes every output that is an io.Closer.
func (o Outputs) Close() error {
	var err error
	for _, s := range append([]Sender{o.State, o.Tactile}, o.Cameras...) {
		if c, ok := s.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

// Stream publishes state, tactile readings and camera frames at hz until ctx
// is done.
func (h *Host) Stream(ctx context.Context, hz float64, out Outputs) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / hz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := h.Publish(ctx, out); err != nil {
				return err
			}
		}
	}
}

// Publish sends one round of messages to out.
func (h *Host) Publish(ctx context.Context, out Outputs) error {
	if out.State != nil {
		msg, err := protocol.NewRobotStateMessage(transport.StateToData(h.State()))
		if err != nil {
			return err
		}
		if err := out.State.Send(ctx, msg); err != nil {
			return fmt.Errorf("publish state: %w", err)
		}
	}
	if out.Tactile != nil && h.cfg.SensorWidth > 0 {
		msg, err := protocol.NewSensorStateMessage(h.Tactile())
		if err != nil {
			return err
		}
		if err := out.Tactile.Send(ctx, msg); err != nil {
			return fmt.Errorf("publish tactile: %w", err)
		}
	}
	for i, cam := range out.Cameras {
		if cam == nil {
			continue
		}
		msg, err := h.Frame(i)
		if err != nil {
			return err
		}
		if err := cam.Send(ctx, msg); err != nil {
			return fmt.Errorf("publish camera %d: %w", i, err)
		}
	}
	return nil
}
