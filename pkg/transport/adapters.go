package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/teslashibe/go-teach/pkg/geometry"
	"github.com/teslashibe/go-teach/pkg/observe"
	"github.com/teslashibe/go-teach/pkg/protocol"
	"github.com/teslashibe/go-teach/pkg/robot"
	"github.com/teslashibe/go-teach/pkg/teleop"
)

// DefaultSensorKey is the sensor bank read by TactileSubscriber and
// ActionClient.SensorSnapshot when none is configured.
const DefaultSensorKey = "reskin"

// nextOfType returns the next message of type want, skipping others.
func nextOfType(ctx context.Context, sub *Subscriber, want protocol.MessageType) (*protocol.Message, error) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return nil, err
		}
		if msg.Type == want {
			return msg, nil
		}
	}
}

// ControllerSubscriber turns a controller_state topic into a
// teleop.ControllerSource.
type ControllerSubscriber struct {
	sub *Subscriber
}

// NewControllerSubscriber wraps sub.
func NewControllerSubscriber(sub *Subscriber) *ControllerSubscriber {
	return &ControllerSubscriber{sub: sub}
}

// Poll returns the next controller sample. A receive timeout is reported as
// teleop.ErrNoSample so the control loop skips the tick.
func (c *ControllerSubscriber) Poll(ctx context.Context) (teleop.ControllerSample, error) {
	msg, err := nextOfType(ctx, c.sub, protocol.TypeControllerState)
	if errors.Is(err, ErrTimeout) {
		return teleop.ControllerSample{}, teleop.ErrNoSample
	}
	if err != nil {
		return teleop.ControllerSample{}, err
	}
	data, err := msg.GetControllerState()
	if err != nil {
		return teleop.ControllerSample{}, err
	}
	return SampleFromData(data), nil
}

// Close closes the subscription.
func (c *ControllerSubscriber) Close() error { return c.sub.Close() }

// SampleFromData converts a wire controller state.
func SampleFromData(d *protocol.ControllerStateData) teleop.ControllerSample {
	return teleop.ControllerSample{
		Affine:       geometry.AffineFromFlat(d.RightAffine),
		Engage:       d.RightA,
		Disengage:    d.RightB,
		IndexTrigger: d.RightIndexTrigger,
		HandTrigger:  d.RightHandTrigger,
		Timestamp:    protocol.FromUnixSeconds(d.CreatedAt),
	}
}

// StateSubscriber turns a robot_state topic into a robot.StateReader.
type StateSubscriber struct {
	sub *Subscriber
}

// NewStateSubscriber wraps sub.
func NewStateSubscriber(sub *Subscriber) *StateSubscriber {
	return &StateSubscriber{sub: sub}
}

// Poll returns the next published robot state.
func (s *StateSubscriber) Poll(ctx context.Context) (robot.State, error) {
	msg, err := nextOfType(ctx, s.sub, protocol.TypeRobotState)
	if err != nil {
		return robot.State{}, err
	}
	data, err := msg.GetRobotState()
	if err != nil {
		return robot.State{}, err
	}
	return StateFromData(data), nil
}

// Close closes the subscription.
func (s *StateSubscriber) Close() error { return s.sub.Close() }

// StateFromData converts a wire robot state.
func StateFromData(d *protocol.RobotStateData) robot.State {
	return robot.State{
		Position:    r3.Vector{X: d.Pos[0], Y: d.Pos[1], Z: d.Pos[2]},
		Orientation: geometry.QuaternionFromXYZW(d.Quat),
		Gripper:     d.Gripper,
		Timestamp:   protocol.FromUnixSeconds(d.Timestamp),
	}
}

// StateToData converts a robot state for the wire.
func StateToData(s robot.State) protocol.RobotStateData {
	return protocol.RobotStateData{
		Pos:       [3]float64{s.Position.X, s.Position.Y, s.Position.Z},
		Quat:      geometry.XYZW(s.Orientation),
		Gripper:   s.Gripper,
		Timestamp: protocol.UnixSeconds(s.Timestamp),
	}
}

// ActionToData converts an action for the wire.
func ActionToData(a robot.Action) protocol.ActionData {
	return protocol.ActionData{
		Pos:       [3]float64{a.Position.X, a.Position.Y, a.Position.Z},
		Quat:      geometry.XYZW(a.Orientation),
		Gripper:   a.Gripper.Value(),
		Reset:     a.Reset,
		Timestamp: protocol.UnixSeconds(a.Timestamp),
	}
}

// ActionFromData converts a wire action.
func ActionFromData(d *protocol.ActionData) robot.Action {
	return robot.Action{
		Position:    r3.Vector{X: d.Pos[0], Y: d.Pos[1], Z: d.Pos[2]},
		Orientation: geometry.QuaternionFromXYZW(d.Quat),
		Gripper:     robot.GripperFromValue(d.Gripper),
		Reset:       d.Reset,
		Timestamp:   protocol.FromUnixSeconds(d.Timestamp),
	}
}

// ActionClient is the robot.Channel over a Requester.
type ActionClient struct {
	req       *Requester
	sensorKey string
}

// NewActionClient wraps req. sensorKey selects the tactile bank returned by
// SensorSnapshot; empty uses DefaultSensorKey.
func NewActionClient(req *Requester, sensorKey string) *ActionClient {
	if sensorKey == "" {
		sensorKey = DefaultSensorKey
	}
	return &ActionClient{req: req, sensorKey: sensorKey}
}

// Send sends an action and waits for the acknowledgment or state reply.
func (a *ActionClient) Send(ctx context.Context, action robot.Action) (robot.Reply, error) {
	msg, err := protocol.NewActionMessage(ActionToData(action))
	if err != nil {
		return robot.Reply{}, err
	}
	reply, err := a.req.Request(ctx, msg)
	if err != nil {
		return robot.Reply{}, err
	}

	switch reply.Type {
	case protocol.TypeRobotState:
		data, err := reply.GetRobotState()
		if err != nil {
			return robot.Reply{}, err
		}
		s := StateFromData(data)
		return robot.Reply{Ack: true, State: &s}, nil
	default:
		ack, err := reply.GetAck()
		if err != nil {
			return robot.Reply{}, err
		}
		if !ack.OK {
			return robot.Reply{}, fmt.Errorf("action rejected: %s", ack.Message)
		}
		return robot.Reply{Ack: true}, nil
	}
}

// GetState queries the robot state without commanding motion.
func (a *ActionClient) GetState(ctx context.Context) (robot.State, error) {
	msg, err := protocol.NewGetStateMessage()
	if err != nil {
		return robot.State{}, err
	}
	reply, err := a.req.Request(ctx, msg)
	if err != nil {
		return robot.State{}, err
	}
	data, err := reply.GetRobotState()
	if err != nil {
		return robot.State{}, err
	}
	return StateFromData(data), nil
}

// SensorSnapshot queries one raw tactile reading from the robot host.
func (a *ActionClient) SensorSnapshot(ctx context.Context) ([]float64, error) {
	msg, err := protocol.NewGetSensorStateMessage()
	if err != nil {
		return nil, err
	}
	reply, err := a.req.Request(ctx, msg)
	if err != nil {
		return nil, err
	}
	data, err := reply.GetSensorState()
	if err != nil {
		return nil, err
	}
	return sensorValues(data, a.sensorKey)
}

// Close closes the control connection.
func (a *ActionClient) Close() error { return a.req.Close() }

// TactileSubscriber turns a sensor_state topic into an observe.TactileSource.
type TactileSubscriber struct {
	sub *Subscriber
	key string
}

// NewTactileSubscriber wraps sub. key selects the sensor bank; empty uses
// DefaultSensorKey.
func NewTactileSubscriber(sub *Subscriber, key string) *TactileSubscriber {
	if key == "" {
		key = DefaultSensorKey
	}
	return &TactileSubscriber{sub: sub, key: key}
}

// Read returns the next raw tactile reading. A reading without values for the
// configured bank returns observe.ErrSensorUnavailable.
func (t *TactileSubscriber) Read(ctx context.Context) ([]float64, error) {
	msg, err := nextOfType(ctx, t.sub, protocol.TypeSensorState)
	if err != nil {
		return nil, err
	}
	data, err := msg.GetSensorState()
	if err != nil {
		return nil, err
	}
	return sensorValues(data, t.key)
}

// Close closes the subscription.
func (t *TactileSubscriber) Close() error { return t.sub.Close() }

func sensorValues(data protocol.SensorStateData, key string) ([]float64, error) {
	bank, ok := data[key]
	if !ok || len(bank.Values) == 0 {
		return nil, fmt.Errorf("%w: no %q values", observe.ErrSensorUnavailable, key)
	}
	return bank.Values, nil
}
