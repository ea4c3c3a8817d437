package robot

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/teslashibe/go-teach/pkg/geometry"
)

// Gripper is the binary gripper command. The numeric values are the ones the
// arm controller expects on the wire.
type Gripper int8

const (
	GripperOpen   Gripper = -1
	GripperClosed Gripper = 1
)

// Value returns the wire value.
func (g Gripper) Value() float64 {
	return float64(g)
}

func (g Gripper) String() string {
	switch g {
	case GripperOpen:
		return "open"
	case GripperClosed:
		return "closed"
	default:
		return fmt.Sprintf("gripper(%d)", int8(g))
	}
}

// ParseGripper accepts "open" or "closed".
func ParseGripper(s string) (Gripper, error) {
	switch s {
	case "open":
		return GripperOpen, nil
	case "closed", "close":
		return GripperClosed, nil
	}
	return 0, fmt.Errorf("unknown gripper state %q", s)
}

// GripperFromValue maps a wire value back to a command. Positive values close.
func GripperFromValue(v float64) Gripper {
	if v > 0 {
		return GripperClosed
	}
	return GripperOpen
}

// State is a robot end-effector state sample.
type State struct {
	Position    r3.Vector
	Orientation quat.Number
	Gripper     float64
	Timestamp   time.Time
}

// Pose returns the end-effector pose.
func (s State) Pose() geometry.Pose {
	return geometry.Pose{Position: s.Position, Orientation: s.Orientation}
}

// Features flattens the state as [pos(3), quat xyzw(4), gripper(1)].
func (s State) Features() []float64 {
	q := geometry.XYZW(s.Orientation)
	return []float64{
		s.Position.X, s.Position.Y, s.Position.Z,
		q[0], q[1], q[2], q[3],
		s.Gripper,
	}
}

// FeatureDim is the length of State.Features.
const FeatureDim = 8

// Action is a target end-effector command.
type Action struct {
	Position    r3.Vector
	Orientation quat.Number
	Gripper     Gripper
	Reset       bool
	Timestamp   time.Time
}

// ResetAction builds the homing request. offset is forwarded as the position
// so the arm controller can home to a shifted pose; the zero quaternion tells
// it to keep its default home orientation.
func ResetAction(offset r3.Vector, now time.Time) Action {
	return Action{
		Position:  offset,
		Gripper:   GripperOpen,
		Reset:     true,
		Timestamp: now,
	}
}

// Reply is the arm controller's answer to a request: a bare acknowledgment or
// a fresh state.
type Reply struct {
	Ack   bool
	State *State
}
