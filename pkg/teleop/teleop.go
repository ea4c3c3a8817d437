// Package teleop drives a robot arm from a hand-tracked VR controller.
//
// An Operator is the teleoperation state machine: it homes the robot on the
// first controller sample, engages and disengages on the controller buttons,
// retargets controller motion relative to the engagement pose and latches the
// gripper state from the triggers. A Loop runs the Operator at a fixed rate.
package teleop

import (
	"context"
	"errors"
	"time"

	"github.com/teslashibe/go-teach/pkg/geometry"
)

// Sentinel errors for teleoperation.
var (
	// ErrNoSample is returned by a ControllerSource when a poll produced no
	// usable sample. The tick is skipped.
	ErrNoSample = errors.New("teleop: no controller sample")

	// ErrHandshake is returned when the robot never acknowledged the initial
	// reset. It is fatal to the control loop.
	ErrHandshake = errors.New("teleop: reset handshake failed")
)

// TriggerThreshold is the trigger axis value above which a gripper request fires.
const TriggerThreshold = 0.5

// ControllerSample is one poll of the tracked right-hand controller.
type ControllerSample struct {
	Affine       geometry.Affine // controller pose in the tracking frame
	Engage       bool            // A button
	Disengage    bool            // B button
	IndexTrigger float64         // [0,1], closes the gripper
	HandTrigger  float64         // [0,1], opens the gripper
	Timestamp    time.Time
}

// ControllerSource yields controller samples. Poll blocks until one arrives.
type ControllerSource interface {
	Poll(ctx context.Context) (ControllerSample, error)
}

// Phase is the engagement state of the Operator.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseHomedIdle
	PhaseEngaged
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseHomedIdle:
		return "homed_idle"
	case PhaseEngaged:
		return "engaged"
	default:
		return "unknown"
	}
}
