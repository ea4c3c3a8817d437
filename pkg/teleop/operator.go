package teleop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/teslashibe/go-teach/internal/log"
	"github.com/teslashibe/go-teach/pkg/geometry"
	"github.com/teslashibe/go-teach/pkg/robot"
)

// homePose is the robot pose that engaged motion is applied on top of.
type homePose struct {
	rot geometry.Rotation
	pos r3.Vector
}

// Status is a snapshot of the Operator for dashboards and logs.
type Status struct {
	SessionID  string     `json:"session_id"`
	Phase      string     `json:"phase"`
	Gripper    string     `json:"gripper"`
	HomePos    [3]float64 `json:"home_pos"`
	TargetPos  [3]float64 `json:"target_pos"`
	TargetQuat [4]float64 `json:"target_quat"` // x, y, z, w
	Ticks      uint64     `json:"ticks"`
	Skipped    uint64     `json:"skipped"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Operator is the teleoperation state machine.
//
// It is not safe for concurrent use: a single Loop owns it and calls Step
// sequentially. Status may be called from any goroutine.
type Operator struct {
	cfg      Config
	actuator robot.Actuator
	states   robot.StateReader
	logger   *slog.Logger
	now      func() time.Time
	recorder *Recorder

	phase      Phase
	home       homePose
	initAffine geometry.Affine
	gripper    robot.Gripper

	ticks   uint64
	skipped uint64

	statusMu  sync.RWMutex
	status    Status
	sessionID string
}

// NewOperator creates an Operator that sends actions on actuator and reads
// robot state from states. A nil logger uses the default logger.
func NewOperator(cfg Config, actuator robot.Actuator, states robot.StateReader, logger *slog.Logger) (*Operator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if actuator == nil || states == nil {
		return nil, fmt.Errorf("actuator and state reader are required")
	}

	id := uuid.New().String()
	o := &Operator{
		cfg:       cfg,
		actuator:  actuator,
		states:    states,
		logger:    log.OrDefault(logger).With("session", id),
		now:       time.Now,
		gripper:   cfg.InitGripper,
		sessionID: id,
	}
	o.publishStatus(nil)
	return o, nil
}

// SetRecorder attaches a demonstration recorder. Pass nil to detach.
func (o *Operator) SetRecorder(r *Recorder) {
	o.recorder = r
}

// Phase returns the current engagement phase.
func (o *Operator) Phase() Phase {
	return o.phase
}

// Gripper returns the latched gripper state.
func (o *Operator) Gripper() robot.Gripper {
	return o.gripper
}

// Home returns the current home pose.
func (o *Operator) Home() geometry.Pose {
	return geometry.NewPose(o.home.pos, o.home.rot)
}

// Step runs one control tick for sample and returns the action that was sent.
//
// A nil sample skips the tick: nothing is sent and (nil, nil) is returned.
// The first sample triggers the reset handshake; its failure wraps ErrHandshake.
func (o *Operator) Step(ctx context.Context, sample *ControllerSample) (*robot.Action, error) {
	if sample == nil {
		o.skipped++
		o.logger.Debug("no controller sample, skipping tick")
		o.publishStatus(nil)
		return nil, nil
	}

	if o.phase == PhaseUninitialized {
		if err := o.handshake(ctx); err != nil {
			return nil, err
		}
	}

	if sample.Engage {
		o.engage(sample.Affine)
	}
	if sample.Disengage {
		if o.phase == PhaseEngaged {
			o.logger.Info("teleop disengaged, rehoming")
		}
		o.phase = PhaseHomedIdle
		o.initAffine = geometry.Affine{}
		state, err := o.states.Poll(ctx)
		if err != nil {
			return nil, fmt.Errorf("read robot state for rehome: %w", err)
		}
		o.setHome(state)
	}

	o.updateGripper(sample)

	pos, rot, err := o.target(sample)
	if err != nil {
		return nil, err
	}

	action := robot.Action{
		Position:    pos,
		Orientation: rot.Quaternion(),
		Gripper:     o.gripper,
		Timestamp:   o.now(),
	}
	reply, err := o.actuator.Send(ctx, action)
	if err != nil {
		return nil, fmt.Errorf("send action: %w", err)
	}

	o.ticks++
	if o.recorder != nil {
		o.recorder.Record(action, reply.State)
	}
	o.publishStatus(&action)
	return &action, nil
}

// handshake resets the robot and captures the first home pose.
func (o *Operator) handshake(ctx context.Context) error {
	o.logger.Info("resetting robot", "home_offset", o.cfg.HomeOffset)

	if _, err := o.actuator.Send(ctx, robot.ResetAction(o.cfg.HomeOffset, o.now())); err != nil {
		return fmt.Errorf("%w: reset: %w", ErrHandshake, err)
	}
	state, err := o.states.Poll(ctx)
	if err != nil {
		return fmt.Errorf("%w: robot state: %w", ErrHandshake, err)
	}

	o.setHome(state)
	o.phase = PhaseHomedIdle
	o.logger.Info("robot homed",
		"pos", fmt.Sprintf("%.3f,%.3f,%.3f", state.Position.X, state.Position.Y, state.Position.Z))
	return nil
}

// engage captures the controller pose that engaged motion is relative to.
// A singular pose cannot anchor retargeting, so the engage is ignored.
func (o *Operator) engage(a geometry.Affine) {
	if _, err := a.Inverse(); err != nil {
		o.logger.Warn("ignoring engage with degenerate controller pose", "phase", o.phase, "error", err)
		return
	}
	if o.phase != PhaseEngaged {
		o.logger.Info("teleop engaged")
	}
	o.phase = PhaseEngaged
	o.initAffine = a
}

func (o *Operator) setHome(s robot.State) {
	o.home = homePose{
		rot: geometry.RotationFromQuaternion(s.Orientation),
		pos: s.Position,
	}
}

// updateGripper latches a new gripper state when a trigger crosses the threshold.
// The index trigger wins when both are pulled.
func (o *Operator) updateGripper(s *ControllerSample) {
	var requested robot.Gripper
	switch {
	case s.IndexTrigger > TriggerThreshold:
		requested = robot.GripperClosed
	case s.HandTrigger > TriggerThreshold:
		requested = robot.GripperOpen
	default:
		return
	}
	if requested != o.gripper {
		o.logger.Debug("gripper", "from", o.gripper, "to", requested)
		o.gripper = requested
	}
}

// target computes the commanded pose for this tick.
func (o *Operator) target(s *ControllerSample) (r3.Vector, geometry.Rotation, error) {
	if o.phase != PhaseEngaged {
		return o.home.pos, o.home.rot, nil
	}

	rel, err := geometry.RelativeTransform(o.initAffine, s.Affine, o.cfg.Calibration)
	if err != nil {
		return r3.Vector{}, geometry.Rotation{}, fmt.Errorf("retarget: %w", err)
	}

	pos := o.cfg.Workspace.Clamp(o.home.pos.Add(rel.Translation()))
	rot := o.home.rot.Mul(rel.Rotation())
	return pos, rot, nil
}

// Status returns the latest snapshot.
func (o *Operator) Status() Status {
	o.statusMu.RLock()
	defer o.statusMu.RUnlock()
	return o.status
}

func (o *Operator) publishStatus(action *robot.Action) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()

	o.status.SessionID = o.sessionID
	o.status.Phase = o.phase.String()
	o.status.Gripper = o.gripper.String()
	o.status.HomePos = [3]float64{o.home.pos.X, o.home.pos.Y, o.home.pos.Z}
	o.status.Ticks = o.ticks
	o.status.Skipped = o.skipped
	o.status.UpdatedAt = o.now()
	if action != nil {
		o.status.TargetPos = [3]float64{action.Position.X, action.Position.Y, action.Position.Z}
		o.status.TargetQuat = geometry.XYZW(action.Orientation)
	}
}
