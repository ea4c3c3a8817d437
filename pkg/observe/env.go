package observe

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/num/quat"

	"github.com/teslashibe/go-teach/internal/log"
	"github.com/teslashibe/go-teach/pkg/robot"
)

// GripperThreshold splits the scalar gripper command of an EnvAction.
const GripperThreshold = 0.5

// EnvAction is an absolute end-effector command. A Gripper above
// GripperThreshold opens the gripper.
type EnvAction struct {
	Position    r3.Vector
	Orientation quat.Number
	Gripper     float64
}

// ActionFromSlice parses [x, y, z, qx, qy, qz, qw, gripper].
func ActionFromSlice(v []float64) (EnvAction, error) {
	if len(v) != 8 {
		return EnvAction{}, fmt.Errorf("action needs 8 values, got %d", len(v))
	}
	return EnvAction{
		Position:    r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		Orientation: quat.Number{Imag: v[3], Jmag: v[4], Kmag: v[5], Real: v[6]},
		Gripper:     v[7],
	}, nil
}

func (a EnvAction) gripper() robot.Gripper {
	if a.Gripper > GripperThreshold {
		return robot.GripperOpen
	}
	return robot.GripperClosed
}

// Hardware is the set of sources an Env reads in hardware mode.
type Hardware struct {
	Robot   robot.Channel
	Cameras []CameraSource // one per configured camera, in index order
	Tactile TactileSource  // required when tactile sensing is enabled
}

// Env assembles observation records. It is not safe for concurrent use.
type Env struct {
	cfg    Config
	layout Layout
	hw     *Hardware
	logger *slog.Logger
	now    func() time.Time

	frames   []image.Image
	state    robot.State
	baseline []float64
	prev     []float64

	// baselineDeferred is set when a reset found the tactile bank missing
	// before any baseline existed.
	baselineDeferred bool
}

// New creates an Env. hw is ignored when cfg.UseRobot is false.
func New(cfg Config, hw *Hardware, logger *slog.Logger) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid env config: %w", err)
	}
	e := &Env{
		cfg:    cfg,
		layout: NewLayout(cfg),
		logger: log.OrDefault(logger).With("component", "env"),
		now:    time.Now,
	}
	if !cfg.UseRobot {
		return e, nil
	}

	if hw == nil || hw.Robot == nil {
		return nil, errors.New("hardware mode needs a robot channel")
	}
	if len(hw.Cameras) != cfg.Cameras {
		return nil, fmt.Errorf("configured %d cameras, got %d sources", cfg.Cameras, len(hw.Cameras))
	}
	if cfg.Tactile && hw.Tactile == nil {
		return nil, errors.New("tactile sensing enabled without a tactile source")
	}
	e.hw = hw
	return e, nil
}

// Layout returns the channel layout of every record this Env produces.
func (e *Env) Layout() Layout { return e.layout }

// Hardware reports whether the Env talks to a robot.
func (e *Env) Hardware() bool { return e.hw != nil }

// Reset homes the robot, captures fresh frames and re-baselines the tactile
// sensors. Without hardware it returns a zero-filled record.
//
// A tactile bank reported unavailable while re-baselining leaves the tactile
// channels absent from the returned record and keeps the previous baseline.
func (e *Env) Reset(ctx context.Context) (*Record, error) {
	if e.hw == nil {
		e.frames = e.blankFrames()
		e.baseline = make([]float64, e.cfg.TactileWidth())
		e.prev = make([]float64, e.cfg.TactileWidth())
		return zeroRecord(e.layout), nil
	}

	e.logger.Info("resetting robot")
	reply, err := e.hw.Robot.Send(ctx, robot.ResetAction(r3.Vector{}, e.now()))
	if err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	if err := e.updateState(ctx, reply); err != nil {
		return nil, err
	}
	if err := e.captureFrames(ctx); err != nil {
		return nil, err
	}
	tactile := e.cfg.Tactile
	if tactile {
		err := e.Rebaseline(ctx)
		switch {
		case errors.Is(err, ErrSensorUnavailable):
			// Keep the previous baseline; without one, the next step retries.
			e.logger.Warn("tactile baseline unavailable, channels absent", "error", err)
			e.baselineDeferred = e.baseline == nil
			tactile = false
		case err != nil:
			return nil, err
		}
	}
	e.logger.Info("reset done", "pos", e.state.Position)
	return e.buildRecord(ctx, tactile)
}

// Step sends an absolute action and returns the resulting observation.
func (e *Env) Step(ctx context.Context, action EnvAction) (*Record, error) {
	if e.hw == nil {
		return zeroRecord(e.layout), nil
	}

	reply, err := e.hw.Robot.Send(ctx, robot.Action{
		Position:    action.Position,
		Orientation: action.Orientation,
		Gripper:     action.gripper(),
		Timestamp:   e.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("send action: %w", err)
	}
	if err := e.updateState(ctx, reply); err != nil {
		return nil, err
	}
	if err := e.captureFrames(ctx); err != nil {
		return nil, err
	}
	return e.buildRecord(ctx, e.cfg.Tactile)
}

// GetState queries the robot's current state.
func (e *Env) GetState(ctx context.Context) (robot.State, error) {
	if e.hw == nil {
		return robot.State{}, ErrNoRobot
	}
	s, err := e.hw.Robot.GetState(ctx)
	if err != nil {
		return robot.State{}, fmt.Errorf("get state: %w", err)
	}
	e.state = s
	return s, nil
}

// Rebaseline averages BaselineSamples fresh tactile snapshots into a new
// baseline and clears the previous reading, so the next delta equals the
// value itself.
func (e *Env) Rebaseline(ctx context.Context) error {
	if !e.cfg.Tactile {
		return nil
	}
	width := e.cfg.TactileWidth()
	if e.hw == nil {
		e.baseline = make([]float64, width)
		e.prev = make([]float64, width)
		return nil
	}

	sum := make([]float64, width)
	for i := 0; i < e.cfg.BaselineSamples; i++ {
		snap, err := e.hw.Robot.SensorSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("baseline sample %d: %w", i, err)
		}
		if len(snap) != width {
			return fmt.Errorf("baseline sample %d has %d values, want %d", i, len(snap), width)
		}
		for k, v := range snap {
			sum[k] += v
		}
	}
	for k := range sum {
		sum[k] /= float64(e.cfg.BaselineSamples)
	}
	e.baseline = sum
	e.prev = make([]float64, width)
	e.baselineDeferred = false
	e.logger.Debug("tactile baseline updated", "samples", e.cfg.BaselineSamples)
	return nil
}

// Close releases every hardware source that holds a connection.
func (e *Env) Close() error {
	if e.hw == nil {
		return nil
	}
	err := e.hw.Robot.Close()
	for _, c := range e.hw.Cameras {
		if cl, ok := c.(io.Closer); ok {
			err = multierr.Append(err, cl.Close())
		}
	}
	if cl, ok := e.hw.Tactile.(io.Closer); ok {
		err = multierr.Append(err, cl.Close())
	}
	return err
}

func (e *Env) updateState(ctx context.Context, reply robot.Reply) error {
	if reply.State != nil {
		e.state = *reply.State
		return nil
	}
	_, err := e.GetState(ctx)
	return err
}

// captureFrames receives one frame per camera concurrently. Either every
// frame arrives or the step fails.
func (e *Env) captureFrames(ctx context.Context) error {
	frames := make([]image.Image, len(e.hw.Cameras))
	g, gctx := errgroup.WithContext(ctx)
	for i, cam := range e.hw.Cameras {
		i, cam := i, cam
		g.Go(func() error {
			img, _, err := cam.RecvFrame(gctx)
			if err != nil {
				return fmt.Errorf("camera %d: %w", i, err)
			}
			frames[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	e.frames = frames
	return nil
}

func (e *Env) buildRecord(ctx context.Context, tactile bool) (*Record, error) {
	rec := newRecord(e.layout)

	features := e.state.Features()
	if err := rec.set(ChannelFeatures, features); err != nil {
		return nil, err
	}
	if err := rec.set(ChannelProprioceptive, append([]float64(nil), features...)); err != nil {
		return nil, err
	}

	for i, f := range e.frames {
		if err := rec.set(PixelsChannel(i), toHWC(resize(f, e.cfg.Width, e.cfg.Height))); err != nil {
			return nil, err
		}
	}

	if tactile {
		if err := e.readTactile(ctx, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (e *Env) readTactile(ctx context.Context, rec *Record) error {
	if e.baseline == nil {
		if !e.baselineDeferred {
			return ErrNoBaseline
		}
		err := e.Rebaseline(ctx)
		if errors.Is(err, ErrSensorUnavailable) {
			e.logger.Debug("tactile baseline still unavailable, channels absent")
			return nil
		}
		if err != nil {
			return err
		}
	}

	raw, err := e.hw.Tactile.Read(ctx)
	if errors.Is(err, ErrSensorUnavailable) {
		e.logger.Debug("tactile reading unavailable, channels absent")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read tactile: %w", err)
	}
	width := e.cfg.TactileWidth()
	if len(raw) != width {
		return fmt.Errorf("tactile reading has %d values, want %d", len(raw), width)
	}

	values := make([]float64, width)
	diffs := make([]float64, width)
	for k, v := range raw {
		if e.cfg.SubtractBaseline {
			v -= e.baseline[k]
		}
		values[k] = v
		diffs[k] = v - e.prev[k]
	}
	e.prev = values

	dim := e.cfg.SensorDim
	for j := 0; j < e.cfg.Sensors; j++ {
		lo, hi := j*dim, (j+1)*dim
		if err := rec.set(SensorChannel(j), append([]float64(nil), values[lo:hi]...)); err != nil {
			return err
		}
		if err := rec.set(SensorDiffsChannel(j), diffs[lo:hi:hi]); err != nil {
			return err
		}
	}
	return nil
}
