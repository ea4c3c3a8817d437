package teleop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-teach/pkg/geometry"
	"github.com/teslashibe/go-teach/pkg/robot"
)

// RecordedStep is one control tick of a demonstration.
type RecordedStep struct {
	Timestamp float64     `json:"timestamp"`
	Commanded [7]float64  `json:"commanded_pose"` // pos + quat xyzw
	Gripper   float64     `json:"gripper_state"`
	Pose      *[7]float64 `json:"pose,omitempty"` // robot pose from the reply, when sent
}

// Recorder collects the commanded trajectory of a teleoperation session.
type Recorder struct {
	mu    sync.Mutex
	id    string
	steps []RecordedStep
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{id: uuid.New().String()}
}

// Record appends one tick. state may be nil when the robot only acknowledged.
func (r *Recorder) Record(action robot.Action, state *robot.State) {
	step := RecordedStep{
		Timestamp: float64(action.Timestamp.UnixNano()) / 1e9,
		Commanded: flattenPose(geometry.Pose{Position: action.Position, Orientation: action.Orientation}),
		Gripper:   action.Gripper.Value(),
	}
	if state != nil {
		p := flattenPose(state.Pose())
		step.Pose = &p
	}

	r.mu.Lock()
	r.steps = append(r.steps, step)
	r.mu.Unlock()
}

// Len returns the number of recorded ticks.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}

// Summary describes a saved demonstration.
type Summary struct {
	Path      string
	Steps     int
	Duration  time.Duration
	Frequency float64 // effective action frequency in Hz
}

type demonstrationFile struct {
	Version int            `json:"version"`
	ID      string         `json:"id"`
	SavedAt string         `json:"saved_at"`
	Steps   []RecordedStep `json:"steps"`
}

const demonstrationVersion = 1

// Save writes dir/demonstration_<num>/states.json.
func (r *Recorder) Save(dir string, num int) (Summary, error) {
	r.mu.Lock()
	steps := make([]RecordedStep, len(r.steps))
	copy(steps, r.steps)
	r.mu.Unlock()

	if len(steps) == 0 {
		return Summary{}, fmt.Errorf("nothing recorded")
	}

	saveDir := filepath.Join(dir, fmt.Sprintf("demonstration_%d", num))
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create demonstration dir: %w", err)
	}

	data, err := json.MarshalIndent(demonstrationFile{
		Version: demonstrationVersion,
		ID:      r.id,
		SavedAt: time.Now().Format(time.RFC3339),
		Steps:   steps,
	}, "", "  ")
	if err != nil {
		return Summary{}, fmt.Errorf("marshal demonstration: %w", err)
	}

	path := filepath.Join(saveDir, "states.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Summary{}, fmt.Errorf("write demonstration: %w", err)
	}

	sum := Summary{Path: path, Steps: len(steps)}
	span := steps[len(steps)-1].Timestamp - steps[0].Timestamp
	sum.Duration = time.Duration(span * float64(time.Second))
	if span > 0 {
		sum.Frequency = float64(len(steps)) / span
	}
	return sum, nil
}

func flattenPose(p geometry.Pose) [7]float64 {
	q := geometry.XYZW(p.Orientation)
	return [7]float64{p.Position.X, p.Position.Y, p.Position.Z, q[0], q[1], q[2], q[3]}
}
