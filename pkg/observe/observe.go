// Package observe assembles per-step observation records for a robot
// environment: proprioception from the robot host, resized camera frames and
// baseline-corrected tactile readings.
//
// An Env runs in one of two modes. With hardware attached it talks to the
// robot over a robot.Channel and pulls frames and tactile readings from the
// configured sources. Without hardware it returns zero-filled records with the
// same channel names and shapes, for dry runs and tests.
package observe

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrNotReset is returned by Render before any frame has been captured.
	ErrNotReset = errors.New("observe: render called before reset")

	// ErrNoBaseline is returned when tactile values are read before the
	// sensor baseline has been established.
	ErrNoBaseline = errors.New("observe: tactile baseline not established")

	// ErrSensorUnavailable is returned by a TactileSource whose reading does
	// not carry sensor values. The tactile channels are left absent for that
	// step instead of failing it.
	ErrSensorUnavailable = errors.New("observe: tactile sensor unavailable")

	// ErrNoRobot is returned by robot queries on an Env without hardware.
	ErrNoRobot = errors.New("observe: no robot attached")
)

// FrameMeta describes a received camera frame.
type FrameMeta struct {
	Camera    int
	FrameID   uint64
	Timestamp time.Time
}

// CameraSource delivers camera frames. RecvFrame blocks until the next frame.
type CameraSource interface {
	RecvFrame(ctx context.Context) (image.Image, FrameMeta, error)
}

// TactileSource delivers raw tactile readings, all sensors concatenated.
type TactileSource interface {
	Read(ctx context.Context) ([]float64, error)
}
