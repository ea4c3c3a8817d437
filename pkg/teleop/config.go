package teleop

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/teslashibe/go-teach/pkg/geometry"
	"github.com/teslashibe/go-teach/pkg/robot"
)

// Config holds the calibration and safety limits of the teleoperator.
type Config struct {
	// Hz is the control loop frequency.
	Hz float64

	// Calibration aligns the VR tracking frame with the robot base frame.
	Calibration geometry.Calibration

	// Workspace bounds every engaged target position.
	Workspace geometry.Workspace

	// InitGripper is the gripper state before any trigger is pulled.
	InitGripper robot.Gripper

	// HomeOffset is sent with the reset action to shift the home position.
	HomeOffset r3.Vector
}

// DefaultConfig returns the configuration for a Franka arm at 20 Hz.
func DefaultConfig() Config {
	return Config{
		Hz:          20,
		Calibration: geometry.DefaultCalibration(),
		Workspace: geometry.Workspace{
			Min: r3.Vector{X: 0.2, Y: -0.4, Z: 0.05},
			Max: r3.Vector{X: 0.75, Y: 0.4, Z: 0.7},
		},
		InitGripper: robot.GripperOpen,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Hz <= 0 {
		return fmt.Errorf("hz must be positive, got %v", c.Hz)
	}
	if err := c.Calibration.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if c.InitGripper != robot.GripperOpen && c.InitGripper != robot.GripperClosed {
		return fmt.Errorf("invalid initial gripper state %v", c.InitGripper)
	}
	return nil
}
