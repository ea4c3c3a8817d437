package observe

import "fmt"

// MinBaselineSamples is the smallest number of readings averaged into a
// tactile baseline.
const MinBaselineSamples = 5

// Config holds environment configuration.
type Config struct {
	Cameras int `yaml:"cameras"`
	Width   int `yaml:"width"`
	Height  int `yaml:"height"`

	// UseRobot selects hardware mode. Without it every record is zero-filled.
	UseRobot bool `yaml:"use_robot"`

	Tactile          bool `yaml:"tactile"`
	Sensors          int  `yaml:"sensors"`
	SensorDim        int  `yaml:"sensor_dim"`
	SubtractBaseline bool `yaml:"subtract_baseline"`
	BaselineSamples  int  `yaml:"baseline_samples"`
}

// DefaultConfig returns the configuration for four cameras at 640x480 and two
// 15-channel tactile sensors.
func DefaultConfig() Config {
	return Config{
		Cameras:          4,
		Width:            640,
		Height:           480,
		UseRobot:         true,
		Tactile:          true,
		Sensors:          2,
		SensorDim:        15,
		SubtractBaseline: true,
		BaselineSamples:  MinBaselineSamples,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Cameras < 1 {
		return fmt.Errorf("cameras must be at least 1, got %d", c.Cameras)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", c.Width, c.Height)
	}
	if c.Tactile {
		if c.Sensors < 1 || c.SensorDim < 1 {
			return fmt.Errorf("invalid tactile layout %d x %d", c.Sensors, c.SensorDim)
		}
		if c.BaselineSamples < MinBaselineSamples {
			return fmt.Errorf("baseline_samples must be at least %d, got %d", MinBaselineSamples, c.BaselineSamples)
		}
	}
	return nil
}

// TactileWidth is the length of a full tactile reading.
func (c *Config) TactileWidth() int {
	if !c.Tactile {
		return 0
	}
	return c.Sensors * c.SensorDim
}
