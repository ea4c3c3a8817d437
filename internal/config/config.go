// Package config loads the configuration shared by the go-teach commands.
//
// Values are resolved in order: built-in defaults, then the YAML file, then
// environment overrides. Commands apply their flags last.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-teach/pkg/camera"
	"github.com/teslashibe/go-teach/pkg/geometry"
	"github.com/teslashibe/go-teach/pkg/observe"
	"github.com/teslashibe/go-teach/pkg/robot"
	"github.com/teslashibe/go-teach/pkg/teleop"
)

// Defaults.
const (
	DefaultHost        = "localhost"
	DefaultRelayPort   = 8889
	DefaultControlPort = 8901
	DefaultControlPath = "/ws/control"
	DefaultDashboard   = ":8080"
	DefaultRecordDir   = "demonstrations"

	// EnvHost overrides Config.Host.
	EnvHost = "TEACH_HOST"
)

// Topics are the relay topic names.
type Topics struct {
	Controller string `yaml:"controller"`
	RobotState string `yaml:"robot_state"`
	Tactile    string `yaml:"tactile"`
}

// Teleop is the file form of teleop.Config.
type Teleop struct {
	Hz           float64       `yaml:"hz"`
	InitGripper  string        `yaml:"init_gripper"`
	HomeOffset   [3]float64    `yaml:"home_offset"`
	WorkspaceMin [3]float64    `yaml:"workspace_min"`
	WorkspaceMax [3]float64    `yaml:"workspace_max"`
	HRV          [4][4]float64 `yaml:"h_r_v"`
	HRVStar      [4][4]float64 `yaml:"h_r_v_star"`
}

// Dashboard configures the status dashboard.
type Dashboard struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Record configures demonstration recording.
type Record struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Config is the full configuration.
type Config struct {
	Host         string        `yaml:"host"`
	RelayPort    int           `yaml:"relay_port"`
	ControlPort  int           `yaml:"control_port"`
	ControlPath  string        `yaml:"control_path"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"` // 0 waits forever
	LogLevel     string        `yaml:"log_level"`
	SensorKey    string        `yaml:"sensor_key"`

	Topics    Topics         `yaml:"topics"`
	Teleop    Teleop         `yaml:"teleop"`
	Env       observe.Config `yaml:"env"`
	Cameras   camera.Config  `yaml:"cameras"`
	Dashboard Dashboard      `yaml:"dashboard"`
	Record    Record         `yaml:"record"`
}

// Default returns the built-in configuration.
func Default() *Config {
	tc := teleop.DefaultConfig()
	return &Config{
		Host:        DefaultHost,
		RelayPort:   DefaultRelayPort,
		ControlPort: DefaultControlPort,
		ControlPath: DefaultControlPath,
		LogLevel:    "info",
		SensorKey:   "reskin",
		Topics: Topics{
			Controller: "controller",
			RobotState: "robot_state",
			Tactile:    "tactile",
		},
		Teleop: Teleop{
			Hz:           tc.Hz,
			InitGripper:  tc.InitGripper.String(),
			WorkspaceMin: vec3(tc.Workspace.Min),
			WorkspaceMax: vec3(tc.Workspace.Max),
			HRV:          tc.Calibration.HRV,
			HRVStar:      tc.Calibration.HRVStar,
		},
		Env:       observe.DefaultConfig(),
		Cameras:   camera.DefaultConfig(),
		Dashboard: Dashboard{Addr: DefaultDashboard},
		Record:    Record{Dir: DefaultRecordDir},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	if host := os.Getenv(EnvHost); host != "" {
		c.Host = host
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host must not be empty")
	}
	if c.RelayPort <= 0 || c.ControlPort <= 0 {
		return fmt.Errorf("invalid ports relay=%d control=%d", c.RelayPort, c.ControlPort)
	}
	if c.ReplyTimeout < 0 {
		return fmt.Errorf("reply_timeout must not be negative")
	}
	if _, err := c.TeleopConfig(); err != nil {
		return fmt.Errorf("teleop: %w", err)
	}
	if err := c.Env.Validate(); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	if errs := c.Cameras.Validate(); len(errs) > 0 {
		return fmt.Errorf("cameras: %v", errs)
	}
	if c.Cameras.Count != c.Env.Cameras {
		return fmt.Errorf("cameras.count (%d) and env.cameras (%d) differ", c.Cameras.Count, c.Env.Cameras)
	}
	return nil
}

// TeleopConfig converts the teleop section.
func (c *Config) TeleopConfig() (teleop.Config, error) {
	g, err := robot.ParseGripper(c.Teleop.InitGripper)
	if err != nil {
		return teleop.Config{}, err
	}
	tc := teleop.Config{
		Hz: c.Teleop.Hz,
		Calibration: geometry.Calibration{
			HRV:     c.Teleop.HRV,
			HRVStar: c.Teleop.HRVStar,
		},
		Workspace: geometry.Workspace{
			Min: r3v(c.Teleop.WorkspaceMin),
			Max: r3v(c.Teleop.WorkspaceMax),
		},
		InitGripper: g,
		HomeOffset:  r3v(c.Teleop.HomeOffset),
	}
	if err := tc.Validate(); err != nil {
		return teleop.Config{}, err
	}
	return tc, nil
}

// RelayURL is the WebSocket base URL of the topic relay.
func (c *Config) RelayURL() string {
	return fmt.Sprintf("ws://%s:%d", c.Host, c.RelayPort)
}

// RelayHTTPURL is the HTTP base URL of the topic relay.
func (c *Config) RelayHTTPURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.RelayPort)
}

// ControlURL is the robot host's request/reply endpoint.
func (c *Config) ControlURL() string {
	return fmt.Sprintf("ws://%s:%d%s", c.Host, c.ControlPort, c.ControlPath)
}

func vec3(v r3.Vector) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func r3v(v [3]float64) r3.Vector { return r3.Vector{X: v[0], Y: v[1], Z: v[2]} }
