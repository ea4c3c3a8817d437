package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-teach/pkg/robot"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "teach.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	tc, err := cfg.TeleopConfig()
	if err != nil {
		t.Fatal(err)
	}
	if tc.Hz != 20 || tc.InitGripper != robot.GripperOpen {
		t.Errorf("teleop = %+v", tc)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	t.Setenv(EnvHost, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != DefaultHost {
		t.Errorf("host = %q", cfg.Host)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv(EnvHost, "")
	path := writeFile(t, `
host: robot.local
reply_timeout: 2s
teleop:
  hz: 30
  init_gripper: closed
  home_offset: [0.1, 0, 0]
env:
  use_robot: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "robot.local" {
		t.Errorf("host = %q", cfg.Host)
	}
	if cfg.ReplyTimeout != 2*time.Second {
		t.Errorf("reply timeout = %v", cfg.ReplyTimeout)
	}
	if cfg.Env.UseRobot {
		t.Error("use_robot should be false")
	}
	// Unset keys keep their defaults.
	if cfg.Env.Width != 640 || cfg.RelayPort != DefaultRelayPort {
		t.Errorf("defaults lost: width=%d relay=%d", cfg.Env.Width, cfg.RelayPort)
	}

	tc, err := cfg.TeleopConfig()
	if err != nil {
		t.Fatal(err)
	}
	if tc.Hz != 30 || tc.InitGripper != robot.GripperClosed || tc.HomeOffset.X != 0.1 {
		t.Errorf("teleop = %+v", tc)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv(EnvHost, "10.0.0.7")
	path := writeFile(t, "host: robot.local\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "10.0.0.7" {
		t.Errorf("host = %q, want env override", cfg.Host)
	}
}

func TestLoadRejects(t *testing.T) {
	t.Setenv(EnvHost, "")
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "hosst: x\n"},
		{"bad gripper", "teleop:\n  init_gripper: half\n"},
		{"zero hz", "teleop:\n  hz: 0\n"},
		{"camera mismatch", "cameras:\n  count: 2\n"},
		{"bad port", "relay_port: -1\n"},
		{"inverted workspace", "teleop:\n  workspace_min: [1, 1, 1]\n  workspace_max: [0, 0, 0]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error")
	}
}

func TestURLs(t *testing.T) {
	cfg := Default()
	cfg.Host = "robot"
	if got := cfg.RelayURL(); got != "ws://robot:8889" {
		t.Errorf("RelayURL = %q", got)
	}
	if got := cfg.RelayHTTPURL(); got != "http://robot:8889" {
		t.Errorf("RelayHTTPURL = %q", got)
	}
	if got := cfg.ControlURL(); got != "ws://robot:8901/ws/control" {
		t.Errorf("ControlURL = %q", got)
	}
}
