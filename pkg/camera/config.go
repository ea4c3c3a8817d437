// Package camera receives camera frames published on the relay and exposes
// them as observe.CameraSource values.
package camera

import (
	"fmt"
	"strings"
)

// Config describes the camera streams an env subscribes to.
type Config struct {
	// Count is the number of cameras. Camera i publishes on Topic(i).
	Count int `yaml:"count"`

	// TopicPrefix names the relay topics, e.g. "camera" gives camera0, camera1...
	TopicPrefix string `yaml:"topic_prefix"`

	// Format is the only accepted frame encoding.
	Format string `yaml:"format"`
}

// DefaultConfig returns four JPEG streams on camera0..camera3.
func DefaultConfig() Config {
	return Config{
		Count:       4,
		TopicPrefix: "camera",
		Format:      "jpeg",
	}
}

// Topic returns the relay topic of camera i.
func (c *Config) Topic(i int) string {
	return fmt.Sprintf("%s%d", c.TopicPrefix, i)
}

// Validate checks the config and returns a list of problems, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string
	if c.Count < 1 {
		errors = append(errors, "count must be at least 1")
	}
	if strings.TrimSpace(c.TopicPrefix) == "" {
		errors = append(errors, "topic_prefix must not be empty")
	}
	if c.Format != "jpeg" {
		errors = append(errors, "format must be jpeg")
	}
	return errors
}
