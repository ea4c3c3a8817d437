// Package protocol defines the WebSocket message types exchanged between the
// teleoperator, the topic relay and the robot host.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingData is returned by the typed getters when a message that must
// carry a payload has none.
var ErrMissingData = errors.New("protocol: message has no data")

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Published on relay topics
	TypeControllerState MessageType = "controller_state" // VR controller pose + buttons
	TypeRobotState      MessageType = "robot_state"      // End-effector state
	TypeFrame           MessageType = "frame"            // Camera frame
	TypeSensorState     MessageType = "sensor_state"     // Raw tactile values

	// Requests to the robot host
	TypeAction         MessageType = "action"           // Target pose (or reset)
	TypeGetState       MessageType = "get_state"        // Query state, no motion
	TypeGetSensorState MessageType = "get_sensor_state" // Query raw tactile values

	// Replies from the robot host
	TypeAck   MessageType = "ack"
	TypeError MessageType = "error"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct. A message
// without data leaves v unchanged; the typed getters reject that instead.
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Topic payloads
// =============================================================================

// ControllerStateData is one poll of the right-hand VR controller.
type ControllerStateData struct {
	RightAffine       [16]float64 `json:"right_affine"` // row-major 4x4
	RightA            bool        `json:"right_a"`      // engage
	RightB            bool        `json:"right_b"`      // disengage
	RightIndexTrigger float64     `json:"right_index_trigger"`
	RightHandTrigger  float64     `json:"right_hand_trigger"`
	CreatedAt         float64     `json:"create_timestamp"` // Unix seconds
}

// RobotStateData is an end-effector state sample.
type RobotStateData struct {
	Pos       [3]float64 `json:"pos"`
	Quat      [4]float64 `json:"quat"` // x, y, z, w
	Gripper   float64    `json:"gripper"`
	Timestamp float64    `json:"timestamp"` // Unix seconds
}

// FrameData contains a camera frame
type FrameData struct {
	Camera    int     `json:"camera"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Format    string  `json:"format"` // "jpeg"
	Data      string  `json:"data"`   // base64 encoded
	FrameID   uint64  `json:"frame_id,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// SensorValues holds one tactile sensor bank's raw values.
type SensorValues struct {
	Values    []float64 `json:"sensor_values"`
	Timestamp float64   `json:"timestamp,omitempty"`
}

// SensorStateData maps a sensor type (e.g. "reskin") to its values.
type SensorStateData map[string]SensorValues

// =============================================================================
// Request payloads
// =============================================================================

// ActionData is a target pose for the arm controller.
type ActionData struct {
	Pos       [3]float64 `json:"pos"`
	Quat      [4]float64 `json:"quat"` // x, y, z, w
	Gripper   float64    `json:"gripper"`
	Reset     bool       `json:"reset"`
	Timestamp float64    `json:"timestamp"`
}

// =============================================================================
// Reply payloads
// =============================================================================

// AckData acknowledges a request that carries no state.
type AckData struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// ErrorData reports a failed request.
type ErrorData struct {
	Message string `json:"message"`
}
