package protocol

import (
	"encoding/base64"
	"fmt"
	"time"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(camera, width, height int, jpegData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Camera:    camera,
		Width:     width,
		Height:    height,
		Format:    "jpeg",
		Data:      base64.StdEncoding.EncodeToString(jpegData),
		FrameID:   frameID,
		Timestamp: UnixSeconds(time.Now()),
	})
}

// NewControllerStateMessage creates a controller state message
func NewControllerStateMessage(data ControllerStateData) (*Message, error) {
	return NewMessage(TypeControllerState, data)
}

// NewRobotStateMessage creates a robot state message
func NewRobotStateMessage(data RobotStateData) (*Message, error) {
	return NewMessage(TypeRobotState, data)
}

// NewSensorStateMessage creates a tactile reading message
func NewSensorStateMessage(data SensorStateData) (*Message, error) {
	return NewMessage(TypeSensorState, data)
}

// NewActionMessage creates an action request
func NewActionMessage(data ActionData) (*Message, error) {
	return NewMessage(TypeAction, data)
}

// NewGetStateMessage creates a state query
func NewGetStateMessage() (*Message, error) {
	return NewMessage(TypeGetState, nil)
}

// NewGetSensorStateMessage creates a tactile query
func NewGetSensorStateMessage() (*Message, error) {
	return NewMessage(TypeGetSensorState, nil)
}

// NewAckMessage creates an acknowledgment reply
func NewAckMessage(msg string) (*Message, error) {
	return NewMessage(TypeAck, AckData{OK: true, Message: msg})
}

// NewErrorMessage creates an error reply
func NewErrorMessage(msg string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: msg})
}

// UnixSeconds converts t to fractional Unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromUnixSeconds is the inverse of UnixSeconds.
func FromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9))
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// parseRequired unmarshals the payload of a message type that must carry one.
func (m *Message) parseRequired(v interface{}) error {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return fmt.Errorf("%w: %s", ErrMissingData, m.Type)
	}
	return m.ParseData(v)
}

// expect returns an error when the message is not of type want.
func (m *Message) expect(want MessageType) error {
	if m.Type == TypeError {
		var e ErrorData
		if err := m.ParseData(&e); err != nil {
			return fmt.Errorf("remote error (unreadable): %w", err)
		}
		return fmt.Errorf("remote error: %s", e.Message)
	}
	if m.Type != want {
		return fmt.Errorf("unexpected message type %q, want %q", m.Type, want)
	}
	return nil
}

// GetControllerState extracts controller state from a message
func (m *Message) GetControllerState() (*ControllerStateData, error) {
	if err := m.expect(TypeControllerState); err != nil {
		return nil, err
	}
	var data ControllerStateData
	if err := m.parseRequired(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRobotState extracts robot state from a message
func (m *Message) GetRobotState() (*RobotStateData, error) {
	if err := m.expect(TypeRobotState); err != nil {
		return nil, err
	}
	var data RobotStateData
	if err := m.parseRequired(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	if err := m.expect(TypeFrame); err != nil {
		return nil, err
	}
	var data FrameData
	if err := m.parseRequired(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetSensorState extracts tactile values from a message
func (m *Message) GetSensorState() (SensorStateData, error) {
	if err := m.expect(TypeSensorState); err != nil {
		return nil, err
	}
	var data SensorStateData
	if err := m.parseRequired(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// GetAction extracts an action request from a message
func (m *Message) GetAction() (*ActionData, error) {
	if err := m.expect(TypeAction); err != nil {
		return nil, err
	}
	var data ActionData
	if err := m.parseRequired(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAck extracts an acknowledgment from a message
func (m *Message) GetAck() (*AckData, error) {
	if err := m.expect(TypeAck); err != nil {
		return nil, err
	}
	var data AckData
	if err := m.parseRequired(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
