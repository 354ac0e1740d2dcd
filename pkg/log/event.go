package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// DeviceID identifies the device the event belongs to (serial
	// number or port name).
	DeviceID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"6,keyasint,omitempty"` // Framing layer
	Message     *MessageEvent     `cbor:"7,keyasint,omitempty"` // KBI layer (decoded)
	StateChange *StateChangeEvent `cbor:"8,keyasint,omitempty"` // Session state
	Error       *ErrorEventData   `cbor:"9,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates data received from the device.
	DirectionIn Direction = 0
	// DirectionOut indicates data sent to the device.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerFraming is the byte-stuffing layer (raw frames).
	LayerFraming Layer = 0
	// LayerKBI is the binary command/response layer.
	LayerKBI Layer = 1
	// LayerKSH is the text shell layer.
	LayerKSH Layer = 2
	// LayerFlash is the firmware update layer.
	LayerFlash Layer = 3
	// LayerCapture is the sniffer capture layer.
	LayerCapture Layer = 4
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerFraming:
		return "FRAMING"
	case LayerKBI:
		return "KBI"
	case LayerKSH:
		return "KSH"
	case LayerFlash:
		return "FLASH"
	case LayerCapture:
		return "CAPTURE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol message (command/response/notification).
	CategoryMessage Category = 0
	// CategoryState indicates a session state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the framing layer.
type FrameEvent struct {
	// Size is the full frame size in bytes (delimiters included).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded KBI message.
type MessageEvent struct {
	// Type distinguishes command/response/notification.
	Type MessageType `cbor:"1,keyasint"`

	// Token correlates command/response pairs (0 for notifications).
	Token uint8 `cbor:"2,keyasint"`

	// Code is the opcode byte (operation bits included).
	Code uint8 `cbor:"3,keyasint"`

	// For responses: the status nibble of the type byte.
	Status *uint8 `cbor:"4,keyasint,omitempty"`

	// PayloadSize is the message payload length in bytes.
	PayloadSize int `cbor:"5,keyasint,omitempty"`
}

// MessageType distinguishes command/response/notification.
type MessageType uint8

const (
	// MessageTypeCommand indicates an outgoing command.
	MessageTypeCommand MessageType = 0
	// MessageTypeResponse indicates a correlated response.
	MessageTypeResponse MessageType = 1
	// MessageTypeNotification indicates an unsolicited notification.
	MessageTypeNotification MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeCommand:
		return "COMMAND"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeNotification:
		return "NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures session lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntitySession indicates a KBI session state change.
	StateEntitySession StateEntity = 0
	// StateEntityFlash indicates a flash session state change.
	StateEntityFlash StateEntity = 1
	// StateEntityCapture indicates a capture session state change.
	StateEntityCapture StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntityFlash:
		return "FLASH"
	case StateEntityCapture:
		return "CAPTURE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
