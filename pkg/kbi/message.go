package kbi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed message header size in bytes.
const HeaderSize = 6

// MaxPayloadSize is the largest payload the two-byte length field can
// describe.
const MaxPayloadSize = 0xFFFF

// Message classes (high nibble of the type byte).
const (
	// ClassCommand is a regular command.
	ClassCommand = 0x40
	// ClassPrivileged is a privileged (test/production) command.
	ClassPrivileged = 0x50
	// ClassResponse answers a regular command.
	ClassResponse = 0x80
	// ClassPrivilegedResponse answers a privileged command.
	ClassPrivilegedResponse = 0x90
	// ClassNotification is an unsolicited message.
	ClassNotification = 0xC0
)

// Operation bits folded into the code byte.
const (
	// OpWrite sets a configuration value (also used for execute).
	OpWrite = 0x00
	// OpExec runs an action command.
	OpExec = 0x00
	// OpRead queries a value.
	OpRead = 0x40
	// OpDelete clears a value or disables a setting.
	OpDelete = 0x80
)

// NotificationToken is the correlation token carried by unsolicited
// messages.
const NotificationToken uint8 = 0

// Status is the response status nibble.
type Status uint8

// Response status codes.
const (
	StatusOK            Status = 0x00
	StatusValue         Status = 0x01
	StatusBadParameter  Status = 0x02
	StatusBadCommand    Status = 0x03
	StatusNotAllowed    Status = 0x04
	StatusMemoryError   Status = 0x05
	StatusConfigError   Status = 0x06
	StatusFirmwareError Status = 0x07
)

// IsSuccess reports whether the status carries a successful outcome
// (with or without a value payload).
func (s Status) IsSuccess() bool {
	return s == StatusOK || s == StatusValue
}

// String returns the human-readable status text shown by the shell.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusValue:
		return "value"
	case StatusBadParameter:
		return "Bad parameter"
	case StatusBadCommand:
		return "Bad command"
	case StatusNotAllowed:
		return "Command not allowed"
	case StatusMemoryError:
		return "Memory allocation error"
	case StatusConfigError:
		return "Configuration conflict error"
	case StatusFirmwareError:
		return "Firmware update error"
	default:
		return "Unknown error"
	}
}

// Message decoding errors.
var (
	// ErrInvalidMessage indicates a message that violates the wire
	// format.
	ErrInvalidMessage = errors.New("invalid KBI message")
)

// Command is a request to a device. Token is assigned by the Session
// when the command is sent.
type Command struct {
	// Class is ClassCommand or ClassPrivileged.
	Class uint8

	// Code is the opcode with operation bits folded in.
	Code uint8

	// Token is the correlation token (session-assigned).
	Token uint8

	// Payload holds the encoded parameters.
	Payload []byte
}

// Encode serializes the command into an unframed wire message.
func (c *Command) Encode() ([]byte, error) {
	if len(c.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds %d", ErrInvalidMessage, len(c.Payload), MaxPayloadSize)
	}

	msg := make([]byte, HeaderSize+len(c.Payload))
	binary.BigEndian.PutUint16(msg[0:2], uint16(len(c.Payload)))
	msg[2] = c.Class
	msg[3] = c.Code
	msg[4] = c.Token
	copy(msg[HeaderSize:], c.Payload)
	msg[5] = checksum(msg)
	return msg, nil
}

// Response is a decoded device message: either the answer to a
// command or an unsolicited notification.
type Response struct {
	// Type carries the message class and, for responses, the status
	// nibble.
	Type uint8

	// Code is the opcode the message refers to.
	Code uint8

	// Token matches the originating command, or NotificationToken.
	Token uint8

	// Payload holds the encoded return values.
	Payload []byte
}

// Class returns the message class bits of the type byte.
func (r *Response) Class() uint8 {
	return r.Type & 0xF0
}

// Status returns the status nibble. Meaningful for responses only.
func (r *Response) Status() Status {
	return Status(r.Type & 0x0F)
}

// NotificationCode returns the notification code nibble. Meaningful
// for notifications only.
func (r *Response) NotificationCode() uint8 {
	return r.Type & 0x0F
}

// IsNotification reports whether the message is unsolicited.
func (r *Response) IsNotification() bool {
	return r.Type&ClassNotification == ClassNotification
}

// DecodeMessage parses and validates an unframed wire message.
func DecodeMessage(data []byte) (*Response, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrInvalidMessage, len(data), HeaderSize)
	}

	declared := int(binary.BigEndian.Uint16(data[0:2]))
	if declared != len(data)-HeaderSize {
		return nil, fmt.Errorf("%w: length field %d, payload %d", ErrInvalidMessage, declared, len(data)-HeaderSize)
	}

	if got := checksum(data); got != data[5] {
		return nil, fmt.Errorf("%w: checksum 0x%02x, computed 0x%02x", ErrInvalidMessage, data[5], got)
	}

	resp := &Response{
		Type:  data[2],
		Code:  data[3],
		Token: data[4],
	}
	if declared > 0 {
		resp.Payload = append([]byte(nil), data[HeaderSize:]...)
	}
	return resp, nil
}

// checksum XORs every message byte except the checksum position.
func checksum(msg []byte) byte {
	var sum byte
	for i, b := range msg {
		if i == 5 {
			continue
		}
		sum ^= b
	}
	return sum
}
