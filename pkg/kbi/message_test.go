package kbi

import (
	"bytes"
	"errors"
	"testing"
)

func TestCommandEncode(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{
			name: "exec no payload",
			cmd:  Command{Class: ClassCommand, Code: 0x20 | OpExec, Token: 0x01},
			want: []byte{0x00, 0x00, 0x40, 0x20, 0x01, 0x61},
		},
		{
			name: "read no payload",
			cmd:  Command{Class: ClassCommand, Code: 0x10 | OpRead, Token: 0x07},
			want: []byte{0x00, 0x00, 0x40, 0x50, 0x07, 0x17},
		},
		{
			name: "write with payload",
			cmd:  Command{Class: ClassCommand, Code: 0x02, Token: 0x03, Payload: []byte{0x0B}},
			want: []byte{0x00, 0x01, 0x40, 0x02, 0x03, 0x4B, 0x0B},
		},
		{
			name: "privileged",
			cmd:  Command{Class: ClassPrivileged, Code: 0x01, Token: 0xFF},
			want: []byte{0x00, 0x00, 0x50, 0x01, 0xFF, 0xAE},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestCommandEncodeTooLarge(t *testing.T) {
	cmd := Command{Class: ClassCommand, Code: 0x01, Payload: make([]byte, MaxPayloadSize+1)}
	if _, err := cmd.Encode(); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("Encode oversize payload: got %v, want ErrInvalidMessage", err)
	}
}

func TestDecodeMessageRoundTrip(t *testing.T) {
	cmd := Command{Class: ClassCommand, Code: 0x31, Token: 0x2A, Payload: []byte{0xDE, 0xAD, 0xBE, 0xEF}}
	wire, err := cmd.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeMessage(wire)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got.Type != cmd.Class || got.Code != cmd.Code || got.Token != cmd.Token {
		t.Errorf("header = %02x/%02x/%02x, want %02x/%02x/%02x",
			got.Type, got.Code, got.Token, cmd.Class, cmd.Code, cmd.Token)
	}
	if !bytes.Equal(got.Payload, cmd.Payload) {
		t.Errorf("payload = % X, want % X", got.Payload, cmd.Payload)
	}
}

func TestDecodeMessageErrors(t *testing.T) {
	valid := []byte{0x00, 0x01, 0x80, 0x20, 0x05, 0xA4, 0x00}
	if _, err := DecodeMessage(valid); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte{0x00, 0x00, 0x80}},
		{"length overstates payload", []byte{0x00, 0x05, 0x80, 0x20, 0x05, 0xA0, 0x00}},
		{"length understates payload", []byte{0x00, 0x00, 0x80, 0x20, 0x05, 0xA5, 0x00}},
		{"bad checksum", []byte{0x00, 0x01, 0x80, 0x20, 0x05, 0xFF, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeMessage(tt.data); !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("DecodeMessage(% X): got %v, want ErrInvalidMessage", tt.data, err)
			}
		})
	}
}

func TestResponseAccessors(t *testing.T) {
	resp := &Response{Type: ClassResponse | uint8(StatusBadParameter), Code: 0x11, Token: 0x09}
	if resp.Class() != ClassResponse {
		t.Errorf("Class = %02x, want %02x", resp.Class(), ClassResponse)
	}
	if resp.Status() != StatusBadParameter {
		t.Errorf("Status = %v, want %v", resp.Status(), StatusBadParameter)
	}
	if resp.IsNotification() {
		t.Error("response classified as notification")
	}

	notif := &Response{Type: ClassNotification | 0x03, Code: 0x60, Token: NotificationToken}
	if !notif.IsNotification() {
		t.Error("notification not classified as such")
	}
	if notif.NotificationCode() != 0x03 {
		t.Errorf("NotificationCode = %d, want 3", notif.NotificationCode())
	}
}

func TestStatusStrings(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusOK, "ok"},
		{StatusBadParameter, "Bad parameter"},
		{StatusBadCommand, "Bad command"},
		{StatusNotAllowed, "Command not allowed"},
		{StatusMemoryError, "Memory allocation error"},
		{StatusConfigError, "Configuration conflict error"},
		{StatusFirmwareError, "Firmware update error"},
		{Status(0x0E), "Unknown error"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%#02x).String() = %q, want %q", uint8(tt.status), got, tt.want)
		}
	}
	if !StatusOK.IsSuccess() || !StatusValue.IsSuccess() {
		t.Error("OK/Value not reported as success")
	}
	if StatusBadCommand.IsSuccess() {
		t.Error("BadCommand reported as success")
	}
}
