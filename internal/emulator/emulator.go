// Package emulator provides an in-memory device speaking the framed
// binary protocol, for tests that need a whole device conversation
// without hardware: register reads and writes, firmware block
// transfer and sniffer frame notifications, plus scriptable faults
// (dropped responses, corrupt frames, chunk NAKs, mid-transfer
// disconnects).
package emulator

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/kbi-protocol/kbi-go/pkg/cobs"
	"github.com/kbi-protocol/kbi-go/pkg/device"
	"github.com/kbi-protocol/kbi-go/pkg/kbi"
)

// FirmwareOpcode is the block-transfer opcode the device accepts.
const FirmwareOpcode = 0x2F

var _ device.Transport = (*Device)(nil)

// Faults scripts deviations from normal behavior. Counters burn down
// as they trigger; zero means behave normally.
type Faults struct {
	// DropResponses swallows the next n commands without answering.
	DropResponses int

	// CorruptFrames flips a byte inside the next n outgoing frames.
	CorruptFrames int

	// NakChunks answers the next n firmware chunks with a transient
	// error status.
	NakChunks int

	// FirmwareError answers every firmware chunk with the terminal
	// firmware-error status.
	FirmwareError bool

	// DisconnectAfterChunks closes the transport once n chunks have
	// been accepted. Zero disables.
	DisconnectAfterChunks int
}

// Device is the emulated unit. It implements device.Transport: the
// host writes framed commands and reads framed responses and
// notifications.
type Device struct {
	mu        sync.Mutex
	faults    Faults
	registers map[uint8][]byte
	blocks    map[uint16][]byte
	chunksOK  int
	ifaceUp   bool

	scanner *cobs.Scanner
	inbox   chan []byte
	closed  chan struct{}
	once    sync.Once
}

// New returns a device with sensible register defaults.
func New(faults Faults) *Device {
	return &Device{
		faults: faults,
		registers: map[uint8][]byte{
			0x05: {0},                     // status
			0x0A: []byte("KiNOS-1.0\x00"), // swver
			0x0B: []byte("KTWM102\x00"),   // hwver
			0x0C: []byte("EMU0001\x00"),   // snum
			0x12: {11},                    // channel
		},
		blocks:  make(map[uint16][]byte),
		scanner: cobs.NewScanner(),
		inbox:   make(chan []byte, 256),
		closed:  make(chan struct{}),
	}
}

// Read implements device.Transport.
func (d *Device) Read(p []byte) (int, error) {
	select {
	case data := <-d.inbox:
		return copy(p, data), nil
	case <-d.closed:
		return 0, io.EOF
	}
}

// Write implements device.Transport: decode host frames and handle
// each command.
func (d *Device) Write(p []byte) (int, error) {
	select {
	case <-d.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	payloads, _ := d.scanner.Push(p)
	for _, payload := range payloads {
		msg, err := kbi.DecodeMessage(payload)
		if err != nil {
			continue
		}
		d.handle(msg)
	}
	return len(p), nil
}

// Close implements device.Transport.
func (d *Device) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

// handle processes one host command and queues the reply.
func (d *Device) handle(msg *kbi.Response) {
	d.mu.Lock()
	if d.faults.DropResponses > 0 {
		d.faults.DropResponses--
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	base := msg.Code & 0x3F
	op := msg.Code & 0xC0

	if base == FirmwareOpcode && op == kbi.OpWrite {
		d.handleChunk(msg)
		return
	}

	switch op {
	case kbi.OpRead:
		d.mu.Lock()
		value, ok := d.registers[base]
		d.mu.Unlock()
		if !ok {
			d.reply(msg, kbi.StatusBadCommand, nil)
			return
		}
		d.reply(msg, kbi.StatusValue, value)

	case kbi.OpWrite: // also exec
		switch base {
		case 0x08: // interface up
			d.mu.Lock()
			d.ifaceUp = true
			d.mu.Unlock()
			d.reply(msg, kbi.StatusOK, nil)
		case 0x07: // interface down
			d.mu.Lock()
			d.ifaceUp = false
			d.mu.Unlock()
			d.reply(msg, kbi.StatusOK, nil)
		case 0x00, 0x03: // clear, reset
			d.reply(msg, kbi.StatusOK, nil)
		default:
			if len(msg.Payload) == 0 {
				d.reply(msg, kbi.StatusOK, nil)
				return
			}
			d.mu.Lock()
			d.registers[base] = append([]byte(nil), msg.Payload...)
			d.mu.Unlock()
			d.reply(msg, kbi.StatusOK, nil)
		}

	case kbi.OpDelete:
		d.mu.Lock()
		delete(d.registers, base)
		d.mu.Unlock()
		d.reply(msg, kbi.StatusOK, nil)

	default:
		d.reply(msg, kbi.StatusBadCommand, nil)
	}
}

// handleChunk processes one firmware block: big-endian block number
// followed by the data.
func (d *Device) handleChunk(msg *kbi.Response) {
	if len(msg.Payload) < 2 {
		d.reply(msg, kbi.StatusBadParameter, nil)
		return
	}
	num := binary.BigEndian.Uint16(msg.Payload[:2])

	d.mu.Lock()
	if d.faults.FirmwareError {
		d.mu.Unlock()
		d.reply(msg, kbi.StatusFirmwareError, nil)
		return
	}
	if d.faults.NakChunks > 0 {
		d.faults.NakChunks--
		d.mu.Unlock()
		d.reply(msg, kbi.StatusMemoryError, nil)
		return
	}
	d.blocks[num] = append([]byte(nil), msg.Payload[2:]...)
	d.chunksOK++
	disconnect := d.faults.DisconnectAfterChunks > 0 && d.chunksOK >= d.faults.DisconnectAfterChunks
	d.mu.Unlock()

	if disconnect {
		d.Close()
		return
	}
	d.reply(msg, kbi.StatusValue, msg.Payload[:2])
}

// reply queues a response frame correlated to the command.
func (d *Device) reply(msg *kbi.Response, status kbi.Status, payload []byte) {
	class := uint8(kbi.ClassResponse)
	if msg.Class() == kbi.ClassPrivileged {
		class = kbi.ClassPrivilegedResponse
	}
	resp := kbi.Command{
		Class:   class | uint8(status),
		Code:    msg.Code,
		Token:   msg.Token,
		Payload: payload,
	}
	d.send(resp)
}

// EmitFrame injects a captured radio frame: the device sends a
// notification whose payload is a sniffer stream chunk with a 32-bit
// tick timestamp.
func (d *Device) EmitFrame(ticks uint32, frame []byte) {
	chunk := make([]byte, 10+len(frame))
	binary.BigEndian.PutUint32(chunk[0:4], 0xC11FFE72)
	binary.BigEndian.PutUint16(chunk[4:6], uint16(len(frame)))
	binary.BigEndian.PutUint32(chunk[6:10], ticks)
	copy(chunk[10:], frame)

	d.send(kbi.Command{
		Class:   kbi.ClassNotification,
		Token:   kbi.NotificationToken,
		Payload: chunk,
	})
}

// Notify injects an arbitrary notification.
func (d *Device) Notify(code uint8, nibble uint8, payload []byte) {
	d.send(kbi.Command{
		Class:   kbi.ClassNotification | nibble,
		Code:    code,
		Token:   kbi.NotificationToken,
		Payload: payload,
	})
}

func (d *Device) send(cmd kbi.Command) {
	wire, err := cmd.Encode()
	if err != nil {
		return
	}
	frame := cobs.Encode(wire)

	d.mu.Lock()
	if d.faults.CorruptFrames > 0 {
		d.faults.CorruptFrames--
		// Flip a payload byte inside the frame body.
		if len(frame) > 4 {
			frame = append([]byte(nil), frame...)
			frame[2] ^= 0xFF
		}
	}
	d.mu.Unlock()

	select {
	case d.inbox <- frame:
	case <-d.closed:
	}
}

// Register returns the current value of a register.
func (d *Device) Register(base uint8) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.registers[base]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Firmware reassembles the received blocks in order.
func (d *Device) Firmware() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []byte
	for i := uint16(0); ; i++ {
		block, ok := d.blocks[i]
		if !ok {
			break
		}
		out = append(out, block...)
	}
	return out
}

// InterfaceUp reports whether the capture interface is up.
func (d *Device) InterfaceUp() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ifaceUp
}
