package flash

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/kbi-protocol/kbi-go/pkg/kbi"
)

// ChunkSender is the transport-specific update primitive. The state
// machine is the same for every sender; only how a chunk reaches the
// device differs.
type ChunkSender interface {
	// Begin readies the device for the transfer (erase/begin).
	Begin(ctx context.Context) error

	// SendChunk delivers one block and waits for its acknowledgment.
	SendChunk(ctx context.Context, index uint16, data []byte) error

	// Finalize ends the transfer and asks the device to verify the
	// image. A device-reported mismatch returns a FlashError with
	// ReasonVerificationError.
	Finalize(ctx context.Context) error
}

// FirmwareOpcode is the block-transfer opcode of the binary protocol.
const FirmwareOpcode = 0x2F

// ErrChunkRejected indicates the device answered a chunk with an
// unexpected status or block number.
var ErrChunkRejected = errors.New("chunk rejected")

// KBISender transfers firmware over an open binary-protocol session.
// Each chunk travels as a write command whose payload is the
// big-endian block number followed by the block data; the device
// echoes the block number back on success.
type KBISender struct {
	session *kbi.Session
}

// NewKBISender returns a sender flashing through the given session.
func NewKBISender(session *kbi.Session) *KBISender {
	return &KBISender{session: session}
}

// Begin implements ChunkSender. The block protocol has no separate
// erase command; the device erases on the first block, so readiness
// is probed with a status read.
func (s *KBISender) Begin(ctx context.Context) error {
	resp, err := s.session.Send(ctx, kbi.Command{
		Class: kbi.ClassCommand,
		Code:  0x05 | kbi.OpRead,
	})
	if err != nil {
		return failure(ReasonDeviceRejected, err)
	}
	if !resp.Status().IsSuccess() {
		return failure(ReasonDeviceRejected, fmt.Errorf("status query: %s", resp.Status()))
	}
	return nil
}

// SendChunk implements ChunkSender.
func (s *KBISender) SendChunk(ctx context.Context, index uint16, data []byte) error {
	payload := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(payload, index)
	copy(payload[2:], data)

	resp, err := s.session.Send(ctx, kbi.Command{
		Class:   kbi.ClassCommand,
		Code:    FirmwareOpcode | kbi.OpWrite,
		Payload: payload,
	})
	if err != nil {
		return err
	}

	if resp.Status() == kbi.StatusFirmwareError {
		// Terminal device-side failure, not worth retrying.
		return failure(ReasonDeviceRejected, errors.New(resp.Status().String()))
	}
	if !resp.Status().IsSuccess() || resp.Code != FirmwareOpcode|kbi.OpWrite {
		return fmt.Errorf("%w: status %s", ErrChunkRejected, resp.Status())
	}
	if len(resp.Payload) < 2 || binary.BigEndian.Uint16(resp.Payload) != index {
		return fmt.Errorf("%w: block number mismatch", ErrChunkRejected)
	}
	return nil
}

// Finalize implements ChunkSender: reset the device so it boots the
// new image.
func (s *KBISender) Finalize(ctx context.Context) error {
	resp, err := s.session.Send(ctx, kbi.Command{
		Class: kbi.ClassCommand,
		Code:  0x03 | kbi.OpExec,
	})
	if err != nil {
		return failure(ReasonVerificationError, err)
	}
	if resp.Status() == kbi.StatusFirmwareError {
		return failure(ReasonVerificationError, errors.New(resp.Status().String()))
	}
	if !resp.Status().IsSuccess() {
		return failure(ReasonVerificationError, fmt.Errorf("reset: %s", resp.Status()))
	}
	return nil
}

// Compile-time interface satisfaction check.
var _ ChunkSender = (*KBISender)(nil)

// DFU states, per the USB DFU 1.1 specification.
const (
	DFUStateAppIdle           = 0x00
	DFUStateAppDetach         = 0x01
	DFUStateIdle              = 0x02
	DFUStateDownloadSync      = 0x03
	DFUStateDownloadBusy      = 0x04
	DFUStateDownloadIdle      = 0x05
	DFUStateManifestSync      = 0x06
	DFUStateManifest          = 0x07
	DFUStateManifestWaitReset = 0x08
	DFUStateUploadIdle        = 0x09
	DFUStateError             = 0x0A
)

// DFUStatus is one device status poll result.
type DFUStatus struct {
	// State is the device's DFU state.
	State uint8

	// Status is the device's DFU status code (0 = OK).
	Status uint8

	// PollTimeout is how long the host should wait before the next
	// status request.
	PollTimeout time.Duration
}

// ControlPort is the USB DFU control-transfer surface. It is
// implemented outside the core, against the platform USB stack.
type ControlPort interface {
	// Download sends one DFU_DNLOAD block. An empty block ends the
	// transfer.
	Download(ctx context.Context, block uint16, data []byte) error

	// GetStatus polls DFU_GETSTATUS.
	GetStatus(ctx context.Context) (DFUStatus, error)

	// ClearStatus issues DFU_CLRSTATUS.
	ClearStatus(ctx context.Context) error
}

// DFUSender transfers firmware to a device in DFU boot mode through
// download requests and status polling.
type DFUSender struct {
	port ControlPort
}

// NewDFUSender returns a sender flashing through the given port.
func NewDFUSender(port ControlPort) *DFUSender {
	return &DFUSender{port: port}
}

// Begin implements ChunkSender: clear any left-over error state.
func (s *DFUSender) Begin(ctx context.Context) error {
	status, err := s.port.GetStatus(ctx)
	if err != nil {
		return failure(ReasonDeviceRejected, err)
	}
	if status.State == DFUStateError {
		if err := s.port.ClearStatus(ctx); err != nil {
			return failure(ReasonDeviceRejected, err)
		}
	}
	return nil
}

// SendChunk implements ChunkSender: download the block and poll until
// the device leaves the busy state.
func (s *DFUSender) SendChunk(ctx context.Context, index uint16, data []byte) error {
	if err := s.port.Download(ctx, index, data); err != nil {
		return err
	}
	status, err := s.waitWhile(ctx, DFUStateDownloadBusy)
	if err != nil {
		return err
	}
	if status.State != DFUStateDownloadIdle {
		return fmt.Errorf("%w: DFU state 0x%02x", ErrChunkRejected, status.State)
	}
	return nil
}

// Finalize implements ChunkSender: an empty download manifests the
// image; the device then verifies it.
func (s *DFUSender) Finalize(ctx context.Context) error {
	if err := s.port.Download(ctx, 0, nil); err != nil {
		return failure(ReasonVerificationError, err)
	}
	status, err := s.port.GetStatus(ctx)
	if err != nil {
		return failure(ReasonVerificationError, err)
	}
	if status.State != DFUStateManifestSync {
		return failure(ReasonVerificationError,
			fmt.Errorf("DFU state 0x%02x after manifest", status.State))
	}
	return nil
}

// waitWhile polls device status until it leaves the given state.
func (s *DFUSender) waitWhile(ctx context.Context, state uint8) (DFUStatus, error) {
	status, err := s.port.GetStatus(ctx)
	if err != nil {
		return DFUStatus{}, err
	}
	for status.State == state {
		select {
		case <-ctx.Done():
			return DFUStatus{}, ctx.Err()
		case <-time.After(status.PollTimeout):
		}
		status, err = s.port.GetStatus(ctx)
		if err != nil {
			return DFUStatus{}, err
		}
	}
	return status, nil
}

// Compile-time interface satisfaction check.
var _ ChunkSender = (*DFUSender)(nil)
