package flash

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbi-protocol/kbi-go/pkg/firmware"
	"github.com/kbi-protocol/kbi-go/pkg/log"
)

// Target names one device to flash and how to reach it.
type Target struct {
	// DeviceID keys the result map.
	DeviceID string

	// VendorID and ProductID are the device's reported identity,
	// checked against the image suffix. Zero skips the check (the
	// attachment could not report one).
	VendorID  uint16
	ProductID uint16

	// Sender is the transfer primitive for this device's attachment.
	Sender ChunkSender
}

// Session is one device's flash state machine. Create with
// NewSession, drive with Run; State and Err are safe to read from
// other goroutines while Run is in flight.
type Session struct {
	id     uuid.UUID
	target Target
	cfg    Config
	logger log.Logger

	// Progress, when set, is called after every acknowledged chunk.
	Progress func(sent, total int)

	mu    sync.Mutex
	state State
	err   error
}

// NewSession builds an idle session for one target.
func NewSession(target Target, cfg Config, logger log.Logger) *Session {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.ChunkRetries <= 0 {
		cfg.ChunkRetries = DefaultConfig().ChunkRetries
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Session{
		id:     uuid.New(),
		target: target,
		cfg:    cfg,
		logger: logger,
		state:  StateIdle,
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error of a failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Run drives the session to a terminal state. The returned error is
// always a *FlashError on failure; sibling sessions on other devices
// are unaffected either way.
func (s *Session) Run(ctx context.Context, img *firmware.Image) error {
	s.setState(StatePreparing, "")

	// Image validation happens before anything touches the wire.
	if err := img.Verify(); err != nil {
		return s.fail(failure(ReasonIncompatibleImage, err))
	}
	if s.target.VendorID != 0 || s.target.ProductID != 0 {
		if !img.CompatibleWith(s.target.VendorID, s.target.ProductID) {
			return s.fail(failure(ReasonIncompatibleImage,
				fmt.Errorf("image targets %04x/%04x, device is %04x/%04x",
					img.VendorID, img.ProductID, s.target.VendorID, s.target.ProductID)))
		}
	}

	if err := s.target.Sender.Begin(ctx); err != nil {
		return s.fail(asFlashError(err, ReasonDeviceRejected))
	}

	s.setState(StateTransferring, "")
	chunks := img.Chunks(s.cfg.ChunkSize)
	for i, chunk := range chunks {
		if err := s.sendChunk(ctx, uint16(i), chunk); err != nil {
			return s.fail(asFlashError(err, ReasonTransferError))
		}
		if s.Progress != nil {
			s.Progress(i+1, len(chunks))
		}
	}

	s.setState(StateVerifying, "")
	if err := s.target.Sender.Finalize(ctx); err != nil {
		return s.fail(asFlashError(err, ReasonVerificationError))
	}

	s.setState(StateComplete, "")
	return nil
}

// sendChunk retries one chunk within the configured budget. A
// FlashError from the sender is terminal and skips the remaining
// retries.
func (s *Session) sendChunk(ctx context.Context, index uint16, chunk []byte) error {
	var lastErr error
	for attempt := 0; attempt < s.cfg.ChunkRetries; attempt++ {
		if attempt > 0 && s.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RetryDelay):
			}
		}

		err := s.target.Sender.SendChunk(ctx, index, chunk)
		if err == nil {
			return nil
		}
		var ferr *FlashError
		if errors.As(err, &ferr) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("chunk %d not delivered after %d attempts: %w",
		index, s.cfg.ChunkRetries, lastErr)
}

// fail moves the session to Failed and records the reason.
func (s *Session) fail(ferr *FlashError) error {
	s.mu.Lock()
	s.err = ferr
	s.mu.Unlock()
	s.setState(StateFailed, ferr.Reason.String())
	return ferr
}

func (s *Session) setState(next State, reason string) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		DeviceID:  s.target.DeviceID,
		Direction: log.DirectionOut,
		Layer:     log.LayerFlash,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityFlash,
			OldState: prev.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
}

// asFlashError passes sender-classified failures through and wraps
// everything else with the stage's default reason.
func asFlashError(err error, fallback FailureReason) *FlashError {
	var ferr *FlashError
	if errors.As(err, &ferr) {
		return ferr
	}
	return failure(fallback, err)
}
