package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbi-protocol/kbi-go/pkg/kbi"
	"github.com/kbi-protocol/kbi-go/pkg/log"
)

// Channel bounds of the 802.15.4 channel page used by the radio.
const (
	MinChannel = 11
	MaxChannel = 26
)

// Capture setup opcodes of the binary protocol.
const (
	channelOpcode     = 0x12
	interfaceUpCode   = 0x08
	interfaceDownCode = 0x07
)

// Session errors.
var (
	// ErrInvalidChannel indicates a channel outside 11..26. Raised
	// locally; nothing is sent to the device.
	ErrInvalidChannel = errors.New("channel out of range 11-26")

	// ErrDeviceRefused indicates the device rejected a setup command.
	ErrDeviceRefused = errors.New("device refused capture setup")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("capture already started")
)

// ValidChannel reports whether ch is a usable radio channel.
func ValidChannel(ch int) bool {
	return ch >= MinChannel && ch <= MaxChannel
}

// Config holds capture tunables.
type Config struct {
	// Channel is the radio channel to capture on (11..26).
	Channel int
}

// DefaultConfig returns the standard capture configuration.
func DefaultConfig() Config {
	return Config{Channel: MinChannel}
}

// Session is one live capture: channel setup and interface-up over
// the protocol session, then a notification drain into the pcap
// writer until Stop.
type Session struct {
	id     uuid.UUID
	sess   *kbi.Session
	writer *Writer
	cfg    Config
	logger log.Logger

	mu      sync.Mutex
	started bool
	epoch   time.Time
	sub     *kbi.Subscription

	stopOnce sync.Once
	done     chan struct{}
	drainErr error
}

// NewSession prepares a capture over an open protocol session. The
// logger may be nil.
func NewSession(sess *kbi.Session, writer *Writer, cfg Config, logger log.Logger) *Session {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Session{
		id:     uuid.New(),
		sess:   sess,
		writer: writer,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Start validates the channel, configures the device and begins
// draining captured frames. The channel check happens before any
// transport write.
func (s *Session) Start(ctx context.Context) error {
	if !ValidChannel(s.cfg.Channel) {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, s.cfg.Channel)
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	resp, err := s.sess.Send(ctx, kbi.Command{
		Class:   kbi.ClassCommand,
		Code:    channelOpcode | kbi.OpWrite,
		Payload: []byte{byte(s.cfg.Channel)},
	})
	if err != nil {
		return fmt.Errorf("select channel: %w", err)
	}
	if !resp.Status().IsSuccess() {
		return fmt.Errorf("%w: channel: %s", ErrDeviceRefused, resp.Status())
	}

	// Subscribe before the interface comes up so the first frames
	// are not lost.
	sub := s.sess.Notifications()

	resp, err = s.sess.Send(ctx, kbi.Command{
		Class: kbi.ClassCommand,
		Code:  interfaceUpCode | kbi.OpExec,
	})
	if err != nil {
		sub.Cancel()
		return fmt.Errorf("interface up: %w", err)
	}
	if !resp.Status().IsSuccess() {
		sub.Cancel()
		return fmt.Errorf("%w: interface up: %s", ErrDeviceRefused, resp.Status())
	}

	if err := s.writer.WriteHeader(); err != nil {
		sub.Cancel()
		return err
	}

	s.mu.Lock()
	s.epoch = time.Now()
	s.sub = sub
	s.mu.Unlock()

	s.logState("", "CAPTURING", fmt.Sprintf("channel %d", s.cfg.Channel))
	go s.drain(sub)
	return nil
}

// drain consumes notifications until the subscription closes. Each
// notification payload is a chunk of the sniffer byte stream; frames
// are written strictly in arrival order.
func (s *Session) drain(sub *kbi.Subscription) {
	defer close(s.done)

	parser := NewStreamParser()
	for notif := range sub.C {
		for _, frame := range parser.Push(notif.Payload) {
			ts := s.epoch.Add(time.Duration(frame.Ticks*TickDuration) * time.Microsecond)
			rec := Record{Payload: frame.Payload, Timestamp: ts, Channel: s.cfg.Channel}
			if err := s.writer.WriteRecord(rec); err != nil {
				s.drainErr = err
				return
			}
		}
	}
}

// Stop cancels the subscription, brings the interface down, flushes
// buffered output and finalizes the writer. Idempotent; the file is
// finalized exactly once.
func (s *Session) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		sub := s.sub
		started := s.started
		s.mu.Unlock()

		if !started {
			err = s.writer.Close()
			return
		}
		if sub != nil {
			sub.Cancel()
			<-s.done
		}

		// Best effort: the device may already be gone.
		if _, derr := s.sess.Send(ctx, kbi.Command{
			Class: kbi.ClassCommand,
			Code:  interfaceDownCode | kbi.OpExec,
		}); derr != nil {
			s.logState("CAPTURING", "STOPPED", "interface down failed: "+derr.Error())
		} else {
			s.logState("CAPTURING", "STOPPED", "")
		}

		if s.drainErr != nil {
			err = s.drainErr
			s.writer.Close()
			return
		}
		err = s.writer.Close()
	})
	return err
}

// Records returns how many frames have been written so far.
func (s *Session) Records() int {
	return s.writer.Records()
}

func (s *Session) logState(from, to, reason string) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		DeviceID:  s.sess.DeviceID(),
		Direction: log.DirectionIn,
		Layer:     log.LayerCapture,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityCapture,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}
