package kbi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbi-protocol/kbi-go/pkg/cobs"
	"github.com/kbi-protocol/kbi-go/pkg/device"
	"github.com/kbi-protocol/kbi-go/pkg/log"
)

// Session errors.
var (
	// ErrTimeout indicates no response arrived within the configured
	// deadline. The command is not retried by this layer.
	ErrTimeout = errors.New("response timed out")

	// ErrSessionClosed indicates the session has been closed.
	ErrSessionClosed = errors.New("session is closed")

	// ErrTokensExhausted indicates every correlation token is bound
	// to an in-flight command.
	ErrTokensExhausted = errors.New("all correlation tokens in flight")

	// ErrTransport indicates the device transport failed; the device
	// needs to be re-opened.
	ErrTransport = errors.New("transport failure")
)

// Config holds session tunables.
type Config struct {
	// ResponseTimeout bounds the wait for a command response.
	ResponseTimeout time.Duration

	// NotificationBuffer is the per-subscription channel depth.
	// Notifications beyond it are dropped for that subscriber.
	NotificationBuffer int

	// ReadBuffer is the transport read chunk size.
	ReadBuffer int
}

// DefaultConfig returns the standard session configuration.
func DefaultConfig() Config {
	return Config{
		ResponseTimeout:    3 * time.Second,
		NotificationBuffer: 64,
		ReadBuffer:         512,
	}
}

// Session is the per-device KBI protocol engine. It exclusively owns
// the device transport: one read loop plus serialized command writes.
// All methods are safe for concurrent use.
type Session struct {
	deviceID string
	tr       device.Transport
	cfg      Config
	logger   log.Logger

	// writeMu serializes frame writes so concurrent senders never
	// interleave partial frames.
	writeMu sync.Mutex

	// pending maps in-flight correlation tokens to their waiters.
	pendingMu sync.Mutex
	pending   map[uint8]chan *Response
	lastToken uint8

	// subs holds notification subscribers.
	subsMu  sync.Mutex
	subs    map[uint64]*Subscription
	nextSub uint64

	closeOnce sync.Once
	closed    chan struct{}
	readDone  chan struct{}
}

// NewSession starts the protocol engine on an exclusively owned
// transport. The logger may be nil.
func NewSession(deviceID string, tr device.Transport, cfg Config, logger log.Logger) *Session {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultConfig().ResponseTimeout
	}
	if cfg.NotificationBuffer <= 0 {
		cfg.NotificationBuffer = DefaultConfig().NotificationBuffer
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = DefaultConfig().ReadBuffer
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}

	s := &Session{
		deviceID: deviceID,
		tr:       tr,
		cfg:      cfg,
		logger:   logger,
		pending:  make(map[uint8]chan *Response),
		subs:     make(map[uint64]*Subscription),
		closed:   make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// DeviceID returns the identifier of the device this session drives.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// Send transmits a command and waits for the response correlated to
// its token. The token in cmd is overwritten with a session-assigned
// one. A response arriving after the deadline is discarded by the
// read loop, never matched to a later command.
func (s *Session) Send(ctx context.Context, cmd Command) (*Response, error) {
	select {
	case <-s.closed:
		return nil, ErrSessionClosed
	default:
	}

	respCh := make(chan *Response, 1)
	token, err := s.claimToken(respCh)
	if err != nil {
		return nil, err
	}
	defer s.releaseToken(token)

	cmd.Token = token
	msg, err := cmd.Encode()
	if err != nil {
		return nil, err
	}
	frame := cobs.Encode(msg)

	s.logMessage(log.DirectionOut, log.MessageTypeCommand, cmd.Code, token, nil, len(cmd.Payload))

	s.writeMu.Lock()
	_, werr := s.tr.Write(frame)
	s.writeMu.Unlock()
	if werr != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, werr)
	}

	timer := time.NewTimer(s.cfg.ResponseTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrSessionClosed
	case <-timer.C:
		return nil, fmt.Errorf("%w: token %d after %v", ErrTimeout, token, s.cfg.ResponseTimeout)
	case resp := <-respCh:
		return resp, nil
	}
}

// claimToken allocates the next free correlation token. Tokens are
// issued by a wrapping 1..255 counter; zero is reserved for
// notifications. An in-flight token is skipped, so a token is never
// shared by two pending calls.
func (s *Session) claimToken(ch chan *Response) (uint8, error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	for i := 0; i < 255; i++ {
		t := s.lastToken + 1
		if t == NotificationToken {
			t = 1
		}
		s.lastToken = t
		if _, inFlight := s.pending[t]; !inFlight {
			s.pending[t] = ch
			return t, nil
		}
	}
	return 0, ErrTokensExhausted
}

func (s *Session) releaseToken(token uint8) {
	s.pendingMu.Lock()
	delete(s.pending, token)
	s.pendingMu.Unlock()
}

// Subscription delivers unsolicited device notifications.
type Subscription struct {
	// C carries notifications in arrival order. It is closed when
	// the subscription is cancelled or the session closes.
	C <-chan *Response

	ch      chan *Response
	id      uint64
	session *Session
	once    sync.Once
}

// Cancel detaches the subscription and closes its channel. Sibling
// subscriptions and the session itself are unaffected.
func (sub *Subscription) Cancel() {
	sub.once.Do(func() {
		sub.session.subsMu.Lock()
		delete(sub.session.subs, sub.id)
		sub.session.subsMu.Unlock()
		close(sub.ch)
	})
}

// Notifications registers a subscriber for unsolicited messages.
func (s *Session) Notifications() *Subscription {
	ch := make(chan *Response, s.cfg.NotificationBuffer)
	sub := &Subscription{C: ch, ch: ch, session: s}

	s.subsMu.Lock()
	s.nextSub++
	sub.id = s.nextSub
	s.subs[sub.id] = sub
	s.subsMu.Unlock()
	return sub
}

// Close shuts the session down: the transport is closed, pending
// calls fail with ErrSessionClosed and subscriptions are closed.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.tr.Close()
		<-s.readDone
	})
	return err
}

// readLoop continuously decodes frames from the transport and routes
// each message: a matching pending token completes that call,
// anything else is a notification or a discarded anomaly.
func (s *Session) readLoop() {
	defer close(s.readDone)
	defer s.failPending()
	defer s.closeSubs()

	scanner := cobs.NewScanner()
	buf := make([]byte, s.cfg.ReadBuffer)

	for {
		n, err := s.tr.Read(buf)
		if n > 0 {
			payloads, errs := scanner.Push(buf[:n])
			for _, perr := range errs {
				s.logError(log.LayerFraming, perr, "frame discarded")
			}
			for _, p := range payloads {
				s.dispatch(p)
			}
		}
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.logError(log.LayerKBI, fmt.Errorf("%w: %v", ErrTransport, err), "read loop stopped")
			}
			return
		}
	}
}

// dispatch routes one decoded frame payload.
func (s *Session) dispatch(payload []byte) {
	resp, err := DecodeMessage(payload)
	if err != nil {
		s.logError(log.LayerKBI, err, "message discarded")
		return
	}

	if resp.IsNotification() || resp.Token == NotificationToken {
		s.logMessage(log.DirectionIn, log.MessageTypeNotification, resp.Code, resp.Token, nil, len(resp.Payload))
		s.fanOut(resp)
		return
	}

	status := uint8(resp.Status())
	s.logMessage(log.DirectionIn, log.MessageTypeResponse, resp.Code, resp.Token, &status, len(resp.Payload))

	s.pendingMu.Lock()
	ch, ok := s.pending[resp.Token]
	if ok {
		// The waiter owns the token until it returns; hand over
		// exactly one response.
		delete(s.pending, resp.Token)
	}
	s.pendingMu.Unlock()

	if !ok {
		// Unknown token: the call already timed out or the device
		// answered out of protocol. Discarding here keeps a late
		// response from completing an unrelated later command.
		s.logError(log.LayerKBI, fmt.Errorf("unmatched response token %d", resp.Token), "response discarded")
		return
	}
	ch <- resp
}

// fanOut delivers a notification to every subscriber without
// blocking the read loop; a full subscriber drops the notification.
func (s *Session) fanOut(resp *Response) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		select {
		case sub.ch <- resp:
		default:
		}
	}
}

// failPending completes every in-flight call with a closed-session
// result by dropping its registration; waiters then hit their
// timeout or the session closed channel.
func (s *Session) failPending() {
	s.pendingMu.Lock()
	for token := range s.pending {
		delete(s.pending, token)
	}
	s.pendingMu.Unlock()
}

func (s *Session) closeSubs() {
	s.subsMu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subsMu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}

func (s *Session) logMessage(dir log.Direction, mt log.MessageType, code, token uint8, status *uint8, payloadSize int) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		DeviceID:  s.deviceID,
		Direction: dir,
		Layer:     log.LayerKBI,
		Category:  log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:        mt,
			Token:       token,
			Code:        code,
			Status:      status,
			PayloadSize: payloadSize,
		},
	})
}

func (s *Session) logError(layer log.Layer, err error, context string) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		DeviceID:  s.deviceID,
		Direction: log.DirectionIn,
		Layer:     layer,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	})
}
