package kbi

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbi-protocol/kbi-go/pkg/cobs"
)

// pipeTransport is an in-memory device.Transport. Writes land in sent
// for inspection; Feed injects inbound bytes for the read loop.
type pipeTransport struct {
	mu     sync.Mutex
	sent   [][]byte
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{
		inbox:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (p *pipeTransport) Read(b []byte) (int, error) {
	select {
	case data := <-p.inbox:
		return copy(b, data), nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *pipeTransport) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	p.mu.Lock()
	p.sent = append(p.sent, append([]byte(nil), b...))
	p.mu.Unlock()
	return len(b), nil
}

func (p *pipeTransport) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// Feed injects raw bytes as if received from the device.
func (p *pipeTransport) Feed(data []byte) {
	p.inbox <- data
}

// lastCommand decodes the most recently written frame.
func (p *pipeTransport) lastCommand(t *testing.T) *Response {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.sent, "no frame written")
	payload, err := cobs.Decode(p.sent[len(p.sent)-1])
	require.NoError(t, err)
	msg, err := DecodeMessage(payload)
	require.NoError(t, err)
	return msg
}

// respond feeds a framed response for the given token.
func (p *pipeTransport) respond(t *testing.T, token uint8, code uint8, status Status, payload []byte) {
	t.Helper()
	cmd := Command{Class: ClassResponse | uint8(status), Code: code, Token: token, Payload: payload}
	msg, err := cmd.Encode()
	require.NoError(t, err)
	p.Feed(cobs.Encode(msg))
}

// notify feeds a framed notification.
func (p *pipeTransport) notify(t *testing.T, code uint8, nibble uint8, payload []byte) {
	t.Helper()
	cmd := Command{Class: ClassNotification | nibble, Code: code, Token: NotificationToken, Payload: payload}
	msg, err := cmd.Encode()
	require.NoError(t, err)
	p.Feed(cobs.Encode(msg))
}

func testSession(t *testing.T, cfg Config) (*Session, *pipeTransport) {
	t.Helper()
	tr := newPipeTransport()
	s := NewSession("test-device", tr, cfg, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s, tr
}

func TestSessionSendReceivesCorrelatedResponse(t *testing.T) {
	s, tr := testSession(t, DefaultConfig())

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Wait for the command, then answer it with its own token.
		require.Eventually(t, func() bool {
			tr.mu.Lock()
			defer tr.mu.Unlock()
			return len(tr.sent) > 0
		}, time.Second, time.Millisecond)
		cmd := tr.lastCommand(t)
		tr.respond(t, cmd.Token, cmd.Code, StatusValue, []byte{0x0B})
	}()

	resp, err := s.Send(context.Background(), Command{Class: ClassCommand, Code: 0x02 | OpRead})
	require.NoError(t, err)
	assert.True(t, resp.Status().IsSuccess())
	assert.Equal(t, []byte{0x0B}, resp.Payload)
	<-done

	sent := tr.lastCommand(t)
	assert.NotEqual(t, NotificationToken, sent.Token, "command must not use the notification token")
}

func TestSessionCorrelationAmidNotifications(t *testing.T) {
	s, tr := testSession(t, DefaultConfig())
	sub := s.Notifications()

	go func() {
		for {
			tr.mu.Lock()
			n := len(tr.sent)
			tr.mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		cmd := tr.lastCommand(t)
		// Interleave unsolicited traffic around the real response.
		tr.notify(t, 0x60, 0x01, []byte{0xAA})
		tr.respond(t, cmd.Token, cmd.Code, StatusOK, nil)
		tr.notify(t, 0x60, 0x02, []byte{0xBB})
	}()

	resp, err := s.Send(context.Background(), Command{Class: ClassCommand, Code: 0x20})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status())

	for _, wantNibble := range []uint8{0x01, 0x02} {
		select {
		case n := <-sub.C:
			assert.True(t, n.IsNotification())
			assert.Equal(t, wantNibble, n.NotificationCode())
		case <-time.After(time.Second):
			t.Fatal("notification not delivered")
		}
	}
}

func TestSessionSendTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResponseTimeout = 20 * time.Millisecond
	s, tr := testSession(t, cfg)

	_, err := s.Send(context.Background(), Command{Class: ClassCommand, Code: 0x11})
	require.ErrorIs(t, err, ErrTimeout)

	// A response arriving after the deadline must be discarded, not
	// matched to the next command.
	late := tr.lastCommand(t)
	tr.respond(t, late.Token, late.Code, StatusValue, []byte{0x99})
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.Eventually(t, func() bool {
			tr.mu.Lock()
			defer tr.mu.Unlock()
			return len(tr.sent) > 1
		}, time.Second, time.Millisecond)
		cmd := tr.lastCommand(t)
		tr.respond(t, cmd.Token, cmd.Code, StatusOK, nil)
	}()

	resp, err := s.Send(context.Background(), Command{Class: ClassCommand, Code: 0x12})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status())
	assert.Empty(t, resp.Payload)
	<-done
}

func TestSessionContextCancellation(t *testing.T) {
	s, _ := testSession(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := s.Send(ctx, Command{Class: ClassCommand, Code: 0x11})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSessionTokensDistinctWhileInFlight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResponseTimeout = 200 * time.Millisecond
	s, tr := testSession(t, cfg)

	const parallel = 8
	var wg sync.WaitGroup
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Send(context.Background(), Command{Class: ClassCommand, Code: 0x11})
		}()
	}

	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.sent) == parallel
	}, time.Second, time.Millisecond)

	tr.mu.Lock()
	seen := make(map[uint8]bool)
	for _, frame := range tr.sent {
		payload, err := cobs.Decode(frame)
		require.NoError(t, err)
		msg, err := DecodeMessage(payload)
		require.NoError(t, err)
		assert.False(t, seen[msg.Token], "token %d issued twice while in flight", msg.Token)
		seen[msg.Token] = true
	}
	tr.mu.Unlock()
	wg.Wait()
}

func TestSessionMalformedFramesDoNotStopReadLoop(t *testing.T) {
	s, tr := testSession(t, DefaultConfig())

	// Corrupt frame (dangling escape), then garbage, then a valid
	// notification: the loop must survive and still deliver.
	tr.Feed([]byte{cobs.Delimiter, 0x01, cobs.Escape, cobs.Delimiter})
	tr.Feed([]byte{0xDE, 0xAD})

	sub := s.Notifications()
	tr.notify(t, 0x60, 0x01, nil)

	select {
	case n := <-sub.C:
		assert.True(t, n.IsNotification())
	case <-time.After(time.Second):
		t.Fatal("read loop did not survive malformed input")
	}
}

func TestSessionCloseFailsPendingAndSubscriptions(t *testing.T) {
	tr := newPipeTransport()
	s := NewSession("test-device", tr, DefaultConfig(), nil)
	sub := s.Notifications()

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), Command{Class: ClassCommand, Code: 0x11})
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.sent) > 0
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	require.ErrorIs(t, <-errCh, ErrSessionClosed)

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok, "subscription channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("subscription not closed on session close")
	}

	_, err := s.Send(context.Background(), Command{Class: ClassCommand, Code: 0x11})
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestSubscriptionCancelIsolated(t *testing.T) {
	s, tr := testSession(t, DefaultConfig())

	a := s.Notifications()
	b := s.Notifications()
	a.Cancel()
	a.Cancel() // idempotent

	tr.notify(t, 0x60, 0x01, nil)

	select {
	case n := <-b.C:
		assert.True(t, n.IsNotification())
	case <-time.After(time.Second):
		t.Fatal("sibling subscription lost delivery after cancel")
	}
}
