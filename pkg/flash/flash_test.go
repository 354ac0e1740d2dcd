package flash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbi-protocol/kbi-go/pkg/firmware"
)

// makeImage builds a checksum-valid image of the given payload size.
func makeImage(size int, vid, pid uint16) *firmware.Image {
	img := &firmware.Image{
		Data:            bytes.Repeat([]byte{0x5A}, size),
		FirmwareVersion: 0x0100,
		VendorID:        vid,
		ProductID:       pid,
		DFUSpec:         0x0100,
	}
	file := append(append([]byte(nil), img.Data...), img.Suffix()...)
	img.CRC = ^crc32.ChecksumIEEE(file[:len(file)-4])
	return img
}

// fakeSender records every call and fails on request.
type fakeSender struct {
	mu        sync.Mutex
	beginErr  error
	chunkErr  error
	failFrom  int // chunk index from which chunkErr applies (-1: never)
	failTimes int // how many attempts fail (0: forever)
	finalErr  error

	begun     bool
	finalized bool
	chunks    []uint16
	attempts  int
	ops       int
}

func newFakeSender() *fakeSender {
	return &fakeSender{failFrom: -1}
}

func (f *fakeSender) Begin(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops++
	if f.beginErr != nil {
		return f.beginErr
	}
	f.begun = true
	return nil
}

func (f *fakeSender) SendChunk(ctx context.Context, index uint16, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops++
	if f.failFrom >= 0 && int(index) >= f.failFrom {
		if f.failTimes == 0 {
			return f.chunkErr
		}
		if f.attempts < f.failTimes {
			f.attempts++
			return f.chunkErr
		}
	}
	f.chunks = append(f.chunks, index)
	return nil
}

func (f *fakeSender) Finalize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops++
	if f.finalErr != nil {
		return f.finalErr
	}
	f.finalized = true
	return nil
}

func testConfig() Config {
	return Config{ChunkSize: 64, ChunkRetries: 5, RetryDelay: 0}
}

func TestSessionCompletes(t *testing.T) {
	img := makeImage(130, 0x2DEF, 0x0003)
	sender := newFakeSender()

	var progress []int
	s := NewSession(Target{DeviceID: "dev", VendorID: 0x2DEF, ProductID: 0x0003, Sender: sender}, testConfig(), nil)
	s.Progress = func(sent, total int) { progress = append(progress, sent) }

	require.NoError(t, s.Run(context.Background(), img))
	assert.Equal(t, StateComplete, s.State())
	assert.True(t, sender.begun)
	assert.True(t, sender.finalized)
	// Chunks strictly ordered, 130 bytes in 64-byte blocks.
	assert.Equal(t, []uint16{0, 1, 2}, sender.chunks)
	assert.Equal(t, []int{1, 2, 3}, progress)
}

func TestSessionBadChecksumNeverTouchesTransport(t *testing.T) {
	img := makeImage(64, 0x2DEF, 0x0003)
	img.Data[0] ^= 0xFF // corrupt after checksum computation

	sender := newFakeSender()
	s := NewSession(Target{DeviceID: "dev", Sender: sender}, testConfig(), nil)

	err := s.Run(context.Background(), img)
	var ferr *FlashError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, ReasonIncompatibleImage, ferr.Reason)
	assert.Equal(t, StateFailed, s.State())
	assert.Zero(t, sender.ops, "no transport operation may happen for a corrupt image")
}

func TestSessionIncompatibleHardware(t *testing.T) {
	img := makeImage(64, 0x2DEF, 0x0003)
	sender := newFakeSender()
	s := NewSession(Target{DeviceID: "dev", VendorID: 0x2DEF, ProductID: 0x0099, Sender: sender}, testConfig(), nil)

	err := s.Run(context.Background(), img)
	var ferr *FlashError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, ReasonIncompatibleImage, ferr.Reason)
	assert.Zero(t, sender.ops)
}

func TestSessionDeviceRejectsBegin(t *testing.T) {
	img := makeImage(64, 0, 0)
	sender := newFakeSender()
	sender.beginErr = errors.New("busy")

	s := NewSession(Target{DeviceID: "dev", Sender: sender}, testConfig(), nil)
	err := s.Run(context.Background(), img)

	var ferr *FlashError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, ReasonDeviceRejected, ferr.Reason)
	assert.Empty(t, sender.chunks)
}

func TestSessionChunkRetriesThenFails(t *testing.T) {
	img := makeImage(200, 0, 0)
	sender := newFakeSender()
	sender.failFrom = 1
	sender.chunkErr = errors.New("nak")

	s := NewSession(Target{DeviceID: "dev", Sender: sender}, testConfig(), nil)
	err := s.Run(context.Background(), img)

	var ferr *FlashError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, ReasonTransferError, ferr.Reason)
	// Chunk 0 delivered once, chunk 1 attempted the full budget.
	assert.Equal(t, []uint16{0}, sender.chunks)
	assert.Equal(t, 1+1+5, sender.ops) // begin + chunk 0 + 5 retries of chunk 1
}

func TestSessionChunkRetriesThenRecovers(t *testing.T) {
	img := makeImage(200, 0, 0)
	sender := newFakeSender()
	sender.failFrom = 1
	sender.failTimes = 2
	sender.chunkErr = errors.New("nak")

	s := NewSession(Target{DeviceID: "dev", Sender: sender}, testConfig(), nil)
	require.NoError(t, s.Run(context.Background(), img))
	assert.Equal(t, StateComplete, s.State())
	assert.Equal(t, []uint16{0, 1, 2, 3}, sender.chunks)
}

func TestSessionVerificationFailure(t *testing.T) {
	img := makeImage(64, 0, 0)
	sender := newFakeSender()
	sender.finalErr = failure(ReasonVerificationError, errors.New("image crc mismatch"))

	s := NewSession(Target{DeviceID: "dev", Sender: sender}, testConfig(), nil)
	err := s.Run(context.Background(), img)

	var ferr *FlashError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, ReasonVerificationError, ferr.Reason)
	assert.Equal(t, StateFailed, s.State())
}

func TestFlashAllIndependentOutcomes(t *testing.T) {
	img := makeImage(256, 0, 0)

	good1 := newFakeSender()
	bad := newFakeSender()
	bad.failFrom = 2
	bad.chunkErr = errors.New("device disconnected")
	good2 := newFakeSender()

	o := NewOrchestrator(testConfig(), nil)
	results := o.FlashAll(context.Background(), img, []Target{
		{DeviceID: "dev1", Sender: good1},
		{DeviceID: "dev2", Sender: bad},
		{DeviceID: "dev3", Sender: good2},
	})

	require.Len(t, results, 3)

	assert.Equal(t, StateComplete, results["dev1"].State)
	assert.NoError(t, results["dev1"].Err)

	assert.Equal(t, StateFailed, results["dev2"].State)
	var ferr *FlashError
	require.ErrorAs(t, results["dev2"].Err, &ferr)
	assert.Equal(t, ReasonTransferError, ferr.Reason)

	assert.Equal(t, StateComplete, results["dev3"].State)
	assert.NoError(t, results["dev3"].Err)

	for id, r := range results {
		assert.NotEqual(t, r.SessionID.String(), "00000000-0000-0000-0000-000000000000",
			fmt.Sprintf("%s has no session ID", id))
	}
}
