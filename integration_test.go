package kbi_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbi-protocol/kbi-go/internal/emulator"
	"github.com/kbi-protocol/kbi-go/pkg/capture"
	"github.com/kbi-protocol/kbi-go/pkg/catalog"
	"github.com/kbi-protocol/kbi-go/pkg/firmware"
	"github.com/kbi-protocol/kbi-go/pkg/flash"
	"github.com/kbi-protocol/kbi-go/pkg/kbi"
)

func newEmulatedSession(t *testing.T, id string, faults emulator.Faults) (*emulator.Device, *kbi.Session) {
	t.Helper()
	dev := emulator.New(faults)
	cfg := kbi.DefaultConfig()
	cfg.ResponseTimeout = time.Second
	sess := kbi.NewSession(id, dev, cfg, nil)
	t.Cleanup(func() { sess.Close() })
	return dev, sess
}

// TestE2E_Shell drives the text shell path end to end: translate a
// command line, send it over the framed binary protocol and render
// the response.
func TestE2E_Shell(t *testing.T) {
	dev, sess := newEmulatedSession(t, "shell-dev", emulator.Faults{})
	cat := catalog.Builtin()
	ctx := context.Background()

	run := func(line string) string {
		t.Helper()
		cmd, entry, err := cat.Translate(line)
		require.NoError(t, err, "translate %q", line)
		resp, err := sess.Send(ctx, cmd)
		require.NoError(t, err, "send %q", line)
		return catalog.RenderResponse(entry, resp)
	}

	assert.Equal(t, "KiNOS-1.0", run("show swver"))
	assert.Equal(t, "KTWM102", run("show hwver"))
	assert.Equal(t, "11", run("show channel"))

	// A successful write renders as silence and updates the device.
	assert.Equal(t, "", run("config channel 26"))
	assert.Equal(t, "26", run("show channel"))

	got, ok := dev.Register(0x12)
	require.True(t, ok)
	assert.Equal(t, []byte{26}, got)

	// Unknown text never reaches the wire.
	_, _, err := cat.Translate("fondle widget")
	require.ErrorIs(t, err, catalog.ErrUnknownCommand)

	// Unsolicited notifications reach subscribers without disturbing
	// the command flow.
	sub := sess.Notifications()
	defer sub.Cancel()
	dev.Notify(0x2E, 0x01, []byte{0xDE, 0xAD})
	select {
	case n := <-sub.C:
		assert.True(t, n.IsNotification())
		assert.Equal(t, uint8(0x2E), n.Code)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
	assert.Equal(t, "26", run("show channel"))
}

// buildImage assembles a firmware file with a valid suffix and
// checksum around the given payload.
func buildImage(t *testing.T, payload []byte, vid, pid uint16) *firmware.Image {
	t.Helper()

	suffix := make([]byte, 12)
	binary.LittleEndian.PutUint16(suffix[0:2], 0x0100) // firmware version
	binary.LittleEndian.PutUint16(suffix[2:4], pid)
	binary.LittleEndian.PutUint16(suffix[4:6], vid)
	binary.LittleEndian.PutUint16(suffix[6:8], 0x0100) // DFU spec
	copy(suffix[8:11], "UFD")
	suffix[11] = 16

	file := append(append([]byte(nil), payload...), suffix...)
	crc := ^crc32.ChecksumIEEE(file)
	file = binary.LittleEndian.AppendUint32(file, crc)

	img, err := firmware.Parse(file)
	require.NoError(t, err)
	return img
}

// TestE2E_FlashMultiDevice updates three devices in parallel: one
// clean, one that rejects a chunk once and recovers, one that fails
// terminally. Outcomes stay independent.
func TestE2E_FlashMultiDevice(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5A}, 150) // three 64-byte chunks
	img := buildImage(t, payload, 0x2DEF, 0x0102)

	devOK, sessOK := newEmulatedSession(t, "dev-ok", emulator.Faults{})
	devNak, sessNak := newEmulatedSession(t, "dev-nak", emulator.Faults{NakChunks: 1})
	_, sessBad := newEmulatedSession(t, "dev-bad", emulator.Faults{FirmwareError: true})

	orch := flash.NewOrchestrator(flash.Config{
		ChunkSize:    64,
		ChunkRetries: 5,
		RetryDelay:   time.Millisecond,
	}, nil)

	results := orch.FlashAll(context.Background(), img, []flash.Target{
		{DeviceID: "dev-ok", Sender: flash.NewKBISender(sessOK)},
		{DeviceID: "dev-nak", Sender: flash.NewKBISender(sessNak)},
		{DeviceID: "dev-bad", Sender: flash.NewKBISender(sessBad)},
	})
	require.Len(t, results, 3)

	assert.Equal(t, flash.StateComplete, results["dev-ok"].State)
	assert.NoError(t, results["dev-ok"].Err)

	assert.Equal(t, flash.StateComplete, results["dev-nak"].State)
	assert.NoError(t, results["dev-nak"].Err)

	assert.Equal(t, flash.StateFailed, results["dev-bad"].State)
	var ferr *flash.FlashError
	require.ErrorAs(t, results["dev-bad"].Err, &ferr)
	assert.Equal(t, flash.ReasonDeviceRejected, ferr.Reason)

	// The healthy devices hold the full image; block transfer strips
	// nothing and reorders nothing.
	assert.Equal(t, img.Data, devOK.Firmware())
	assert.Equal(t, img.Data, devNak.Firmware())
}

// TestE2E_Capture runs a capture session against the emulator and
// checks the resulting pcap stream.
func TestE2E_Capture(t *testing.T) {
	dev, sess := newEmulatedSession(t, "sniffer", emulator.Faults{})

	var buf bytes.Buffer
	s := capture.NewSession(sess, capture.NewWriter(capture.StreamSink{W: &buf}), capture.Config{Channel: 15}, nil)
	require.NoError(t, s.Start(context.Background()))

	// Channel selection happened before the interface came up.
	got, ok := dev.Register(0x12)
	require.True(t, ok)
	assert.Equal(t, []byte{15}, got)
	assert.True(t, dev.InterfaceUp())

	dev.EmitFrame(1000, []byte{0x61, 0x88, 0x01})
	dev.EmitFrame(2000, []byte{0x02})

	require.Eventually(t, func() bool { return s.Records() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, dev.InterfaceUp())

	data := buf.Bytes()
	require.GreaterOrEqual(t, len(data), 24+16+3+16+1)
	assert.Equal(t, uint32(0xA1B2C3D4), binary.BigEndian.Uint32(data[0:4]))
	assert.Equal(t, uint32(195), binary.BigEndian.Uint32(data[20:24]))

	// First record carries the three-byte frame.
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(data[24+8:24+12]))
	assert.Equal(t, []byte{0x61, 0x88, 0x01}, data[24+16:24+19])
}
