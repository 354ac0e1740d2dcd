package capture

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// shortFrame builds a stream chunk with the 32-bit-timestamp header.
func shortFrame(ticks uint32, payload []byte) []byte {
	out := make([]byte, 10+len(payload))
	binary.BigEndian.PutUint32(out[0:4], magicShort)
	binary.BigEndian.PutUint16(out[4:6], uint16(len(payload)))
	binary.BigEndian.PutUint32(out[6:10], ticks)
	copy(out[10:], payload)
	return out
}

// wideFrame builds a stream chunk with the 64-bit-timestamp header.
func wideFrame(ticks uint64, payload []byte) []byte {
	out := make([]byte, 14+len(payload))
	binary.BigEndian.PutUint32(out[0:4], magicWide)
	binary.BigEndian.PutUint16(out[4:6], uint16(len(payload)))
	binary.BigEndian.PutUint64(out[6:14], ticks)
	copy(out[14:], payload)
	return out
}

func TestStreamParserShortHeader(t *testing.T) {
	p := NewStreamParser()
	frames := p.Push(shortFrame(1234, []byte{0xAA, 0xBB, 0xCC}))
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if frames[0].Ticks != 1234 {
		t.Errorf("ticks = %d, want 1234", frames[0].Ticks)
	}
	if !bytes.Equal(frames[0].Payload, []byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("payload = % X", frames[0].Payload)
	}
}

func TestStreamParserWideHeader(t *testing.T) {
	p := NewStreamParser()
	frames := p.Push(wideFrame(1<<40, []byte{0x01}))
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if frames[0].Ticks != 1<<40 {
		t.Errorf("ticks = %d, want %d", frames[0].Ticks, uint64(1)<<40)
	}
}

func TestStreamParserByteAtATime(t *testing.T) {
	stream := append(shortFrame(7, []byte{0x11, 0x22}), wideFrame(9, []byte{0x33})...)

	p := NewStreamParser()
	var frames []RawFrame
	for _, b := range stream {
		frames = append(frames, p.Push([]byte{b})...)
	}
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if frames[0].Ticks != 7 || !bytes.Equal(frames[0].Payload, []byte{0x11, 0x22}) {
		t.Errorf("frame 0 = %+v", frames[0])
	}
	if frames[1].Ticks != 9 || !bytes.Equal(frames[1].Payload, []byte{0x33}) {
		t.Errorf("frame 1 = %+v", frames[1])
	}
}

func TestStreamParserResyncAfterGarbage(t *testing.T) {
	var stream []byte
	stream = append(stream, 0xDE, 0xAD, 0xC1, 0x1F) // noise, partial magic
	stream = append(stream, shortFrame(42, []byte{0x55})...)

	p := NewStreamParser()
	frames := p.Push(stream)
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if frames[0].Ticks != 42 || !bytes.Equal(frames[0].Payload, []byte{0x55}) {
		t.Errorf("frame = %+v", frames[0])
	}
}

func TestStreamParserZeroLengthFrame(t *testing.T) {
	p := NewStreamParser()
	frames := p.Push(shortFrame(5, nil))
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if frames[0].Ticks != 5 || len(frames[0].Payload) != 0 {
		t.Errorf("frame = %+v", frames[0])
	}

	// Parser stays usable afterwards.
	frames = p.Push(shortFrame(6, []byte{0x01}))
	if len(frames) != 1 || frames[0].Ticks != 6 {
		t.Fatalf("follow-up frame = %+v", frames)
	}
}
