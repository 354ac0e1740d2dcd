package capture

import (
	"encoding/binary"
)

// Sniffer stream magics. The short header carries a 32-bit tick
// timestamp, the wide one ("SNIF") a 64-bit timestamp.
const (
	magicShort = 0xC11FFE72
	magicWide  = 0x534E4946
)

// TickDuration is the device clock resolution: one tick is 16 µs.
const TickDuration = 16

// RawFrame is one frame recovered from the sniffer byte stream.
type RawFrame struct {
	// Ticks is the device timestamp in 16 µs units since the device
	// started capturing.
	Ticks uint64

	// Payload is the captured radio frame.
	Payload []byte
}

// StreamParser incrementally recovers frames from the sniffer byte
// stream. Each frame is prefixed by a magic, a 16-bit length and a
// timestamp; the parser slides byte by byte until a magic aligns, so
// it resynchronizes after garbage or a partial frame.
type StreamParser struct {
	header  []byte
	wide    bool
	matched bool

	needed  int
	ticks   uint64
	payload []byte
}

// NewStreamParser returns a parser ready for the start of a stream.
func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Push consumes stream bytes in whatever chunks the transport
// delivers and returns the frames completed by them, in order.
func (p *StreamParser) Push(data []byte) []RawFrame {
	var frames []RawFrame
	for _, b := range data {
		if frame, ok := p.pushByte(b); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

func (p *StreamParser) pushByte(b byte) (RawFrame, bool) {
	// Payload phase: collect until the announced length is reached.
	if p.needed > 0 {
		p.payload = append(p.payload, b)
		if len(p.payload) < p.needed {
			return RawFrame{}, false
		}
		frame := RawFrame{Ticks: p.ticks, Payload: p.payload}
		p.reset()
		return frame, true
	}

	p.header = append(p.header, b)

	if !p.matched {
		if len(p.header) < 4 {
			return RawFrame{}, false
		}
		switch binary.BigEndian.Uint32(p.header) {
		case magicShort:
			p.matched, p.wide = true, false
		case magicWide:
			p.matched, p.wide = true, true
		default:
			// No magic here; slide the window one byte.
			p.header = p.header[1:]
		}
		return RawFrame{}, false
	}

	// Magic seen: wait for length plus timestamp.
	hdrLen := 4 + 2 + 4
	if p.wide {
		hdrLen = 4 + 2 + 8
	}
	if len(p.header) < hdrLen {
		return RawFrame{}, false
	}

	length := int(binary.BigEndian.Uint16(p.header[4:6]))
	if p.wide {
		p.ticks = binary.BigEndian.Uint64(p.header[6:14])
	} else {
		p.ticks = uint64(binary.BigEndian.Uint32(p.header[6:10]))
	}

	if length == 0 {
		frame := RawFrame{Ticks: p.ticks}
		p.reset()
		return frame, true
	}
	p.needed = length
	p.payload = make([]byte, 0, length)
	p.header = nil
	return RawFrame{}, false
}

func (p *StreamParser) reset() {
	p.header = nil
	p.matched = false
	p.wide = false
	p.needed = 0
	p.ticks = 0
	p.payload = nil
}
