package cobs

import (
	"bytes"
	"errors"
	"fmt"
)

// Framing byte values.
const (
	// Delimiter marks frame boundaries and never appears inside a
	// stuffed payload.
	Delimiter = 0x7E

	// Escape introduces a two-byte escape sequence.
	Escape = 0x7D

	// xorMarker is XORed with the escaped byte.
	xorMarker = 0x20
)

// DefaultMaxFrameSize bounds the stuffed body accepted by a Scanner.
// A body growing past this without a closing delimiter indicates a
// desynchronized stream.
const DefaultMaxFrameSize = 2048

// Framing errors.
var (
	// ErrCorrupt indicates a frame that violates the stuffing rule.
	ErrCorrupt = errors.New("corrupt frame")

	// ErrFrameTooLarge indicates an unterminated frame exceeded the
	// scanner's size limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// Encode stuffs payload and returns a complete delimiter-bounded frame.
// The result contains the delimiter value only as its first and last
// byte.
func Encode(payload []byte) []byte {
	// Worst case every byte is escaped, plus the two delimiters.
	out := make([]byte, 0, 2*len(payload)+2)
	out = append(out, Delimiter)
	for _, b := range payload {
		if b == Delimiter || b == Escape {
			out = append(out, Escape, b^xorMarker)
		} else {
			out = append(out, b)
		}
	}
	return append(out, Delimiter)
}

// Decode reverses Encode. The surrounding delimiters are optional so
// that bodies extracted by a Scanner can be passed in directly.
// It fails with ErrCorrupt on a dangling escape, an escape sequence
// that does not decode to a reserved value, or a delimiter inside the
// body.
func Decode(frame []byte) ([]byte, error) {
	body := bytes.TrimPrefix(frame, []byte{Delimiter})
	body = bytes.TrimSuffix(body, []byte{Delimiter})

	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case Delimiter:
			return nil, fmt.Errorf("%w: delimiter inside frame body at %d", ErrCorrupt, i)
		case Escape:
			if i+1 >= len(body) {
				return nil, fmt.Errorf("%w: dangling escape", ErrCorrupt)
			}
			i++
			b := body[i] ^ xorMarker
			if b != Delimiter && b != Escape {
				return nil, fmt.Errorf("%w: invalid escape sequence 0x%02x", ErrCorrupt, body[i])
			}
			out = append(out, b)
		default:
			out = append(out, body[i])
		}
	}
	return out, nil
}

// Scanner extracts complete frame bodies from a continuous byte
// stream. Bytes before the first delimiter are discarded, and empty
// bodies (back-to-back delimiters, used as line idle padding) are
// skipped.
type Scanner struct {
	body     []byte
	inFrame  bool
	maxFrame int
}

// NewScanner returns a Scanner with the default frame size limit.
func NewScanner() *Scanner {
	return &Scanner{maxFrame: DefaultMaxFrameSize}
}

// Push feeds stream bytes to the scanner and returns the decoded
// payloads of all frames completed by this chunk, in stream order.
// A frame whose body fails to decode is reported as an error in place
// of its payload; scanning continues with the next frame.
func (s *Scanner) Push(data []byte) ([][]byte, []error) {
	var payloads [][]byte
	var errs []error

	for _, b := range data {
		if b == Delimiter {
			if s.inFrame && len(s.body) > 0 {
				payload, err := Decode(s.body)
				if err != nil {
					errs = append(errs, err)
				} else {
					payloads = append(payloads, payload)
				}
				s.body = s.body[:0]
			}
			s.inFrame = true
			continue
		}
		if !s.inFrame {
			continue
		}
		if len(s.body) >= s.maxFrame {
			errs = append(errs, fmt.Errorf("%w: body exceeds %d bytes", ErrFrameTooLarge, s.maxFrame))
			s.body = s.body[:0]
			s.inFrame = false
			continue
		}
		s.body = append(s.body, b)
	}
	return payloads, errs
}

// Reset discards any partially accumulated frame.
func (s *Scanner) Reset() {
	s.body = s.body[:0]
	s.inFrame = false
}
