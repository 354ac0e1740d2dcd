// Package cobs implements the byte-stuffing framing used on KBI serial
// links.
//
// A frame is an arbitrary payload bounded by a reserved delimiter byte.
// Any payload byte equal to the delimiter or to the escape value is
// replaced by a two-byte escape sequence during encoding, so the
// delimiter value never appears inside a frame body:
//
//	[DELIMITER] [stuffed payload] [DELIMITER]
//	stuffing:   0x7E -> 0x7D 0x5E
//	            0x7D -> 0x7D 0x5D
//
// Encode and Decode are stateless and inverse for every payload,
// including the empty one. Scanner extracts complete frames from a
// continuous byte stream, which is how the session read loop consumes
// serial input.
package cobs
