// Package kbi implements the binary command/response protocol spoken
// by KBI-capable devices over a framed serial link.
//
// # Wire Format
//
// Every message carries a fixed six-byte header followed by the
// payload:
//
//	┌───────────────┬──────┬──────┬───────┬──────────┬─────────┐
//	│ Length (2, BE)│ Type │ Code │ Token │ Checksum │ Payload │
//	└───────────────┴──────┴──────┴───────┴──────────┴─────────┘
//
// Length counts payload bytes only. Type carries the message class in
// its high nibble (command, response, notification) and, for
// responses, the status in its low nibble. Code is the opcode with
// the operation bits (read/write/delete) folded in. Token correlates
// a response with the command that caused it; token zero is reserved
// for unsolicited notifications. Checksum is the XOR of every other
// message byte.
//
// Messages travel inside byte-stuffed frames (package cobs).
//
// # Session
//
// Session owns one device transport: a read loop decodes incoming
// frames and either completes the pending call registered under the
// response token or dispatches the message to notification
// subscribers. Commands are serialized onto the transport, correlation
// tokens come from a wrapping per-session counter, and calls time out
// with ErrTimeout. Malformed frames are logged and discarded; they
// never stop the read loop.
package kbi
