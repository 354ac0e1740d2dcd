// Package capture turns a live radio sniffer stream into pcap output
// that standard viewers open directly, either from a file afterwards
// or live through a pipe.
//
// A Session selects the radio channel and brings the interface up
// through the binary protocol session, then drains captured frames
// from a notification subscription until stopped. Frames are written
// in arrival order; timestamps come from the device clock in 16 µs
// ticks, offset from the capture start.
//
// The channel domain is 802.15.4: integers 11 through 26. Anything
// else is rejected locally before a single byte reaches the device.
package capture
