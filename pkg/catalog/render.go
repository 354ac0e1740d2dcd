package catalog

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"

	"github.com/kbi-protocol/kbi-go/pkg/kbi"
)

// RenderKind selects how a value response payload turns into text.
type RenderKind uint8

const (
	// RenderNone expects an empty payload.
	RenderNone RenderKind = iota
	// RenderDec renders the payload as a big-endian decimal integer.
	RenderDec
	// RenderHex renders the payload as 0x-prefixed hex.
	RenderHex
	// RenderText renders the payload as a NUL-terminated string.
	RenderText
	// RenderEUI64 renders each eight-byte group as dashed hex.
	RenderEUI64
	// RenderAddr renders each 16-byte group as an IPv6 address.
	RenderAddr
	// RenderEnum maps a one-byte value back to its token.
	RenderEnum
	// RenderUptime renders the uptime/UTC/temperature triple.
	RenderUptime
)

// renderKindNames resolves YAML render names.
var renderKindNames = map[string]RenderKind{
	"none":   RenderNone,
	"dec":    RenderDec,
	"hex":    RenderHex,
	"text":   RenderText,
	"eui64":  RenderEUI64,
	"addr":   RenderAddr,
	"enum":   RenderEnum,
	"uptime": RenderUptime,
}

// RenderResponse turns a device response into the text the shell
// shows. A nil entry still renders status texts; only value payloads
// need the catalog entry for their shape.
func RenderResponse(e *Entry, resp *kbi.Response) string {
	status := resp.Status()
	switch {
	case status == kbi.StatusOK:
		return ""
	case status != kbi.StatusValue:
		return status.String()
	}

	if e == nil {
		return "Wrong value or parser not implemented"
	}
	return renderValue(e, resp.Payload)
}

func renderValue(e *Entry, payload []byte) string {
	switch e.Response {
	case RenderNone:
		return ""

	case RenderDec:
		// Big-endian unsigned integer of the whole payload.
		var v uint64
		if len(payload) > 8 {
			return "0x" + hex.EncodeToString(payload)
		}
		for _, b := range payload {
			v = v<<8 | uint64(b)
		}
		return fmt.Sprintf("%d", v)

	case RenderHex:
		return "0x" + hex.EncodeToString(payload)

	case RenderText:
		if i := strings.IndexByte(string(payload), 0x00); i >= 0 {
			return string(payload[:i])
		}
		return string(payload)

	case RenderEUI64:
		var lines []string
		for len(payload) >= 8 {
			lines = append(lines, formatEUI64(payload[:8]))
			payload = payload[8:]
		}
		return strings.Join(lines, "\n")

	case RenderAddr:
		var lines []string
		for len(payload) >= 16 {
			var b [16]byte
			copy(b[:], payload)
			lines = append(lines, netip.AddrFrom16(b).String())
			payload = payload[16:]
		}
		return strings.Join(lines, "\n")

	case RenderEnum:
		if len(payload) < 1 {
			return ""
		}
		for token, v := range e.ResponseEnum {
			if v == payload[0] {
				return token
			}
		}
		return fmt.Sprintf("unknown (%d)", payload[0])

	case RenderUptime:
		return renderUptime(payload)
	}
	return "0x" + hex.EncodeToString(payload)
}

// renderUptime formats the uptime response: seconds up, UTC seconds
// of day and MCU temperature.
func renderUptime(payload []byte) string {
	if len(payload) < 9 {
		return "0x" + hex.EncodeToString(payload)
	}
	up := uint32(payload[0])<<24 | uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])
	utc := uint32(payload[4])<<24 | uint32(payload[5])<<16 | uint32(payload[6])<<8 | uint32(payload[7])
	temp := int8(payload[8])

	days := up / 86400
	rem := up % 86400
	return fmt.Sprintf(
		"Uptime           : %d days, %02d hours, %02d minutes and %02d seconds\n"+
			"Current UTC Time : %02d:%02d:%02d\n"+
			"MCU Temperature  : %d°C",
		days, rem/3600, rem%3600/60, rem%60,
		utc%86400/3600, utc%3600/60, utc%60,
		temp)
}
