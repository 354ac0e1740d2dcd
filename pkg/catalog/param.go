package catalog

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"
)

// ParamType enumerates the wire encodings a command parameter can use.
type ParamType uint8

const (
	// TypeUint8 is an unsigned 8-bit integer, decimal text.
	TypeUint8 ParamType = iota
	// TypeUint16 is an unsigned big-endian 16-bit integer.
	TypeUint16
	// TypeUint32 is an unsigned big-endian 32-bit integer.
	TypeUint32
	// TypeInt8 is a signed 8-bit integer (e.g. dBm levels).
	TypeInt8
	// TypeHexBytes is a raw byte string written as 0x-prefixed hex.
	// It consumes the remainder of the payload, so it must be last.
	TypeHexBytes
	// TypeBytes8 is a variable byte string with a one-byte length
	// prefix on the wire, 0x-prefixed hex as text.
	TypeBytes8
	// TypeBytes16 is a variable byte string with a big-endian two-byte
	// length prefix on the wire.
	TypeBytes16
	// TypeFixedBytes is a byte string of exactly Param.Size bytes.
	TypeFixedBytes
	// TypeEUI64 is an eight-byte identifier, dash-separated hex text
	// (aa-bb-cc-dd-ee-ff-00-11).
	TypeEUI64
	// TypeString is a NUL-terminated character string.
	TypeString
	// TypeAddr is a 16-byte IPv6 address in standard text form.
	TypeAddr
	// TypeEnum is a one-byte value selected by token (Param.Enum).
	TypeEnum
)

// String returns the type name used in YAML catalogs.
func (t ParamType) String() string {
	switch t {
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeInt8:
		return "int8"
	case TypeHexBytes:
		return "hex"
	case TypeBytes8:
		return "bytes8"
	case TypeBytes16:
		return "bytes16"
	case TypeFixedBytes:
		return "bytes"
	case TypeEUI64:
		return "eui64"
	case TypeString:
		return "string"
	case TypeAddr:
		return "addr"
	case TypeEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// paramTypeNames resolves YAML type names back to ParamType values.
var paramTypeNames = map[string]ParamType{
	"uint8":   TypeUint8,
	"uint16":  TypeUint16,
	"uint32":  TypeUint32,
	"int8":    TypeInt8,
	"hex":     TypeHexBytes,
	"bytes8":  TypeBytes8,
	"bytes16": TypeBytes16,
	"bytes":   TypeFixedBytes,
	"eui64":   TypeEUI64,
	"string":  TypeString,
	"addr":    TypeAddr,
	"enum":    TypeEnum,
}

// Param describes one typed command parameter.
type Param struct {
	// Name identifies the parameter in error messages.
	Name string

	// Type selects the wire encoding.
	Type ParamType

	// Size is the byte length for TypeFixedBytes.
	Size int

	// Enum maps tokens to wire values for TypeEnum.
	Enum map[string]uint8

	// Optional marks a parameter that may be omitted. Only valid on
	// the last parameter of an entry.
	Optional bool
}

// consumesRest reports whether the type swallows the remaining
// payload and therefore must be the last parameter.
func (p Param) consumesRest() bool {
	return p.Type == TypeHexBytes
}

// encode converts one text argument to its wire bytes.
func (p Param) encode(arg string) ([]byte, error) {
	switch p.Type {
	case TypeUint8:
		v, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("%q is not an 8-bit unsigned integer", arg)
		}
		return []byte{byte(v)}, nil

	case TypeUint16:
		v, err := strconv.ParseUint(arg, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("%q is not a 16-bit unsigned integer", arg)
		}
		out := make([]byte, 2)
		binary.BigEndian.PutUint16(out, uint16(v))
		return out, nil

	case TypeUint32:
		v, err := strconv.ParseUint(arg, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%q is not a 32-bit unsigned integer", arg)
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, uint32(v))
		return out, nil

	case TypeInt8:
		v, err := strconv.ParseInt(arg, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("%q is not an 8-bit signed integer", arg)
		}
		return []byte{byte(v)}, nil

	case TypeHexBytes, TypeBytes8, TypeBytes16, TypeFixedBytes:
		raw, err := parseHexArg(arg)
		if err != nil {
			return nil, err
		}
		switch p.Type {
		case TypeBytes8:
			if len(raw) > 0xFF {
				return nil, fmt.Errorf("byte string %d bytes, limit 255", len(raw))
			}
			return append([]byte{byte(len(raw))}, raw...), nil
		case TypeBytes16:
			if len(raw) > 0xFFFF {
				return nil, fmt.Errorf("byte string %d bytes, limit 65535", len(raw))
			}
			out := make([]byte, 2, 2+len(raw))
			binary.BigEndian.PutUint16(out, uint16(len(raw)))
			return append(out, raw...), nil
		case TypeFixedBytes:
			if len(raw) != p.Size {
				return nil, fmt.Errorf("byte string %d bytes, need exactly %d", len(raw), p.Size)
			}
		}
		return raw, nil

	case TypeEUI64:
		raw, err := parseHexArg("0x" + strings.ReplaceAll(arg, "-", ""))
		if err != nil || len(raw) != 8 {
			return nil, fmt.Errorf("%q is not an EUI-64 (aa-bb-cc-dd-ee-ff-00-11)", arg)
		}
		return raw, nil

	case TypeString:
		return append([]byte(arg), 0x00), nil

	case TypeAddr:
		addr, err := netip.ParseAddr(arg)
		if err != nil || !addr.Is6() {
			return nil, fmt.Errorf("%q is not an IPv6 address", arg)
		}
		b := addr.As16()
		return b[:], nil

	case TypeEnum:
		v, ok := p.Enum[arg]
		if !ok {
			return nil, fmt.Errorf("%q is not one of %s", arg, enumTokens(p.Enum))
		}
		return []byte{v}, nil
	}
	return nil, fmt.Errorf("unsupported parameter type %d", p.Type)
}

// decode consumes one parameter from data, returning its canonical
// text form and the number of bytes consumed.
func (p Param) decode(data []byte) (string, int, error) {
	switch p.Type {
	case TypeUint8:
		if len(data) < 1 {
			return "", 0, errShortPayload(1, len(data))
		}
		return strconv.FormatUint(uint64(data[0]), 10), 1, nil

	case TypeUint16:
		if len(data) < 2 {
			return "", 0, errShortPayload(2, len(data))
		}
		return strconv.FormatUint(uint64(binary.BigEndian.Uint16(data)), 10), 2, nil

	case TypeUint32:
		if len(data) < 4 {
			return "", 0, errShortPayload(4, len(data))
		}
		return strconv.FormatUint(uint64(binary.BigEndian.Uint32(data)), 10), 4, nil

	case TypeInt8:
		if len(data) < 1 {
			return "", 0, errShortPayload(1, len(data))
		}
		return strconv.FormatInt(int64(int8(data[0])), 10), 1, nil

	case TypeHexBytes:
		return "0x" + hex.EncodeToString(data), len(data), nil

	case TypeBytes8:
		if len(data) < 1 {
			return "", 0, errShortPayload(1, len(data))
		}
		n := int(data[0])
		if len(data) < 1+n {
			return "", 0, errShortPayload(1+n, len(data))
		}
		return "0x" + hex.EncodeToString(data[1:1+n]), 1 + n, nil

	case TypeBytes16:
		if len(data) < 2 {
			return "", 0, errShortPayload(2, len(data))
		}
		n := int(binary.BigEndian.Uint16(data))
		if len(data) < 2+n {
			return "", 0, errShortPayload(2+n, len(data))
		}
		return "0x" + hex.EncodeToString(data[2:2+n]), 2 + n, nil

	case TypeFixedBytes:
		if len(data) < p.Size {
			return "", 0, errShortPayload(p.Size, len(data))
		}
		return "0x" + hex.EncodeToString(data[:p.Size]), p.Size, nil

	case TypeEUI64:
		if len(data) < 8 {
			return "", 0, errShortPayload(8, len(data))
		}
		return formatEUI64(data[:8]), 8, nil

	case TypeString:
		for i, b := range data {
			if b == 0x00 {
				return string(data[:i]), i + 1, nil
			}
		}
		return "", 0, fmt.Errorf("unterminated string")

	case TypeAddr:
		if len(data) < 16 {
			return "", 0, errShortPayload(16, len(data))
		}
		var b [16]byte
		copy(b[:], data)
		return netip.AddrFrom16(b).String(), 16, nil

	case TypeEnum:
		if len(data) < 1 {
			return "", 0, errShortPayload(1, len(data))
		}
		for token, v := range p.Enum {
			if v == data[0] {
				return token, 1, nil
			}
		}
		return "", 0, fmt.Errorf("value %d has no token", data[0])
	}
	return "", 0, fmt.Errorf("unsupported parameter type %d", p.Type)
}

func errShortPayload(need, have int) error {
	return fmt.Errorf("payload too short: need %d bytes, have %d", need, have)
}

// parseHexArg decodes a 0x-prefixed even-length hex string.
func parseHexArg(arg string) ([]byte, error) {
	if !strings.HasPrefix(arg, "0x") {
		return nil, fmt.Errorf("%q is not 0x-prefixed hex", arg)
	}
	raw, err := hex.DecodeString(arg[2:])
	if err != nil {
		return nil, fmt.Errorf("%q is not valid hex", arg)
	}
	return raw, nil
}

// formatEUI64 renders eight bytes as dash-separated hex.
func formatEUI64(b []byte) string {
	parts := make([]string, len(b))
	for i, x := range b {
		parts[i] = hex.EncodeToString([]byte{x})
	}
	return strings.Join(parts, "-")
}

// enumTokens lists the valid tokens of an enum, for error messages.
func enumTokens(enum map[string]uint8) string {
	tokens := make([]string, 0, len(enum))
	for t := range enum {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return strings.Join(tokens, "|")
}
