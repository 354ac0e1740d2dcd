package catalog

import (
	"github.com/kbi-protocol/kbi-go/pkg/kbi"
)

// roleTokens maps mesh role names to their wire values.
var roleTokens = map[string]uint8{
	"leader": 6,
	"router": 1,
	"reed":   2,
	"fed":    3,
	"med":    4,
	"sed":    5,
}

// Builtin returns the stock command table of KiNOS devices. The
// catalog is validated at startup; a panic here means the table
// itself is broken, which no runtime input can cause.
func Builtin() *Catalog {
	cmd := uint8(kbi.ClassCommand)
	priv := uint8(kbi.ClassPrivileged)

	entries := []Entry{
		{Name: "clear", Class: cmd, Code: 0x00 | kbi.OpExec},
		{Name: "show uptime", Class: cmd, Code: 0x02 | kbi.OpRead, Response: RenderUptime},
		{Name: "reset", Class: cmd, Code: 0x03 | kbi.OpExec},
		{Name: "config autojoin on", Class: cmd, Code: 0x04 | kbi.OpWrite},
		{Name: "config autojoin off", Class: cmd, Code: 0x04 | kbi.OpDelete},
		{Name: "show autojoin", Class: cmd, Code: 0x04 | kbi.OpRead, Response: RenderDec},
		{Name: "show status", Class: cmd, Code: 0x05 | kbi.OpRead, Response: RenderDec},
		{Name: "ping", Class: cmd, Code: 0x06 | kbi.OpExec, Params: []Param{
			{Name: "destination", Type: TypeAddr},
			{Name: "size", Type: TypeUint16},
		}},
		{Name: "ifdown", Class: cmd, Code: 0x07 | kbi.OpExec},
		{Name: "ifup", Class: cmd, Code: 0x08 | kbi.OpExec},
		{Name: "config socket add", Class: cmd, Code: 0x09 | kbi.OpWrite, Params: []Param{
			{Name: "port", Type: TypeUint16, Optional: true},
		}, Response: RenderDec},
		{Name: "config socket del", Class: cmd, Code: 0x09 | kbi.OpDelete, Params: []Param{
			{Name: "port", Type: TypeUint16},
		}, Response: RenderDec},
		{Name: "show swver", Class: cmd, Code: 0x0a | kbi.OpRead, Response: RenderText},
		{Name: "show hwver", Class: cmd, Code: 0x0b | kbi.OpRead, Response: RenderText},
		{Name: "show snum", Class: cmd, Code: 0x0c | kbi.OpRead, Response: RenderText},
		{Name: "config emac", Class: cmd, Code: 0x0d | kbi.OpWrite, Params: []Param{
			{Name: "mac", Type: TypeEUI64},
		}, Response: RenderEUI64},
		{Name: "show emac", Class: cmd, Code: 0x0d | kbi.OpRead, Response: RenderEUI64},
		{Name: "show eui64", Class: cmd, Code: 0x0e | kbi.OpRead, Response: RenderEUI64},
		{Name: "config lowpower on", Class: cmd, Code: 0x0f | kbi.OpWrite},
		{Name: "config lowpower off", Class: cmd, Code: 0x0f | kbi.OpDelete},
		{Name: "show lowpower", Class: cmd, Code: 0x0f | kbi.OpRead, Response: RenderDec},
		{Name: "config txpower", Class: cmd, Code: 0x10 | kbi.OpWrite, Params: []Param{
			{Name: "dbm", Type: TypeInt8},
		}, Response: RenderDec},
		{Name: "show txpower", Class: cmd, Code: 0x10 | kbi.OpRead, Response: RenderDec},
		{Name: "config panid", Class: cmd, Code: 0x11 | kbi.OpWrite, Params: []Param{
			{Name: "panid", Type: TypeHexBytes},
		}, Response: RenderHex},
		{Name: "show panid", Class: cmd, Code: 0x11 | kbi.OpRead, Response: RenderHex},
		{Name: "config channel", Class: cmd, Code: 0x12 | kbi.OpWrite, Params: []Param{
			{Name: "channel", Type: TypeUint8},
		}, Response: RenderDec},
		{Name: "show channel", Class: cmd, Code: 0x12 | kbi.OpRead, Response: RenderDec},
		{Name: "config xpanid", Class: cmd, Code: 0x13 | kbi.OpWrite, Params: []Param{
			{Name: "xpanid", Type: TypeHexBytes},
		}, Response: RenderHex},
		{Name: "show xpanid", Class: cmd, Code: 0x13 | kbi.OpRead, Response: RenderHex},
		{Name: "config netname", Class: cmd, Code: 0x14 | kbi.OpWrite, Params: []Param{
			{Name: "name", Type: TypeString},
		}, Response: RenderText},
		{Name: "show netname", Class: cmd, Code: 0x14 | kbi.OpRead, Response: RenderText},
		{Name: "config mkey", Class: cmd, Code: 0x15 | kbi.OpWrite, Params: []Param{
			{Name: "key", Type: TypeHexBytes},
		}, Response: RenderHex},
		{Name: "show mkey", Class: cmd, Code: 0x15 | kbi.OpRead, Response: RenderHex},
		{Name: "config commcred", Class: cmd, Code: 0x16 | kbi.OpWrite, Params: []Param{
			{Name: "credential", Type: TypeString},
		}, Response: RenderText},
		{Name: "show commcred", Class: cmd, Code: 0x16 | kbi.OpRead, Response: RenderText},
		{Name: "config joincred", Class: cmd, Code: 0x17 | kbi.OpWrite, Params: []Param{
			{Name: "credential", Type: TypeString},
		}, Response: RenderText},
		{Name: "show joincred", Class: cmd, Code: 0x17 | kbi.OpRead, Response: RenderText},
		{Name: "config joiner add", Class: cmd, Code: 0x18 | kbi.OpWrite, Params: []Param{
			{Name: "eui64", Type: TypeEUI64},
			{Name: "credential", Type: TypeString},
		}, Response: RenderEUI64},
		{Name: "config joiner remove all", Class: cmd, Code: 0x18 | kbi.OpDelete, Response: RenderEUI64},
		{Name: "config joiner remove", Class: cmd, Code: 0x18 | kbi.OpDelete, Params: []Param{
			{Name: "eui64", Type: TypeEUI64},
		}, Response: RenderEUI64},
		{Name: "show joiners", Class: cmd, Code: 0x18 | kbi.OpRead, Response: RenderEUI64},
		{Name: "config role", Class: cmd, Code: 0x19 | kbi.OpWrite, Params: []Param{
			{Name: "role", Type: TypeEnum, Enum: roleTokens},
		}, Response: RenderEnum, ResponseEnum: roleTokens},
		{Name: "show role", Class: cmd, Code: 0x19 | kbi.OpRead, Response: RenderEnum, ResponseEnum: roleTokens},
		{Name: "show rloc16", Class: cmd, Code: 0x1a | kbi.OpRead, Response: RenderHex},
		{Name: "config comm on", Class: cmd, Code: 0x1b | kbi.OpWrite},
		{Name: "config comm off", Class: cmd, Code: 0x1b | kbi.OpDelete},
		{Name: "config mlprefix", Class: cmd, Code: 0x1c | kbi.OpWrite, Params: []Param{
			{Name: "prefix", Type: TypeFixedBytes, Size: 8},
		}, Response: RenderAddr},
		{Name: "show mlprefix", Class: cmd, Code: 0x1c | kbi.OpRead, Response: RenderAddr},
		{Name: "config maxchild", Class: cmd, Code: 0x1d | kbi.OpWrite, Params: []Param{
			{Name: "count", Type: TypeUint8},
		}, Response: RenderDec},
		{Name: "show maxchild", Class: cmd, Code: 0x1d | kbi.OpRead, Response: RenderDec},
		{Name: "config timeout", Class: cmd, Code: 0x1e | kbi.OpWrite, Params: []Param{
			{Name: "seconds", Type: TypeUint32},
		}, Response: RenderDec},
		{Name: "show timeout", Class: cmd, Code: 0x1e | kbi.OpRead, Response: RenderDec},
		{Name: "config xpanfilt add", Class: cmd, Code: 0x1f | kbi.OpWrite, Params: []Param{
			{Name: "xpanid", Type: TypeHexBytes},
		}, Response: RenderHex},
		{Name: "config xpanfilt remove all", Class: cmd, Code: 0x1f | kbi.OpDelete, Response: RenderHex},
		{Name: "show xpanfilt", Class: cmd, Code: 0x1f | kbi.OpRead, Response: RenderHex},
		{Name: "config ipaddr add", Class: cmd, Code: 0x20 | kbi.OpWrite, Params: []Param{
			{Name: "address", Type: TypeAddr},
		}, Response: RenderAddr},
		{Name: "config ipaddr remove", Class: cmd, Code: 0x20 | kbi.OpDelete, Params: []Param{
			{Name: "address", Type: TypeAddr},
		}, Response: RenderAddr},
		{Name: "show ipaddr", Class: cmd, Code: 0x20 | kbi.OpRead, Response: RenderAddr},
		{Name: "show heui64", Class: cmd, Code: 0x22 | kbi.OpRead, Response: RenderEUI64},
		{Name: "config pollrate", Class: cmd, Code: 0x23 | kbi.OpWrite, Params: []Param{
			{Name: "milliseconds", Type: TypeUint32},
		}, Response: RenderDec},
		{Name: "show pollrate", Class: cmd, Code: 0x23 | kbi.OpRead, Response: RenderDec},
		{Name: "show parent", Class: cmd, Code: 0x28 | kbi.OpRead, Response: RenderHex},
		{Name: "show routert", Class: cmd, Code: 0x29 | kbi.OpRead, Response: RenderHex},
		{Name: "show ldrdata", Class: cmd, Code: 0x2a | kbi.OpRead, Response: RenderHex},
		{Name: "show netdata", Class: cmd, Code: 0x2b | kbi.OpRead, Response: RenderHex},
		{Name: "show stats", Class: cmd, Code: 0x2c | kbi.OpRead, Response: RenderHex},
		{Name: "show childt", Class: cmd, Code: 0x2d | kbi.OpRead, Response: RenderHex},
		{Name: "netcat", Class: cmd, Code: 0x2e | kbi.OpExec, Params: []Param{
			{Name: "sport", Type: TypeUint16},
			{Name: "dport", Type: TypeUint16},
			{Name: "destination", Type: TypeAddr},
			{Name: "data", Type: TypeHexBytes},
		}},
		{Name: "config hwmode", Class: cmd, Code: 0x30 | kbi.OpWrite, Params: []Param{
			{Name: "mode", Type: TypeUint8},
		}, Response: RenderDec},
		{Name: "show hwmode", Class: cmd, Code: 0x30 | kbi.OpRead, Response: RenderDec},
		{Name: "config led on", Class: cmd, Code: 0x31 | kbi.OpWrite},
		{Name: "config led off", Class: cmd, Code: 0x31 | kbi.OpDelete},
		{Name: "show led", Class: cmd, Code: 0x31 | kbi.OpRead, Response: RenderDec},
		{Name: "config vname", Class: cmd, Code: 0x32 | kbi.OpWrite, Params: []Param{
			{Name: "name", Type: TypeString},
		}, Response: RenderText},
		{Name: "show vname", Class: cmd, Code: 0x32 | kbi.OpRead, Response: RenderText},
		{Name: "config vmodel", Class: cmd, Code: 0x33 | kbi.OpWrite, Params: []Param{
			{Name: "model", Type: TypeString},
		}, Response: RenderText},
		{Name: "show vmodel", Class: cmd, Code: 0x33 | kbi.OpRead, Response: RenderText},
		{Name: "config vdata", Class: cmd, Code: 0x34 | kbi.OpWrite, Params: []Param{
			{Name: "data", Type: TypeString},
		}, Response: RenderText},
		{Name: "show vdata", Class: cmd, Code: 0x34 | kbi.OpRead, Response: RenderText},
		{Name: "config vswver", Class: cmd, Code: 0x35 | kbi.OpWrite, Params: []Param{
			{Name: "version", Type: TypeString},
		}, Response: RenderText},
		{Name: "show vswver", Class: cmd, Code: 0x35 | kbi.OpRead, Response: RenderText},
		{Name: "config actstamp", Class: cmd, Code: 0x36 | kbi.OpWrite, Params: []Param{
			{Name: "stamp", Type: TypeHexBytes},
		}, Response: RenderHex},
		{Name: "show actstamp", Class: cmd, Code: 0x36 | kbi.OpRead, Response: RenderHex},
		{Name: "fwu", Class: cmd, Code: 0x2f | kbi.OpWrite, Params: []Param{
			{Name: "block", Type: TypeHexBytes},
		}, Response: RenderHex},

		// Test harness commands (privileged class).
		{Name: "config provurl", Class: priv, Code: 0x00 | kbi.OpWrite, Params: []Param{
			{Name: "url", Type: TypeString},
		}},
		{Name: "show commsid", Class: priv, Code: 0x01 | kbi.OpRead, Response: RenderHex},
		{Name: "config seqctr", Class: priv, Code: 0x0b | kbi.OpWrite, Params: []Param{
			{Name: "counter", Type: TypeUint32},
		}, Response: RenderDec},
		{Name: "show seqctr", Class: priv, Code: 0x0b | kbi.OpRead, Response: RenderDec},
		{Name: "config seqguard", Class: priv, Code: 0x0c | kbi.OpWrite, Params: []Param{
			{Name: "guard", Type: TypeUint32},
		}},
		{Name: "config rotation", Class: priv, Code: 0x23 | kbi.OpWrite, Params: []Param{
			{Name: "hours", Type: TypeUint16},
		}},
	}

	c, err := New(entries)
	if err != nil {
		panic("catalog: builtin table: " + err.Error())
	}
	return c
}
