package device

// TransportKind distinguishes how a device is attached.
type TransportKind uint8

const (
	// KindUSB is a USB CDC attachment (text shell, DFU flashing).
	KindUSB TransportKind = 0
	// KindUART is a UART attachment (KBI binary protocol).
	KindUART TransportKind = 1
)

// String returns the transport kind name.
func (k TransportKind) String() string {
	switch k {
	case KindUSB:
		return "USB"
	case KindUART:
		return "UART"
	default:
		return "UNKNOWN"
	}
}

// Capability is a bitmask of interfaces a device exposes.
type Capability uint8

const (
	// CapKSH is the human-readable command shell.
	CapKSH Capability = 1 << iota
	// CapKBI is the binary command protocol.
	CapKBI
	// CapDFU is the firmware update protocol.
	CapDFU
	// CapSniffer is the radio capture interface.
	CapSniffer
)

// Has reports whether all capabilities in want are present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// Device describes one physical unit. It is created by an Enumerator
// and borrowed by protocol sessions; operations on a disconnected
// device fail with a transport error.
type Device struct {
	// ID is the stable identifier (serial number or EUI-64 string).
	ID string

	// Port is the platform locator of the endpoint (serial port path
	// or USB descriptor).
	Port string

	// Kind selects the attachment type and therefore the flashing
	// primitive.
	Kind TransportKind

	// Capabilities lists the interfaces the device exposes.
	Capabilities Capability
}

// Transport is a raw byte pipe to one device endpoint. Read blocks
// until data is available or the transport is closed. A Transport is
// owned by exactly one session: one read loop plus serialized writers.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Enumerator lists attached devices. Discovery lives outside the
// protocol core; implementations query the OS serial/USB layer.
type Enumerator interface {
	ListDevices() ([]Device, error)
}
