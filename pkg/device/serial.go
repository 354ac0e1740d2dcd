package device

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultVendorID is the USB vendor ID of supported devices, as
// reported by the OS port enumeration (hex, no 0x prefix).
const DefaultVendorID = "2DEF"

// DefaultBaudRate is the UART line rate used by KBI devices.
const DefaultBaudRate = 115200

// OpenSerial opens the serial port behind a device locator at the
// standard 8N1 framing and returns it as a Transport.
func OpenSerial(port string, baud int) (Transport, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", port, err)
	}
	return p, nil
}

// SerialEnumerator lists attached devices by scanning the OS serial
// port table and filtering on the vendor ID.
type SerialEnumerator struct {
	// VendorID filters ports by USB vendor ID. Empty means
	// DefaultVendorID.
	VendorID string
}

// ListDevices implements Enumerator.
func (e *SerialEnumerator) ListDevices() ([]Device, error) {
	vid := e.VendorID
	if vid == "" {
		vid = DefaultVendorID
	}

	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	// Ports enumerated with our USB vendor ID are CDC functions and
	// speak the text shell. Plain UART ports carry the binary
	// interface; they cannot be attributed to a vendor, so every
	// non-USB port is reported and the caller probes it.
	var devices []Device
	for _, p := range ports {
		switch {
		case p.IsUSB && strings.EqualFold(p.VID, vid):
			devices = append(devices, Device{
				ID:           p.SerialNumber,
				Port:         p.Name,
				Kind:         KindUSB,
				Capabilities: CapKSH | CapDFU | CapSniffer,
			})
		case !p.IsUSB:
			devices = append(devices, Device{
				ID:           p.Name,
				Port:         p.Name,
				Kind:         KindUART,
				Capabilities: CapKBI | CapDFU | CapSniffer,
			})
		}
	}
	return devices, nil
}

// Compile-time interface satisfaction check.
var _ Enumerator = (*SerialEnumerator)(nil)
