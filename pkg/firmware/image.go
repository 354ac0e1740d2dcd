package firmware

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
)

// SuffixSize is the length of the DFU file suffix in bytes.
const SuffixSize = 16

// signature is the suffix marker, "DFU" reversed.
var signature = []byte{'U', 'F', 'D'}

// Image parsing errors.
var (
	// ErrTooSmall indicates a file shorter than the suffix.
	ErrTooSmall = errors.New("file too small for DFU suffix")

	// ErrBadSuffix indicates a missing or malformed suffix.
	ErrBadSuffix = errors.New("bad DFU suffix")

	// ErrBadChecksum indicates the file CRC does not match the suffix.
	ErrBadChecksum = errors.New("image checksum mismatch")
)

// Image is a parsed and checksum-verified firmware file.
type Image struct {
	// Data is the firmware payload, suffix stripped.
	Data []byte

	// FirmwareVersion is the image's firmware revision.
	FirmwareVersion uint16

	// ProductID is the target product, 0xFFFF for any.
	ProductID uint16

	// VendorID is the target vendor, 0xFFFF for any.
	VendorID uint16

	// DFUSpec is the DFU specification release the suffix follows.
	DFUSpec uint16

	// CRC is the suffix checksum, already verified by Parse.
	CRC uint32
}

// Parse validates the suffix and checksum of a firmware file.
func Parse(data []byte) (*Image, error) {
	if len(data) < SuffixSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooSmall, len(data))
	}

	suffix := data[len(data)-SuffixSize:]
	if !bytes.Equal(suffix[8:11], signature) {
		return nil, fmt.Errorf("%w: signature % X", ErrBadSuffix, suffix[8:11])
	}
	if suffix[11] != SuffixSize {
		return nil, fmt.Errorf("%w: suffix length %d", ErrBadSuffix, suffix[11])
	}

	// The DFU checksum is CRC-32 without the final inversion, over
	// everything but its own field.
	stored := binary.LittleEndian.Uint32(suffix[12:16])
	computed := ^crc32.ChecksumIEEE(data[:len(data)-4])
	if stored != computed {
		return nil, fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", ErrBadChecksum, stored, computed)
	}

	return &Image{
		Data:            data[:len(data)-SuffixSize],
		FirmwareVersion: binary.LittleEndian.Uint16(suffix[0:2]),
		ProductID:       binary.LittleEndian.Uint16(suffix[2:4]),
		VendorID:        binary.LittleEndian.Uint16(suffix[4:6]),
		DFUSpec:         binary.LittleEndian.Uint16(suffix[6:8]),
		CRC:             stored,
	}, nil
}

// Load reads and parses a firmware file.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read firmware file: %w", err)
	}
	img, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Verify recomputes the file checksum from the payload and suffix.
// Parse already verified it once; flash sessions re-check right
// before a transfer so a corrupted in-memory image never reaches a
// device.
func (img *Image) Verify() error {
	file := make([]byte, 0, len(img.Data)+SuffixSize)
	file = append(file, img.Data...)
	file = append(file, img.Suffix()...)
	computed := ^crc32.ChecksumIEEE(file[:len(file)-4])
	if computed != img.CRC {
		return fmt.Errorf("%w: stored 0x%08x, computed 0x%08x", ErrBadChecksum, img.CRC, computed)
	}
	return nil
}

// CompatibleWith reports whether the image targets the given vendor
// and product. 0xFFFF in the suffix is a wildcard.
func (img *Image) CompatibleWith(vendorID, productID uint16) bool {
	if img.VendorID != 0xFFFF && img.VendorID != vendorID {
		return false
	}
	if img.ProductID != 0xFFFF && img.ProductID != productID {
		return false
	}
	return true
}

// Chunks slices the payload into transfer blocks of the given size.
// The final chunk may be shorter; a payload of exactly n*size bytes
// yields n chunks.
func (img *Image) Chunks(size int) [][]byte {
	if size <= 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(img.Data)+size-1)/size)
	for off := 0; off < len(img.Data); off += size {
		end := off + size
		if end > len(img.Data) {
			end = len(img.Data)
		}
		chunks = append(chunks, img.Data[off:end])
	}
	return chunks
}

// Suffix rebuilds the 16-byte suffix for the image. Used by the
// emulator and by tooling that regenerates firmware files.
func (img *Image) Suffix() []byte {
	suffix := make([]byte, SuffixSize)
	binary.LittleEndian.PutUint16(suffix[0:2], img.FirmwareVersion)
	binary.LittleEndian.PutUint16(suffix[2:4], img.ProductID)
	binary.LittleEndian.PutUint16(suffix[4:6], img.VendorID)
	binary.LittleEndian.PutUint16(suffix[6:8], img.DFUSpec)
	copy(suffix[8:11], signature)
	suffix[11] = SuffixSize
	binary.LittleEndian.PutUint32(suffix[12:16], img.CRC)
	return suffix
}
