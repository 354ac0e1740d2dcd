package firmware

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"
)

// buildFile assembles a firmware file: payload, suffix and a correct
// checksum over everything but the CRC field.
func buildFile(payload []byte, fwVersion, pid, vid uint16) []byte {
	file := make([]byte, 0, len(payload)+SuffixSize)
	file = append(file, payload...)

	suffix := make([]byte, SuffixSize)
	binary.LittleEndian.PutUint16(suffix[0:2], fwVersion)
	binary.LittleEndian.PutUint16(suffix[2:4], pid)
	binary.LittleEndian.PutUint16(suffix[4:6], vid)
	binary.LittleEndian.PutUint16(suffix[6:8], 0x0100)
	copy(suffix[8:11], []byte("UFD"))
	suffix[11] = SuffixSize
	file = append(file, suffix...)

	crc := ^crc32.ChecksumIEEE(file[:len(file)-4])
	binary.LittleEndian.PutUint32(file[len(file)-4:], crc)
	return file
}

func TestParse(t *testing.T) {
	payload := bytes.Repeat([]byte{0xA5}, 200)
	img, err := Parse(buildFile(payload, 0x0102, 0x0003, 0x2DEF))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(img.Data, payload) {
		t.Error("payload does not match input")
	}
	if img.FirmwareVersion != 0x0102 || img.ProductID != 0x0003 || img.VendorID != 0x2DEF {
		t.Errorf("suffix fields = %04x/%04x/%04x", img.FirmwareVersion, img.ProductID, img.VendorID)
	}
	if img.DFUSpec != 0x0100 {
		t.Errorf("DFUSpec = %04x, want 0100", img.DFUSpec)
	}
}

func TestParseErrors(t *testing.T) {
	good := buildFile([]byte{1, 2, 3}, 1, 1, 0x2DEF)

	badSignature := append([]byte(nil), good...)
	copy(badSignature[len(badSignature)-8:], []byte("XXX"))

	badLength := append([]byte(nil), good...)
	badLength[len(badLength)-5] = 32
	// Fix the CRC so only the length byte is at fault.
	crc := ^crc32.ChecksumIEEE(badLength[:len(badLength)-4])
	binary.LittleEndian.PutUint32(badLength[len(badLength)-4:], crc)

	badCRC := append([]byte(nil), good...)
	badCRC[0] ^= 0xFF

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"too small", []byte{1, 2, 3}, ErrTooSmall},
		{"bad signature", badSignature, ErrBadSuffix},
		{"bad suffix length", badLength, ErrBadSuffix},
		{"corrupted payload", badCRC, ErrBadChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("Parse: got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCompatibleWith(t *testing.T) {
	img := &Image{VendorID: 0x2DEF, ProductID: 0x0003}
	tests := []struct {
		name     string
		img      *Image
		vid, pid uint16
		want     bool
	}{
		{"exact match", img, 0x2DEF, 0x0003, true},
		{"wrong vendor", img, 0x1234, 0x0003, false},
		{"wrong product", img, 0x2DEF, 0x0004, false},
		{"wildcard product", &Image{VendorID: 0x2DEF, ProductID: 0xFFFF}, 0x2DEF, 0x0099, true},
		{"wildcard both", &Image{VendorID: 0xFFFF, ProductID: 0xFFFF}, 0x1111, 0x2222, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.img.CompatibleWith(tt.vid, tt.pid); got != tt.want {
				t.Errorf("CompatibleWith(%04x, %04x) = %v, want %v", tt.vid, tt.pid, got, tt.want)
			}
		})
	}
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		chunkSize int
		wantCount int
		wantLast  int
	}{
		{"exact multiple", 128, 64, 2, 64},
		{"remainder", 130, 64, 3, 2},
		{"single short", 10, 64, 1, 10},
		{"empty", 0, 64, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := &Image{Data: make([]byte, tt.size)}
			chunks := img.Chunks(tt.chunkSize)
			if len(chunks) != tt.wantCount {
				t.Fatalf("chunks = %d, want %d", len(chunks), tt.wantCount)
			}
			if tt.wantCount > 0 && len(chunks[len(chunks)-1]) != tt.wantLast {
				t.Errorf("last chunk = %d bytes, want %d", len(chunks[len(chunks)-1]), tt.wantLast)
			}
		})
	}

	if (&Image{Data: []byte{1}}).Chunks(0) != nil {
		t.Error("non-positive chunk size should yield nil")
	}
}

func TestSuffixRebuild(t *testing.T) {
	file := buildFile([]byte{9, 8, 7}, 0x0201, 0x0003, 0x2DEF)
	img, err := Parse(file)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(img.Suffix(), file[len(file)-SuffixSize:]) {
		t.Error("rebuilt suffix differs from original")
	}
}
