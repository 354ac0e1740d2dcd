// Package firmware parses firmware image files carrying the 16-byte
// DFU suffix and slices them into transfer chunks.
//
// The suffix sits at the end of the file, little-endian:
//
//	firmware version (2) · product ID (2) · vendor ID (2) ·
//	DFU spec (2) · signature "UFD" (3) · suffix length (1) · CRC-32 (4)
//
// The CRC covers the whole file except its own four bytes. Parsing
// rejects a bad signature, suffix length or checksum up front, so a
// flash session never starts transferring a corrupt image.
package firmware
