package capture

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Classic libpcap container constants. Big-endian on the wire;
// readers detect byte order from the magic.
const (
	pcapMagic        = 0xA1B2C3D4
	pcapVersionMajor = 2
	pcapVersionMinor = 4
	pcapSnapLen      = 0xFFFF

	// LinkType802154 is the pcap link type for IEEE 802.15.4 frames.
	LinkType802154 = 195
)

// Record is one captured radio frame.
type Record struct {
	// Payload is the frame as captured.
	Payload []byte

	// Timestamp is the frame's capture time.
	Timestamp time.Time

	// Channel is the radio channel the frame was captured on.
	Channel int

	// RSSI and LQI are the radio's signal-quality readings for the
	// frame. Zero when the firmware stream does not report them.
	RSSI int8
	LQI  uint8
}

// Sink receives capture output. A file and a pipe to a live viewer
// satisfy it equally.
type Sink interface {
	io.Writer

	// Flush pushes buffered bytes out, so a live viewer sees frames
	// as they arrive.
	Flush() error

	// Close finalizes the sink.
	Close() error
}

// FileSink writes capture output to a file.
type FileSink struct {
	f *os.File
	w *bufio.Writer
}

// NewFileSink creates (or truncates) the file at path.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	return &FileSink{f: f, w: bufio.NewWriter(f)}, nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *FileSink) Flush() error {
	return s.w.Flush()
}

func (s *FileSink) Close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// StreamSink adapts a plain writer (e.g. a pipe to a live viewer)
// into a Sink. Flush is a no-op unless the writer implements it;
// Close closes the writer when it is a closer.
type StreamSink struct {
	W io.Writer
}

func (s StreamSink) Write(p []byte) (int, error) {
	return s.W.Write(p)
}

func (s StreamSink) Flush() error {
	if f, ok := s.W.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (s StreamSink) Close() error {
	if c, ok := s.W.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ Sink = (*FileSink)(nil)
	_ Sink = StreamSink{}
)

// Writer serializes records into the pcap container: the global
// header once, then one record header plus payload per frame, in
// exactly the order records are written.
type Writer struct {
	sink          Sink
	headerWritten bool

	mu      sync.Mutex
	records int
}

// NewWriter returns a pcap writer over the sink. The global header
// is written by WriteHeader or lazily by the first record.
func NewWriter(sink Sink) *Writer {
	return &Writer{sink: sink}
}

// WriteHeader emits the pcap global header. Safe to call once only;
// subsequent records never re-emit it.
func (w *Writer) WriteHeader() error {
	if w.headerWritten {
		return nil
	}
	hdr := make([]byte, 24)
	binary.BigEndian.PutUint32(hdr[0:4], pcapMagic)
	binary.BigEndian.PutUint16(hdr[4:6], pcapVersionMajor)
	binary.BigEndian.PutUint16(hdr[6:8], pcapVersionMinor)
	// thiszone and sigfigs stay zero.
	binary.BigEndian.PutUint32(hdr[16:20], pcapSnapLen)
	binary.BigEndian.PutUint32(hdr[20:24], LinkType802154)
	if _, err := w.sink.Write(hdr); err != nil {
		return fmt.Errorf("write pcap header: %w", err)
	}
	w.headerWritten = true
	return nil
}

// WriteRecord appends one record and flushes it to the sink so live
// viewers keep up with the stream.
func (w *Writer) WriteRecord(rec Record) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}

	usec := rec.Timestamp.UnixMicro()
	hdr := make([]byte, 16)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(usec/1e6))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(usec%1e6))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(rec.Payload)))
	binary.BigEndian.PutUint32(hdr[12:16], uint32(len(rec.Payload)))

	if _, err := w.sink.Write(hdr); err != nil {
		return fmt.Errorf("write pcap record: %w", err)
	}
	if _, err := w.sink.Write(rec.Payload); err != nil {
		return fmt.Errorf("write pcap record: %w", err)
	}
	w.mu.Lock()
	w.records++
	w.mu.Unlock()
	return w.sink.Flush()
}

// Records returns how many records have been written.
func (w *Writer) Records() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Close flushes buffered bytes and finalizes the sink.
func (w *Writer) Close() error {
	return w.sink.Close()
}
