// Package log provides structured protocol logging for the KBI stack.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (framing, KBI, KSH, flash,
// capture). It is separate from operational logging (slog) - protocol
// capture provides a complete machine-readable event trace for debugging
// device communication.
//
// # Basic Usage
//
// Components accept a Logger; pass nil or NoopLogger to disable capture:
//
//	// For development: log to console via slog
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	logger, _ := log.NewFileLogger("/var/log/kbi/trace.klog")
//
//	// Both: use MultiLogger
//	logger := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Framing: raw frame bytes before/after byte stuffing (FrameEvent)
//   - KBI: decoded commands, responses and notifications (MessageEvent)
//   - Flash/Capture: session state changes (StateChangeEvent)
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Log files use CBOR encoding with .klog extension; Reader streams them
// back with optional filtering.
package log
