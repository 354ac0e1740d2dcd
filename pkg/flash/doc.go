// Package flash drives firmware updates: a per-device state machine
// from Preparing through Transferring and Verifying to Complete, with
// a Failed side path carrying a typed reason.
//
// The transfer itself is delegated to a ChunkSender, so the same
// state machine and retry policy serve both update paths: block
// transfer over the binary serial protocol (KBISender) and USB DFU
// download (DFUSender). Chunks are flow-controlled, never pipelined:
// each send waits for its acknowledgment, and a NAK or timeout
// retries that chunk a bounded number of times before the session
// fails with TransferError.
//
// Orchestrator runs one session per device concurrently and
// aggregates a per-device result map; one device's failure never
// aborts its siblings.
package flash
