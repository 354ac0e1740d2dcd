package flash

import (
	"fmt"
	"time"
)

// State is the flash session lifecycle state.
type State uint8

const (
	// StateIdle means the session has not started.
	StateIdle State = iota
	// StatePreparing validates the image and readies the device.
	StatePreparing
	// StateTransferring sends image chunks.
	StateTransferring
	// StateVerifying awaits the device's final image check.
	StateVerifying
	// StateComplete is the terminal success state.
	StateComplete
	// StateFailed is the terminal failure state.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePreparing:
		return "PREPARING"
	case StateTransferring:
		return "TRANSFERRING"
	case StateVerifying:
		return "VERIFYING"
	case StateComplete:
		return "COMPLETE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// FailureReason classifies why a session failed.
type FailureReason uint8

const (
	// ReasonIncompatibleImage: the image failed checksum validation
	// or targets different hardware. Nothing was written.
	ReasonIncompatibleImage FailureReason = iota
	// ReasonDeviceRejected: the device refused to start the update.
	ReasonDeviceRejected
	// ReasonTransferError: a chunk could not be delivered within the
	// retry budget, or the transport failed mid-transfer.
	ReasonTransferError
	// ReasonVerificationError: the device reported an image checksum
	// mismatch after transfer.
	ReasonVerificationError
)

// String returns the reason name.
func (r FailureReason) String() string {
	switch r {
	case ReasonIncompatibleImage:
		return "incompatible image"
	case ReasonDeviceRejected:
		return "device rejected"
	case ReasonTransferError:
		return "transfer error"
	case ReasonVerificationError:
		return "verification error"
	default:
		return "unknown"
	}
}

// FlashError is the terminal error of a failed session. Callers
// branch on Reason; Err carries the underlying cause.
type FlashError struct {
	Reason FailureReason
	Err    error
}

func (e *FlashError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason.String()
}

func (e *FlashError) Unwrap() error {
	return e.Err
}

// failure builds a FlashError.
func failure(reason FailureReason, err error) *FlashError {
	return &FlashError{Reason: reason, Err: err}
}

// Config holds the transfer tunables. Chunk sizing and retry budgets
// are vendor-specific, so they are configuration with documented
// defaults rather than constants.
type Config struct {
	// ChunkSize is the transfer block size in bytes.
	ChunkSize int

	// ChunkRetries is how many times one chunk is resent before the
	// session fails with TransferError.
	ChunkRetries int

	// RetryDelay is the pause before a chunk is resent.
	RetryDelay time.Duration
}

// DefaultConfig returns the standard transfer configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    64,
		ChunkRetries: 5,
		RetryDelay:   5 * time.Second,
	}
}
