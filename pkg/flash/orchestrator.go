package flash

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kbi-protocol/kbi-go/pkg/firmware"
	"github.com/kbi-protocol/kbi-go/pkg/log"
)

// Result is one device's final outcome.
type Result struct {
	// SessionID identifies the session that produced this result.
	SessionID uuid.UUID

	// State is the terminal state (Complete or Failed).
	State State

	// Err is the *FlashError of a failed session, nil on success.
	Err error
}

// Orchestrator flashes a batch of devices concurrently, one
// independent session per device.
type Orchestrator struct {
	cfg    Config
	logger log.Logger

	// Progress, when set, is called per device after every
	// acknowledged chunk.
	Progress func(deviceID string, sent, total int)
}

// NewOrchestrator builds an orchestrator with shared transfer
// configuration. The logger may be nil.
func NewOrchestrator(cfg Config, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Orchestrator{cfg: cfg, logger: logger}
}

// FlashAll runs one session per target and collects every outcome.
// The result map always holds an entry per target: failures are
// reported per device, never as an all-or-nothing error.
func (o *Orchestrator) FlashAll(ctx context.Context, img *firmware.Image, targets []Target) map[string]Result {
	results := make(map[string]Result, len(targets))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target Target) {
			defer wg.Done()

			session := NewSession(target, o.cfg, o.logger)
			if o.Progress != nil {
				session.Progress = func(sent, total int) {
					o.Progress(target.DeviceID, sent, total)
				}
			}
			err := session.Run(ctx, img)

			mu.Lock()
			results[target.DeviceID] = Result{
				SessionID: session.ID(),
				State:     session.State(),
				Err:       err,
			}
			mu.Unlock()
		}(target)
	}
	wg.Wait()
	return results
}
