package device

import (
	"context"

	fx "github.com/robotalks/zeus.go/pkg/framework"
	"github.com/robotalks/zeus.go/pkg/zeus/wire"
)

// MaxDifficulty is the highest share difficulty the chain accepts.
const MaxDifficulty = 32768

// Work is a unit of work supplied by the host.
type Work struct {
	// ID identifies the work to the host.
	ID uint64
	// Data is the 80-byte block header in host byte order.
	Data [wire.JobLen]byte
	// Difficulty is the share difficulty to search at.
	Difficulty float64
}

// DiffCode returns the encoded difficulty of the work.
func (w *Work) DiffCode() uint16 {
	diff := w.Difficulty
	if diff > MaxDifficulty {
		diff = MaxDifficulty
	}
	if diff < 1 {
		diff = 1
	}
	return wire.DiffCode(uint32(diff))
}

// Host supplies work and verifies nonces.
type Host interface {
	// GetWork returns the next work. It may block until work is available
	// or ctx is done.
	GetWork(ctx context.Context) (*Work, error)
	// SubmitNonce hands a nonce found for work to the host and reports
	// whether it is valid.
	SubmitNonce(work *Work, nonce uint32) bool
}

// Registry accepts detected devices.
type Registry interface {
	Register(Driver) error
}

// Driver is the capability set the host framework drives a device with.
type Driver interface {
	fx.Runnable
	fx.Named

	// Path returns the port path the device is attached to.
	Path() string
	// ScanWork returns the estimated hashes done since the previous call.
	ScanWork() int64
	// FlushWork abandons the current work.
	FlushWork()
	// Stats returns a statistics snapshot.
	Stats() Stats
	// ChipCounters returns the per-core nonce and error counts of chip.
	ChipCounters(chip int) (nonces, errs [wire.CoresPerChip]uint32)
	// Statline returns the short status prefix of the device.
	Statline() string
	// SetDevice applies a named setting; reply is non-empty for queries.
	SetDevice(option, setting string) (reply string, err error)
	// Shutdown stops the device and waits for Run to return.
	Shutdown()
}

// Phase tells detection whether it runs in the initial scan or a
// later hotplug scan. Failures are only reported loudly at startup.
type Phase int

// Detection phases.
const (
	PhaseStartup Phase = iota
	PhaseHotplug
)

// State is the state of the I/O loop.
type State int

// I/O loop states.
const (
	StateAwaitingJob State = iota
	StateJobSent
	StateWaitingResponse
	StateResponseReceived
	StateTimedOut
	StateIOError
	StateReopening
	StateShuttingDown
)

var stateNames = [...]string{
	StateAwaitingJob:      "awaiting-job",
	StateJobSent:          "job-sent",
	StateWaitingResponse:  "waiting-response",
	StateResponseReceived: "response-received",
	StateTimedOut:         "timed-out",
	StateIOError:          "io-error",
	StateReopening:        "reopening",
	StateShuttingDown:     "shutting-down",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
