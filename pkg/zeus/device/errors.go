package device

import "errors"

var (
	// ErrReopen indicates the port could not be reopened; the device is
	// shut down.
	ErrReopen = errors.New("reopen failed")
	// ErrWakeClosed indicates the wake-up signal was closed under the
	// running loop.
	ErrWakeClosed = errors.New("wake-up signal closed")
	// ErrRunning indicates Run was called on a device already running.
	ErrRunning = errors.New("device already running")
	// ErrFrequencyRange indicates a requested clock out of range.
	ErrFrequencyRange = errors.New("frequency out of range")
	// ErrDuplicate indicates a device on the same path is registered.
	ErrDuplicate = errors.New("device already registered")
)
