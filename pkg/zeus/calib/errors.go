package calib

import (
	"errors"
	"fmt"
)

var (
	// ErrChipCount indicates the configured chip count is out of range.
	ErrChipCount = errors.New("invalid chip count")
	// ErrChipCountMax indicates the chip count mark is not a power of 2.
	ErrChipCountMax = errors.New("chips count max must be a power of 2")
	// ErrZeroSpeed indicates calibration measured no usable hash rate.
	ErrZeroSpeed = errors.New("golden speed per core is zero")
)

// SelfTestError is returned when the chain reports a wrong golden nonce.
type SelfTestError struct {
	Got  uint32
	Want uint32
}

// Error implements error.
func (e *SelfTestError) Error() string {
	return fmt.Sprintf("self-test failed: got %08x, should be: %08x", e.Got, e.Want)
}
