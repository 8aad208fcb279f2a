package calib

import "github.com/golang/glog"

// Chip clock limits in MHz. ClockMax is the clock of code 0xff.
const (
	ClockMin     = 2
	ClockMax     = 382
	DefaultClock = 328
)

// Priming clocks for the warm-up step. Jumping straight from the power-on
// clock to a far target is unreliable, so the chip is first moved to one of
// these depending on the side of 150 MHz the target lies on.
const (
	primingThreshold = 150
	primingHigh      = 165
	primingLow       = 139
)

// ClampClock limits clock to [ClockMin, ClockMax]. changed reports whether
// clock was out of range.
func ClampClock(clock int) (clamped int, changed bool) {
	switch {
	case clock > ClockMax:
		return ClockMax, true
	case clock < ClockMin:
		return ClockMin, true
	}
	return clock, false
}

// FreqToCode maps a clock in MHz to the frequency code of the command
// header, clamping out-of-range clocks with a warning.
func FreqToCode(clock int) byte {
	return byte(clampWarn(clock) * 2 / 3)
}

func clampWarn(clock int) int {
	clamped, changed := ClampClock(clock)
	if changed {
		if clock > ClockMax {
			glog.Warningf("Clock frequency %d too high, resetting to %d", clock, clamped)
		} else {
			glog.Warningf("Clock frequency %d too low, resetting to %d", clock, clamped)
		}
	}
	return clamped
}

// PrimingCode returns the frequency code pushed before the target clock.
func PrimingCode(target int) byte {
	if target > primingThreshold {
		return FreqToCode(primingHigh)
	}
	return FreqToCode(primingLow)
}

// EstimateSpeed computes the per-core hash rate of an untested chip at clock.
func EstimateSpeed(clock int) uint64 {
	return uint64(float64(clock) * 2 / 3 * 1024 / 8)
}
