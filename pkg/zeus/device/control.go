package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/robotalks/zeus.go/pkg/zeus/calib"
)

// FlushWork implements Driver.
func (d *Device) FlushWork() {
	d.lock.Lock()
	if d.current != nil {
		glog.V(2).Infof("%s: flushing work %d", d, d.current.ID)
	}
	d.purgeLocked()
	d.lock.Unlock()
	d.wake.Notify()
}

// AbortWork abandons the current work, same as FlushWork.
func (d *Device) AbortWork() {
	d.FlushWork()
}

// SetFrequency stages a new clock in MHz, applied when the next work is
// sent.
func (d *Device) SetFrequency(mhz int) error {
	if mhz < calib.ClockMin || mhz > calib.ClockMax {
		return fmt.Errorf("%w: %d not in %d-%d", ErrFrequencyRange, mhz, calib.ClockMin, calib.ClockMax)
	}
	d.lock.Lock()
	d.pendingClock = mhz
	d.lock.Unlock()
	glog.V(1).Infof("%s: frequency %d MHz pending", d, mhz)
	return nil
}

// SetDevice implements Driver. Options are help, freq and abortwork.
func (d *Device) SetDevice(option, setting string) (string, error) {
	switch {
	case strings.EqualFold(option, "help"):
		return fmt.Sprintf("freq: range %d-%d, abortwork: true/false", calib.ClockMin, calib.ClockMax), nil
	case strings.EqualFold(option, "freq"):
		if setting == "" {
			return "", errors.New("missing freq setting")
		}
		mhz, err := strconv.Atoi(setting)
		if err != nil || d.SetFrequency(mhz) != nil {
			return "", fmt.Errorf("invalid freq: '%s' valid range %d-%d", setting, calib.ClockMin, calib.ClockMax)
		}
		return "", nil
	case strings.EqualFold(option, "abortwork"):
		if setting == "" {
			return "", errors.New("missing true/false")
		}
		if !strings.EqualFold(setting, "true") {
			return "", errors.New("not aborting current work")
		}
		d.AbortWork()
		return "", nil
	}
	return "", fmt.Errorf("Unknown option: %s", option)
}
