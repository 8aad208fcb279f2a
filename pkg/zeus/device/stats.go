package device

import (
	"fmt"
	"math"
	"time"

	"github.com/robotalks/zeus.go/pkg/zeus/wire"
)

// Stats is a statistics snapshot of a Device.
type Stats struct {
	DeviceName      string        `json:"device_name"`
	State           string        `json:"state"`
	Open            bool          `json:"open"`
	KHSCore         float64       `json:"khs_core"`
	KHSChip         float64       `json:"khs_chip"`
	KHSBoard        float64       `json:"khs_board"`
	Frequency       int           `json:"frequency"`
	CoresPerChip    int           `json:"cores_per_chip"`
	ChipCount       int           `json:"chips_count"`
	CurrentWorkTime time.Duration `json:"current_work_time"`
	WorkTimeout     time.Duration `json:"work_timeout"`
	WorkDone        uint64        `json:"work_done"`
	Timeouts        uint64        `json:"timeouts"`
	Debug           *DebugStats   `json:"debug,omitempty"`
}

// DebugStats are reported when the device runs in debug mode.
type DebugStats struct {
	ChipCountMax int    `json:"chips_count_max"`
	ChipBitCount int    `json:"chips_bit_num"`
	ReadCount    int    `json:"read_count"`
	FreqCode     byte   `json:"freqcode"`
	Measured     bool   `json:"measured"`
	GoldenSpeed  uint64 `json:"golden_speed_per_core"`
}

// Stats implements Driver.
func (d *Device) Stats() Stats {
	d.lock.Lock()
	defer d.lock.Unlock()
	khsCore := float64(d.cal.GoldenSpeedPerCore) / 1000
	st := Stats{
		DeviceName:   d.name,
		State:        d.state.String(),
		Open:         d.open.Load(),
		KHSCore:      khsCore,
		KHSChip:      khsCore * float64(d.cfg.CoresPerChip),
		KHSBoard:     khsCore * float64(d.cfg.CoresPerChip*d.cfg.ChipCount),
		Frequency:    d.clock,
		CoresPerChip: d.cfg.CoresPerChip,
		ChipCount:    d.cfg.ChipCount,
		WorkTimeout:  d.cal.WorkTimeout,
		WorkDone:     d.workDone,
		Timeouts:     d.timeouts,
	}
	if d.current != nil && d.sent {
		st.CurrentWorkTime = time.Since(d.workStart)
	}
	if d.Debug {
		st.Debug = &DebugStats{
			ChipCountMax: d.cfg.ChipCountMax,
			ChipBitCount: d.cfg.ChipBitCount,
			ReadCount:    d.cal.ReadCount,
			FreqCode:     d.freqCode,
			Measured:     d.cal.Measured,
			GoldenSpeed:  d.cal.GoldenSpeedPerCore,
		}
	}
	return st
}

// ChipCounters returns the nonce counts per core of chip, and the counts
// of those the host rejected.
func (d *Device) ChipCounters(chip int) (nonces, errs [wire.CoresPerChip]uint32) {
	if chip < 0 || chip >= wire.MaxChips {
		return
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.nonceCount[chip], d.errorCount[chip]
}

// ScanWork implements Driver. The estimate is the elapsed time since the
// previous call at the calibrated rate, capped at 32 bits.
func (d *Device) ScanWork() int64 {
	d.lock.Lock()
	defer d.lock.Unlock()
	now := time.Now()
	elapsed := now.Sub(d.scanworkTime)
	d.scanworkTime = now
	hashes := elapsed.Seconds() * float64(d.cfg.Hashes(d.cal.GoldenSpeedPerCore))
	if hashes > math.MaxUint32 {
		hashes = math.MaxUint32
	}
	return int64(hashes)
}

// Statline implements Driver.
func (d *Device) Statline() string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return fmt.Sprintf("%-9s  %4d MHz  ", d.name, d.clock)
}
