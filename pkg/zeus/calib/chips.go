package calib

import (
	"fmt"
	"sync"

	"github.com/robotalks/zeus.go/pkg/zeus/wire"
)

// Fixed hardware parameters.
const (
	BaudRate         = 115200
	CoresPerChip     = wire.CoresPerChip
	MaxChips         = wire.MaxChips
	DefaultChipCount = 6
)

// LowestPow2 returns the smallest power of two not less than n, up to
// MaxChips.
func LowestPow2(n int) int {
	for i := 1; i < MaxChips; i *= 2 {
		if n <= i {
			return i
		}
	}
	return MaxChips
}

func log2(v int) int {
	var x int
	for v > 1 {
		v >>= 1
		x++
	}
	return x
}

// ChipCountMax is the process-wide high-water mark of chain sizes. Chips
// are addressed by the same number of nonce bits across all devices, so the
// mark only ever grows: a detection pass with a smaller chain never lowers
// it. The zero value is ready to use.
type ChipCountMax struct {
	lock  sync.Mutex
	value int
}

// Raise raises the mark to cover chipCount and returns the current mark.
func (m *ChipCountMax) Raise(chipCount int) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.value < 1 {
		m.value = 1
	}
	if chipCount > m.value {
		m.value = LowestPow2(chipCount)
	}
	return m.value
}

// Value returns the current mark.
func (m *ChipCountMax) Value() int {
	return m.Raise(0)
}

// DeviceConfig is the immutable configuration of a detected chain.
type DeviceConfig struct {
	Baud         int
	CoresPerChip int
	ChipCount    int
	ChipCountMax int
	ChipBitCount int
	ClockMHz     int
}

// NewDeviceConfig builds the config of a chain with chipCount chips to run
// at clock MHz, raising the mark as needed.
func NewDeviceConfig(chipCount, clock int, mark *ChipCountMax) (DeviceConfig, error) {
	if chipCount < 1 || chipCount > MaxChips {
		return DeviceConfig{}, fmt.Errorf("%w: %d", ErrChipCount, chipCount)
	}
	countMax := mark.Raise(chipCount)
	if countMax&(countMax-1) != 0 {
		return DeviceConfig{}, fmt.Errorf("%w: %d", ErrChipCountMax, countMax)
	}
	clock = clampWarn(clock)
	return DeviceConfig{
		Baud:         BaudRate,
		CoresPerChip: CoresPerChip,
		ChipCount:    chipCount,
		ChipCountMax: countMax,
		ChipBitCount: log2(countMax),
		ClockMHz:     clock,
	}, nil
}

// Hashes returns the hash rate of the chain for speed per core.
func (c DeviceConfig) Hashes(speed uint64) uint64 {
	return speed * uint64(c.CoresPerChip) * uint64(c.ChipCount)
}
