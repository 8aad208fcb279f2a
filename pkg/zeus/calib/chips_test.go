package calib

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLowestPow2(t *testing.T) {
	for n := 1; n <= MaxChips; n++ {
		p := LowestPow2(n)
		require.True(t, p >= n, "n=%d", n)
		require.Zero(t, p&(p-1), "n=%d", n)
		if p > 1 {
			require.True(t, p/2 < n, "n=%d", n)
		}
	}
	require.Equal(t, 1, LowestPow2(0))
	require.Equal(t, MaxChips, LowestPow2(MaxChips+1))
	require.Equal(t, MaxChips, LowestPow2(1<<20))
}

func TestChipCountMax(t *testing.T) {
	var mark ChipCountMax
	require.Equal(t, 1, mark.Value())
	require.Equal(t, 8, mark.Raise(6))
	require.Equal(t, 8, mark.Raise(3))
	require.Equal(t, 8, mark.Raise(8))
	require.Equal(t, 32, mark.Raise(20))
	require.Equal(t, 32, mark.Raise(1))
	require.Equal(t, 32, mark.Value())
}

func TestNewDeviceConfig(t *testing.T) {
	var mark ChipCountMax
	cfg, err := NewDeviceConfig(6, DefaultClock, &mark)
	require.NoError(t, err)
	require.Equal(t, DeviceConfig{
		Baud:         BaudRate,
		CoresPerChip: 8,
		ChipCount:    6,
		ChipCountMax: 8,
		ChipBitCount: 3,
		ClockMHz:     DefaultClock,
	}, cfg)

	// a smaller chain detected later keeps the mark
	cfg, err = NewDeviceConfig(1, 1000, &mark)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.ChipCountMax)
	require.Equal(t, 3, cfg.ChipBitCount)
	require.Equal(t, ClockMax, cfg.ClockMHz)

	_, err = NewDeviceConfig(0, DefaultClock, &mark)
	require.True(t, errors.Is(err, ErrChipCount))
	_, err = NewDeviceConfig(MaxChips+1, DefaultClock, &mark)
	require.True(t, errors.Is(err, ErrChipCount))
}

func TestFreqToCode(t *testing.T) {
	require.Equal(t, FreqToCode(ClockMax), FreqToCode(ClockMax+1))
	require.Equal(t, FreqToCode(ClockMin), FreqToCode(ClockMin-1))
	require.Equal(t, byte(0xfe), FreqToCode(ClockMax))
	require.Equal(t, byte(1), FreqToCode(ClockMin))
	require.Equal(t, byte(218), FreqToCode(DefaultClock))
	prev := FreqToCode(ClockMin)
	for clock := ClockMin + 1; clock <= ClockMax; clock++ {
		code := FreqToCode(clock)
		require.True(t, code >= prev, "clock=%d", clock)
		prev = code
	}
}

func TestPrimingCode(t *testing.T) {
	require.Equal(t, FreqToCode(165), PrimingCode(151))
	require.Equal(t, FreqToCode(139), PrimingCode(150))
	require.Equal(t, FreqToCode(139), PrimingCode(ClockMin))
}

func TestEstimateSpeed(t *testing.T) {
	require.Equal(t, uint64(27989), EstimateSpeed(DefaultClock))
	require.Zero(t, EstimateSpeed(0))
}
