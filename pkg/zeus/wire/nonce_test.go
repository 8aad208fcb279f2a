package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChipIndex(t *testing.T) {
	testCases := []struct {
		name   string
		nonce  uint32
		bits   int
		expect uint32
	}{
		{"single chip", 0xffffffff, 0, 0},
		{"one bit set", 0x10000000, 1, 1},
		{"one bit clear", 0xefffffff, 1, 0},
		{"two bits high", 0x10000000, 2, 1},
		{"two bits low", 0x08000000, 2, 2},
		{"three bits", 0x1c000000, 3, 7},
		{"ignores core bits", 0xe0000000, 3, 0},
		{"ignores low bits", 0x0007ffff, 10, 0},
		{"ten bits", 0x00080000, 10, 0x200},
		{"ten bits msb", 0x10000000, 10, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, ChipIndex(tc.nonce, tc.bits))
			// pure function
			require.Equal(t, ChipIndex(tc.nonce, tc.bits), ChipIndex(tc.nonce, tc.bits))
		})
	}
}

func TestChipIndexZeroBits(t *testing.T) {
	for _, nonce := range []uint32{0, 1, 0x1ff80000, 0xffffffff, GoldenNonce} {
		require.Equal(t, uint32(0), ChipIndex(nonce, 0))
	}
}

func TestChipIndexRange(t *testing.T) {
	for bits := 0; bits <= MaxChipBits; bits++ {
		for _, nonce := range []uint32{0x1ff80000, 0x12345678, 0xdeadbeef, 0x0abcdef0} {
			require.True(t, ChipIndex(nonce, bits) < uint32(1)<<uint(bits) || bits == 0)
		}
	}
}

func TestCoreIndex(t *testing.T) {
	require.Equal(t, uint32(0), CoreIndex(0x1fffffff))
	require.Equal(t, uint32(1), CoreIndex(0x20000000))
	require.Equal(t, uint32(7), CoreIndex(0xe0000000))
	require.Equal(t, uint32(0), CoreIndex(GoldenNonce))
}

func TestLocate(t *testing.T) {
	chip, core, ok := Locate(0xa8000000, 2, 4)
	require.True(t, ok)
	require.Equal(t, 2, chip)
	require.Equal(t, 5, core)

	_, _, ok = Locate(0x08000000, 2, 2)
	require.False(t, ok)

	chip, core, ok = Locate(GoldenNonce, 0, 1)
	require.True(t, ok)
	require.Zero(t, chip)
	require.Zero(t, core)
}
