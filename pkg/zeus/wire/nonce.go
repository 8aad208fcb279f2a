package wire

// Chain geometry limits.
const (
	// MaxChips is the largest chain the nonce can address (10 chip bits).
	MaxChips = 1024
	// CoresPerChip is fixed by the chip generation.
	CoresPerChip = 8
	// MaxChipBits is log2(MaxChips).
	MaxChipBits = 10
)

const (
	chipFieldMask  uint32 = 0x1ff80000 // bits 19-28
	chipFieldShift        = 29
	coreShift             = 29
)

// ChipIndex extracts the index of the chip which found nonce on a chain
// addressed with bitCount chip bits.
//
// The chip address is interleaved into bits 19-28 of the nonce in reverse
// order: the bitCount highest bits of the field are read LSB first to form
// the index MSB first.
func ChipIndex(nonce uint32, bitCount int) uint32 {
	if bitCount <= 0 {
		return 0
	}
	if bitCount > MaxChipBits {
		bitCount = MaxChipBits
	}
	value := (nonce & chipFieldMask) >> uint(chipFieldShift-bitCount)
	var index uint32
	for i := 0; i < bitCount; i++ {
		index = index<<1 | value&1
		value >>= 1
	}
	return index
}

// CoreIndex extracts the core which found nonce from its 3 highest bits.
func CoreIndex(nonce uint32) uint32 {
	return nonce >> coreShift
}

// Locate resolves the chip and core of nonce and checks both against the
// counter table bounds. ok is false for a garbled event; the indices must
// not be used in that case.
func Locate(nonce uint32, bitCount, maxChips int) (chip, core int, ok bool) {
	if maxChips > MaxChips {
		maxChips = MaxChips
	}
	c, k := ChipIndex(nonce, bitCount), CoreIndex(nonce)
	if int(c) >= maxChips || k >= CoresPerChip {
		return 0, 0, false
	}
	return int(c), int(k), true
}
