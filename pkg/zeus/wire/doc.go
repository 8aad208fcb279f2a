// Package wire provides Zeus ASIC wire protocol support.
package wire

// The host and the ASIC chain exchange two fixed-size packets over a serial
// link with no framing bytes and no checksum.
//
// Command packet (host -> chain), 84 bytes:
//
//	[freq][^freq][diff_hi][diff_lo][80 bytes of job data, reversed]
//
// Event packet (chain -> host), 4 bytes:
//
//	[nonce, big-endian]
//
// The nonce also carries the identity of the chip and core that found it,
// see ChipIndex and CoreIndex.
