package wire

import "encoding/hex"

// Golden self-test vectors. Both are complete command packets in wire
// order; only their 4-byte header is rewritten before sending.
var (
	// GoldenTest is the job whose first nonce is known in advance.
	GoldenTest = mustPacket("55aa0001" +
		"00038000063b0b1b028f32535e900609c15dc49a42b1d8492a6dd4f8f15295c9" +
		"89a1decf584a6aa93be26066d3185f55ef635b5865a7a79b7fa74121a6bb819d" +
		"a416328a9bd2f8cef72794bf02000000")

	// GoldenWarmup is used to step the chip clock before the test.
	GoldenWarmup = mustPacket("55aa00ff" +
		"c00278894532091be6f16a5381ad33619dacb9e6a4a6e79956aac97b51112bfb" +
		"93dc450b8fc765181a344b6244d42d78625f5c39463bbfdc10405ff711dc1222" +
		"dd065b015ac9c2c66e28da7202000000")
)

const (
	// GoldenNonce is the nonce every healthy chain reports for GoldenTest.
	// On the wire it reads 00 03 8d 26.
	GoldenNonce uint32 = 0x00038d26
	// GoldenHashes is the number of hashes a single core computes before
	// reaching GoldenNonce.
	GoldenHashes = 0xd26
	// goldenDiffCode is the fixed difficulty code of the self-test packets.
	goldenDiffCode uint16 = 0x0001
)

// GoldenCommand returns vector with its header set for freqCode.
func GoldenCommand(vector CommandPacket, freqCode byte) CommandPacket {
	vector.setHeader(freqCode, goldenDiffCode)
	return vector
}

func mustPacket(s string) (p CommandPacket) {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	if len(b) != CommandPacketLen {
		panic("wire: golden vector has wrong size")
	}
	copy(p[:], b)
	return
}
