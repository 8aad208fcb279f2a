package relay

import (
	"encoding/binary"

	"golang.org/x/crypto/scrypt"

	"github.com/robotalks/zeus.go/pkg/zeus/device"
	"github.com/robotalks/zeus.go/pkg/zeus/wire"
)

// scrypt parameters of the chip.
const (
	scryptN      = 1024
	scryptR      = 1
	scryptP      = 1
	scryptKeyLen = 32

	nonceOffset = wire.JobLen - 4
	// diff1Target is the top 32 bits of the difficulty 1 target.
	diff1Target = 0x0000ffff
)

// Hash returns the scrypt hash of the header of work with nonce in place.
func Hash(work *device.Work, nonce uint32) ([]byte, error) {
	header := work.Data
	binary.LittleEndian.PutUint32(header[nonceOffset:], nonce)
	return scrypt.Key(header[:], header[:], scryptN, scryptR, scryptP, scryptKeyLen)
}

// Target returns the top 32 bits of the target of difficulty.
func Target(difficulty float64) uint32 {
	if difficulty < 1 {
		difficulty = 1
	}
	return uint32(diff1Target / difficulty)
}

// Check reports whether the hash of work with nonce meets its target,
// comparing the top 32 bits of the little endian hash.
func Check(work *device.Work, nonce uint32) bool {
	hash, err := Hash(work, nonce)
	if err != nil {
		return false
	}
	return binary.LittleEndian.Uint32(hash[28:]) <= Target(work.Difficulty)
}
