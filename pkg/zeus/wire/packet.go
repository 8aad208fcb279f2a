package wire

import (
	"encoding/binary"
	"fmt"
)

// Packet sizes.
const (
	JobLen           = 80
	CommandHeaderLen = 4
	CommandPacketLen = CommandHeaderLen + JobLen
	EventPacketLen   = 4
)

// MaxDiffCode is the encoded value of difficulty 1.
const MaxDiffCode uint16 = 0xffff

// DiffCode converts a share difficulty into the 16-bit code of the
// command header. Difficulties below 1 are treated as 1.
func DiffCode(diff uint32) uint16 {
	if diff < 1 {
		diff = 1
	}
	return uint16(uint32(MaxDiffCode) / diff)
}

// CommandPacket is an encoded host to chain command.
type CommandPacket [CommandPacketLen]byte

// EncodeCommand builds a command packet carrying job at the given clock
// code and difficulty code. The job is placed in wire order, i.e. reversed.
func EncodeCommand(freqCode byte, diffCode uint16, job [JobLen]byte) CommandPacket {
	var p CommandPacket
	p.setHeader(freqCode, diffCode)
	for i := 0; i < JobLen; i++ {
		p[CommandHeaderLen+i] = job[JobLen-1-i]
	}
	return p
}

func (p *CommandPacket) setHeader(freqCode byte, diffCode uint16) {
	p[0], p[1] = freqCode, ^freqCode
	binary.BigEndian.PutUint16(p[2:CommandHeaderLen], diffCode)
}

// FreqCode returns the clock code of the packet.
func (p *CommandPacket) FreqCode() byte {
	return p[0]
}

// HeaderValid checks the clock code complement byte.
func (p *CommandPacket) HeaderValid() bool {
	return p[1] == ^p[0]
}

// DiffCode returns the encoded difficulty of the packet.
func (p *CommandPacket) DiffCode() uint16 {
	return binary.BigEndian.Uint16(p[2:CommandHeaderLen])
}

// Job recovers the job in host byte order.
func (p *CommandPacket) Job() (job [JobLen]byte) {
	for i := 0; i < JobLen; i++ {
		job[i] = p[CommandPacketLen-1-i]
	}
	return
}

// Bytes returns encoded bytes for sending.
func (p *CommandPacket) Bytes() []byte {
	return p[:]
}

// String implements fmt.Stringer.
func (p *CommandPacket) String() string {
	return fmt.Sprintf("%x", p[:])
}

// EventPacket is a chain to host event carrying a nonce.
type EventPacket [EventPacketLen]byte

// Nonce decodes the nonce.
func (p EventPacket) Nonce() uint32 {
	return binary.BigEndian.Uint32(p[:])
}

// NewEventPacket encodes a nonce as an event packet.
func NewEventPacket(nonce uint32) (p EventPacket) {
	binary.BigEndian.PutUint32(p[:], nonce)
	return
}

// DecodeEvent decodes the nonce from a received event buffer. The buffer
// must be exactly EventPacketLen bytes.
func DecodeEvent(b []byte) uint32 {
	if len(b) != EventPacketLen {
		panic(fmt.Sprintf("wire: event buffer is %d bytes, want %d", len(b), EventPacketLen))
	}
	var p EventPacket
	copy(p[:], b)
	return p.Nonce()
}
