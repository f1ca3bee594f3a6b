// Package packet holds the DCC packet value type and builders for the
// packets the station generates itself.
//
// A Packet is a fixed-size value (no heap) so it can be copied in and out of
// interrupt context freely. It packs into a single 64-bit word for lock-free
// exchange between the main loop and the encoder.
package packet

import "commandstation-go/errcode"

// MaxLen is the longest packet NMRA allows, checksum included.
const MaxLen = 6

// MinLen is one address/instruction byte plus the checksum.
const MinLen = 2

type Packet struct {
	b [MaxLen]byte
	n uint8
}

// New copies raw (checksum included) into a Packet and validates it.
func New(raw ...byte) (Packet, error) {
	var p Packet
	if len(raw) > MaxLen {
		return p, errcode.PacketTooLong
	}
	p.n = uint8(copy(p.b[:], raw))
	if err := p.Validate(); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// WithChecksum appends the XOR checksum to body.
func WithChecksum(body ...byte) (Packet, error) {
	if len(body) >= MaxLen {
		return Packet{}, errcode.PacketTooLong
	}
	if len(body) < MinLen-1 {
		return Packet{}, errcode.PacketTooShort
	}
	var p Packet
	p.n = uint8(copy(p.b[:], body))
	p.b[p.n] = Checksum(body)
	p.n++
	return p, nil
}

// Checksum is the XOR of all bytes.
func Checksum(b []byte) byte {
	var x byte
	for _, v := range b {
		x ^= v
	}
	return x
}

// Validate checks length and checksum. It runs in bounded time and does not
// allocate, so the encoder may call it from interrupt context.
func (p Packet) Validate() error {
	if p.n < MinLen {
		return errcode.PacketTooShort
	}
	if p.n > MaxLen {
		return errcode.PacketTooLong
	}
	var x byte
	for i := uint8(0); i < p.n-1; i++ {
		x ^= p.b[i]
	}
	if x != p.b[p.n-1] {
		return errcode.BadChecksum
	}
	return nil
}

func (p Packet) Len() int { return int(p.n) }

// At returns byte i; callers stay within Len.
func (p Packet) At(i int) byte { return p.b[i] }

// Bytes returns a copy of the packet bytes.
func (p Packet) Bytes() []byte {
	out := make([]byte, p.n)
	copy(out, p.b[:p.n])
	return out
}

// Word packs the packet into one word: bytes 0..5 in the low 48 bits, length
// in bits 48..55. The zero word is the empty packet.
func (p Packet) Word() uint64 {
	var w uint64
	for i := 0; i < MaxLen; i++ {
		w |= uint64(p.b[i]) << (8 * i)
	}
	return w | uint64(p.n)<<48
}

// FromWord is the inverse of Word.
func FromWord(w uint64) Packet {
	var p Packet
	for i := 0; i < MaxLen; i++ {
		p.b[i] = byte(w >> (8 * i))
	}
	p.n = uint8(w >> 48)
	if p.n > MaxLen {
		p.n = 0
	}
	return p
}
