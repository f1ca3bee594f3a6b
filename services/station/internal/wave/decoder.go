package wave

import (
	"time"

	"commandstation-go/services/station/internal/packet"
)

type dstate uint8

const (
	dHunt dstate = iota
	dData
	dAfterByte
)

// Decoder reassembles packets from half-transitions, the way a decoder on the
// rails would. It is used to verify the encoder and by the simulator.
type Decoder struct {
	split       time.Duration // halves shorter than this are "one" halves
	minPreamble int

	haveFirst bool
	firstOne  bool

	st       dstate
	ones     int
	preamble int
	cur      byte
	nbits    int
	buf      [packet.MaxLen]byte
	n        int

	errors int
}

func NewDecoder(t Timing, minPreamble int) *Decoder {
	return &Decoder{split: (t.One + t.Zero) / 2, minPreamble: minPreamble}
}

// Feed consumes one half-transition. It returns a packet when an end bit
// closes a packet whose checksum is valid.
func (d *Decoder) Feed(high bool, dur time.Duration) (packet.Packet, bool) {
	one := dur < d.split
	if high {
		if d.haveFirst {
			d.fail() // two highs in a row
		}
		d.haveFirst = true
		d.firstOne = one
		return packet.Packet{}, false
	}
	if !d.haveFirst {
		return packet.Packet{}, false // resync on the next high
	}
	d.haveFirst = false
	if one != d.firstOne {
		d.fail()
		return packet.Packet{}, false
	}
	return d.bit(one)
}

func (d *Decoder) bit(one bool) (packet.Packet, bool) {
	switch d.st {
	case dHunt:
		if one {
			d.ones++
			return packet.Packet{}, false
		}
		if d.ones >= d.minPreamble {
			d.preamble = d.ones
			d.st = dData
			d.n, d.nbits, d.cur = 0, 0, 0
		}
		d.ones = 0

	case dData:
		d.cur <<= 1
		if one {
			d.cur |= 1
		}
		d.nbits++
		if d.nbits < 8 {
			return packet.Packet{}, false
		}
		if d.n == len(d.buf) {
			d.fail()
			return packet.Packet{}, false
		}
		d.buf[d.n] = d.cur
		d.n++
		d.st = dAfterByte

	case dAfterByte:
		if !one {
			d.st = dData
			d.nbits, d.cur = 0, 0
			return packet.Packet{}, false
		}
		d.st = dHunt
		d.ones = 0
		p, err := packet.New(d.buf[:d.n]...)
		if err != nil {
			d.errors++
			return packet.Packet{}, false
		}
		return p, true
	}
	return packet.Packet{}, false
}

func (d *Decoder) fail() {
	d.errors++
	d.st = dHunt
	d.ones = 0
	d.haveFirst = false
}

// Preamble is the number of ones that preceded the last packet.
func (d *Decoder) Preamble() int { return d.preamble }

// Errors counts framing and checksum failures.
func (d *Decoder) Errors() int { return d.errors }
