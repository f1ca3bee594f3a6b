// Package wave turns DCC packets into timed half-transitions and back.
package wave

import (
	"sync/atomic"

	"commandstation-go/services/station/internal/halcore"
	"commandstation-go/services/station/internal/packet"
)

// Signal is the output stage the encoder drives. Dual-inverted drivers
// complement the second pin inside SetSignal.
type Signal interface {
	SetSignal(high bool)
}

// Source hands the encoder its next packet. Next is called from interrupt
// context and must not block.
type Source interface {
	Next() (packet.Packet, bool)
}

type state uint8

const (
	statePreamble state = iota
	stateStart
	stateData
	stateSeparator
	stateEnd
)

// Encoder is owned by the interrupt context. Apart from the Refused counter,
// none of its fields may be touched from anywhere else.
type Encoder struct {
	out      Signal
	timer    halcore.Timer
	src      Source
	timing   Timing
	preamble uint8

	st      state
	pkt     packet.Packet
	byteIdx int
	mask    byte
	left    uint8 // preamble ones still to send, including the one on the wire
	bit     bool  // bit currently on the wire
	second  bool  // second (low) half is next

	refused atomic.Uint32
}

// NewEncoder starts in the preamble with a one bit on the wire.
func NewEncoder(out Signal, timer halcore.Timer, src Source, t Timing, preamble uint8) *Encoder {
	return &Encoder{
		out:      out,
		timer:    timer,
		src:      src,
		timing:   t,
		preamble: preamble,
		st:       statePreamble,
		left:     preamble,
		bit:      true,
	}
}

// Step performs exactly one half-transition and arms the timer for the half
// that starts now. It never inspects elapsed time: a late call resumes from
// the stored phase.
func (e *Encoder) Step() {
	d := e.timing.Half(e.bit)
	if !e.second {
		e.out.SetSignal(true)
		e.second = true
		e.timer.Arm(d)
		return
	}
	e.out.SetSignal(false)
	e.second = false
	e.timer.Arm(d)
	e.advance()
}

// advance selects the bit that follows the one just completed.
func (e *Encoder) advance() {
	switch e.st {
	case statePreamble:
		if e.left > 0 {
			e.left--
		}
		if e.left == 0 && e.load() {
			e.st = stateStart
			e.bit = false
			return
		}
		e.bit = true // preamble, or idle ones until a packet arrives

	case stateStart, stateSeparator:
		e.st = stateData
		e.mask = 0x80
		e.bit = e.pkt.At(e.byteIdx)&e.mask != 0

	case stateData:
		e.mask >>= 1
		if e.mask != 0 {
			e.bit = e.pkt.At(e.byteIdx)&e.mask != 0
			return
		}
		e.byteIdx++
		if e.byteIdx == e.pkt.Len() {
			e.st = stateEnd
			e.bit = true
			return
		}
		e.st = stateSeparator
		e.bit = false

	case stateEnd:
		e.st = statePreamble
		e.left = e.preamble
		e.bit = true
	}
}

func (e *Encoder) load() bool {
	if e.src == nil {
		return false
	}
	p, ok := e.src.Next()
	if !ok {
		return false
	}
	if p.Validate() != nil {
		e.refused.Add(1)
		return false
	}
	e.pkt = p
	e.byteIdx = 0
	return true
}

// Refused counts malformed packets skipped in favour of idle. Safe to read
// from the main loop.
func (e *Encoder) Refused() uint32 { return e.refused.Load() }

