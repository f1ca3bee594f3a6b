// Package queue feeds the waveform encoder.
//
// One-shot packets travel through a single-producer/single-consumer ring: the
// main loop is the only producer, the track interrupt the only consumer. Each
// refresh register is one atomic word holding a packed packet, so the
// interrupt never observes a half-written packet.
package queue

import (
	"sync/atomic"

	"commandstation-go/errcode"
	"commandstation-go/services/station/internal/packet"
)

const (
	// Capacity is the one-shot ring size (power of two).
	Capacity = 16
	mask     = Capacity - 1

	// MaxRepeats bounds how often one submission is transmitted.
	MaxRepeats = 8
)

type slot struct {
	word    uint64
	repeats uint8
}

type Queue struct {
	ring [Capacity]slot
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	// Reset publishes a new floor for rd and bumps gen; the consumer applies
	// both on its next call.
	floor atomic.Uint32
	gen   atomic.Uint32

	regs []atomic.Uint64

	// consumer-only
	seenGen uint32
	cur     packet.Packet
	curLeft uint8
	cursor  int
}

// New returns a queue with registers refresh registers, numbered 1..registers.
func New(registers int) *Queue {
	if registers < 0 {
		registers = 0
	}
	q := &Queue{regs: make([]atomic.Uint64, registers)}
	q.cursor = registers - 1
	return q
}

// ---- Producer side (main loop) ----

func (q *Queue) head() uint32 {
	rd := q.rd.Load()
	if f := q.floor.Load(); int32(f-rd) > 0 {
		return f
	}
	return rd
}

// Enqueue appends p for repeats transmissions (0 means once). A full ring
// rejects the new packet; nothing already queued is overwritten.
func (q *Queue) Enqueue(p packet.Packet, repeats uint8) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if repeats == 0 {
		repeats = 1
	}
	if repeats > MaxRepeats {
		return errcode.Invalid("enqueue", "repeats above 8")
	}
	wr := q.wr.Load()
	if wr-q.head() >= Capacity {
		return errcode.QueueFull
	}
	q.ring[wr&mask] = slot{word: p.Word(), repeats: repeats}
	q.wr.Store(wr + 1)
	return nil
}

// Refresh loads or replaces register reg.
func (q *Queue) Refresh(reg int, p packet.Packet) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := q.checkReg(reg); err != nil {
		return err
	}
	q.regs[reg-1].Store(p.Word())
	return nil
}

// Forget clears register reg.
func (q *Queue) Forget(reg int) error {
	if err := q.checkReg(reg); err != nil {
		return err
	}
	q.regs[reg-1].Store(0)
	return nil
}

// Flush clears every refresh register.
func (q *Queue) Flush() {
	for i := range q.regs {
		q.regs[i].Store(0)
	}
}

// Reset drops pending one-shots, including repeats still owed on the packet
// in flight, and clears every register.
func (q *Queue) Reset() {
	q.Flush()
	q.floor.Store(q.wr.Load())
	q.gen.Add(1)
}

func (q *Queue) checkReg(reg int) error {
	if reg < 1 || reg > len(q.regs) {
		return errcode.Invalid("register", "out of range")
	}
	return nil
}

// Pending is the number of one-shots not yet started.
func (q *Queue) Pending() int { return int(q.wr.Load() - q.head()) }

// Active is the number of loaded refresh registers.
func (q *Queue) Active() int {
	n := 0
	for i := range q.regs {
		if q.regs[i].Load() != 0 {
			n++
		}
	}
	return n
}

// Registers is the register count.
func (q *Queue) Registers() int { return len(q.regs) }

// ---- Consumer side (interrupt context) ----

// Next yields the packet to transmit: a repeat still owed on the current
// one-shot, else the next one-shot, else the next loaded refresh register in
// round-robin order. It never blocks and never allocates.
func (q *Queue) Next() (packet.Packet, bool) {
	if g := q.gen.Load(); g != q.seenGen {
		q.seenGen = g
		q.curLeft = 0
		if f := q.floor.Load(); int32(f-q.rd.Load()) > 0 {
			q.rd.Store(f)
		}
	}

	if q.curLeft > 0 {
		q.curLeft--
		return q.cur, true
	}

	rd := q.rd.Load()
	if rd != q.wr.Load() {
		s := q.ring[rd&mask]
		q.rd.Store(rd + 1)
		q.cur = packet.FromWord(s.word)
		q.curLeft = s.repeats - 1
		return q.cur, true
	}

	n := len(q.regs)
	for i := 0; i < n; i++ {
		q.cursor++
		if q.cursor >= n {
			q.cursor = 0
		}
		if w := q.regs[q.cursor].Load(); w != 0 {
			return packet.FromWord(w), true
		}
	}
	return packet.Packet{}, false
}
