//go:build !rp2040

package platform

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"commandstation-go/errcode"
	"commandstation-go/services/station/internal/halcore"
	"commandstation-go/types"
)

// ----------------------------- Pins (host) -----------------------------------

// MaxPins bounds the simulated pin space.
const MaxPins = 64

// Edge is one recorded pin write.
type Edge struct {
	AtNs  int64
	Level bool
}

// FakeIO implements halcore.IO in memory. Levels are atomics so the main loop
// and the simulated interrupt may touch pins concurrently. Writes to traced
// pins are recorded with the virtual time of the write.
type FakeIO struct {
	now func() int64

	level     [MaxPins]atomic.Bool
	output    [MaxPins]atomic.Bool
	analogCfg [MaxPins]atomic.Bool
	analog    [MaxPins]atomic.Uint32

	tracing atomic.Bool
	mu      sync.Mutex
	traced  map[int][]Edge
}

func NewFakeIO(now func() int64) *FakeIO {
	if now == nil {
		now = func() int64 { return 0 }
	}
	return &FakeIO{now: now, traced: map[int][]Edge{}}
}

func valid(pin int) bool { return pin >= 0 && pin < MaxPins }

func (f *FakeIO) ConfigureOutput(pin int, initial bool) error {
	if !valid(pin) {
		return errcode.UnknownPin
	}
	f.output[pin].Store(true)
	f.set(pin, initial)
	return nil
}

func (f *FakeIO) ConfigureAnalog(pin int) error {
	if !valid(pin) {
		return errcode.UnknownPin
	}
	f.analogCfg[pin].Store(true)
	return nil
}

func (f *FakeIO) SetPin(pin int, level bool) {
	if valid(pin) {
		f.set(pin, level)
	}
}

func (f *FakeIO) set(pin int, level bool) {
	f.level[pin].Store(level)
	if !f.tracing.Load() {
		return
	}
	f.mu.Lock()
	if h, ok := f.traced[pin]; ok {
		f.traced[pin] = append(h, Edge{AtNs: f.now(), Level: level})
	}
	f.mu.Unlock()
}

func (f *FakeIO) GetPin(pin int) bool {
	return valid(pin) && f.level[pin].Load()
}

func (f *FakeIO) ReadAnalog(pin int) uint16 {
	if !valid(pin) {
		return 0
	}
	return uint16(f.analog[pin].Load())
}

// SetAnalog sets the value ReadAnalog returns for pin.
func (f *FakeIO) SetAnalog(pin int, v uint16) {
	if valid(pin) {
		f.analog[pin].Store(uint32(v))
	}
}

func (f *FakeIO) IsOutput(pin int) bool { return valid(pin) && f.output[pin].Load() }
func (f *FakeIO) IsAnalog(pin int) bool { return valid(pin) && f.analogCfg[pin].Load() }

// Trace starts recording writes to pins.
func (f *FakeIO) Trace(pins ...int) {
	f.mu.Lock()
	for _, p := range pins {
		if _, ok := f.traced[p]; !ok {
			f.traced[p] = nil
		}
	}
	f.mu.Unlock()
	f.tracing.Store(true)
}

// History returns a copy of the writes recorded for pin.
func (f *FakeIO) History(pin int) []Edge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Edge(nil), f.traced[pin]...)
}

// ClearHistory drops recorded writes but keeps tracing on.
func (f *FakeIO) ClearHistory() {
	f.mu.Lock()
	for p := range f.traced {
		f.traced[p] = nil
	}
	f.mu.Unlock()
}

// ----------------------------- Clock (host) ----------------------------------

// ManualClock is a virtual monotonic clock in nanoseconds.
type ManualClock struct{ ns atomic.Int64 }

func (c *ManualClock) NowNs() int64 { return c.ns.Load() }
func (c *ManualClock) NowMs() int64 { return c.ns.Load() / int64(time.Millisecond) }

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) { c.ns.Add(int64(d)) }

func (c *ManualClock) set(ns int64) { c.ns.Store(ns) }

// ----------------------------- Timer (host) ----------------------------------

// VirtualTimer is a one-shot compare timer in virtual time. Arm counts from
// the previous deadline, so handler latency does not shift the grid; a
// deadline already in the past restarts the grid from now.
type VirtualTimer struct {
	clock    *ManualClock
	deadline int64
	armed    bool
	fired    uint64
	late     uint32
}

func (v *VirtualTimer) Arm(d time.Duration) {
	now := v.clock.NowNs()
	next := v.deadline + int64(d)
	if next <= now {
		next = now + int64(d)
		if v.fired > 0 {
			v.late++
		}
	}
	v.deadline = next
	v.armed = true
}

func (v *VirtualTimer) fire(isr func()) {
	v.armed = false
	v.fired++
	isr()
}

func (v *VirtualTimer) Deadline() (int64, bool) { return v.deadline, v.armed }

// Fired counts expiries delivered.
func (v *VirtualTimer) Fired() uint64 { return v.fired }

// Late counts re-arms that had to restart from now.
func (v *VirtualTimer) Late() uint32 { return v.late }

// ----------------------------- Sensor (host) ---------------------------------

// SimSensor is a settable raw current reading.
type SimSensor struct{ raw atomic.Uint32 }

func (s *SimSensor) Set(raw uint16)  { s.raw.Store(uint32(raw)) }
func (s *SimSensor) ReadRaw() uint16 { return uint16(s.raw.Load()) }

// ----------------------------- Board (host) ----------------------------------

// Sim is the host board. Time only moves through Advance, or through a wall
// clock pump when RealTime is set before Start.
type Sim struct {
	IO *FakeIO

	RealTime bool
	Tick     time.Duration

	clock   ManualClock
	timers  [Slots]VirtualTimer
	sensors [Slots]SimSensor
	sense   [Slots]types.SenseConfig

	mu       sync.Mutex
	dispatch func(int)
}

func NewSim() *Sim {
	s := &Sim{Tick: time.Millisecond}
	s.IO = NewFakeIO(s.clock.NowNs)
	for i := range s.timers {
		s.timers[i].clock = &s.clock
	}
	return s
}

// Default returns the board for this build: a wall-clock driven simulation.
func Default() Board {
	s := NewSim()
	s.RealTime = true
	return s
}

func (s *Sim) Name() string { return "host_sim" }

func (s *Sim) Hardware(slot int, cfg types.TrackConfig) (halcore.Hardware, error) {
	if slot < 0 || slot >= Slots {
		return halcore.Hardware{}, errcode.UnknownTrack
	}
	s.sense[slot] = cfg.Sense
	hw := halcore.Hardware{IO: s.IO, Timer: &s.timers[slot], Clock: &s.clock}
	if cfg.Sense.Kind != types.SenseAnalog {
		hw.Sensor = &s.sensors[slot]
	}
	return hw, nil
}

func (s *Sim) Clock() halcore.Clock { return &s.clock }

// ManualClock exposes the virtual clock for tests.
func (s *Sim) ManualClock() *ManualClock { return &s.clock }

func (s *Sim) Timer(slot int) *VirtualTimer { return &s.timers[slot] }

// SetRaw sets the raw current reading seen by the track in slot, on whichever
// sense path it was configured with.
func (s *Sim) SetRaw(slot int, raw uint16) {
	if s.sense[slot].Kind == types.SenseAnalog {
		s.IO.SetAnalog(s.sense[slot].Pin, raw)
		return
	}
	s.sensors[slot].Set(raw)
}

func (s *Sim) Start(ctx context.Context, dispatch func(slot int)) error {
	s.mu.Lock()
	s.dispatch = dispatch
	s.mu.Unlock()
	if !s.RealTime {
		return nil
	}
	go s.pump(ctx)
	return nil
}

func (s *Sim) pump(ctx context.Context) {
	tick := s.Tick
	if tick <= 0 {
		tick = time.Millisecond
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.Advance(now.Sub(last))
			last = now
		}
	}
}

// Advance moves virtual time forward by d, delivering every timer expiry on
// the way in deadline order.
func (s *Sim) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.clock.NowNs() + int64(d)
	for {
		slot, at := -1, int64(0)
		for i := range s.timers {
			t := &s.timers[i]
			if t.armed && t.deadline <= target && (slot < 0 || t.deadline < at) {
				slot, at = i, t.deadline
			}
		}
		if slot < 0 {
			break
		}
		s.clock.set(at)
		s.timers[slot].fire(func() { s.deliver(slot) })
	}
	s.clock.set(target)
}

// FireLate delivers slot's pending expiry late by latency, as a delayed
// interrupt would. Virtual time ends at the late delivery point.
func (s *Sim) FireLate(slot int, latency time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &s.timers[slot]
	if !t.armed {
		return false
	}
	s.clock.set(t.deadline + int64(latency))
	t.fire(func() { s.deliver(slot) })
	return true
}

func (s *Sim) deliver(slot int) {
	if s.dispatch != nil {
		s.dispatch(slot)
	}
}
