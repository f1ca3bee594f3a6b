// Package power supervises one track's output current: it samples the sense
// input on a fixed cadence, smooths it, cuts power on overcurrent and retries
// after a configured interval.
package power

import (
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/physic"

	"commandstation-go/errcode"
	"commandstation-go/services/station/internal/halcore"
)

// Output is the power-enable stage under supervision.
type Output interface {
	SetPower(on bool)
	PowerOn() bool
}

type Config struct {
	Trigger        physic.ElectricCurrent
	SampleInterval time.Duration
	RetryInterval  time.Duration
	Smoothing      float32 // α in (0,1]
	Scale          Scale
}

func (c Config) Validate() error {
	switch {
	case c.Trigger <= 0:
		return errcode.Invalid("power", "trigger must be positive")
	case c.SampleInterval < time.Millisecond:
		return errcode.Invalid("power", "sample interval below 1ms")
	case c.RetryInterval < time.Millisecond:
		return errcode.Invalid("power", "retry interval below 1ms")
	case !(c.Smoothing > 0 && c.Smoothing <= 1):
		return errcode.Invalid("power", "smoothing must be in (0,1]")
	case c.Scale.MilliampsPerCount <= 0:
		return errcode.Invalid("power", "scale missing")
	}
	return nil
}

// Edge reports a state change made by Check.
type Edge uint8

const (
	NoEdge Edge = iota
	TripEdge
	RetryEdge
)

// State is the supervisor state as seen by status readers.
type State uint8

const (
	Off State = iota
	Normal
	Tripped
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Tripped:
		return "tripped"
	}
	return "off"
}

// Supervisor is driven from the main loop only. The query methods read
// atomic snapshots and are safe from any context.
type Supervisor struct {
	cfg    Config
	out    Output
	sensor halcore.Sensor

	sampleMs int64
	retryMs  int64

	enabled   bool
	tripped   bool
	sampled   bool
	lastCheck int64
	lastTrip  int64
	reading   float32

	state   atomic.Uint32
	current atomic.Int64
	trips   atomic.Uint32
}

func New(cfg Config, out Output, sensor halcore.Sensor) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if out == nil || sensor == nil {
		return nil, errcode.Invalid("power", "output and sensor required")
	}
	return &Supervisor{
		cfg:      cfg,
		out:      out,
		sensor:   sensor,
		sampleMs: cfg.SampleInterval.Milliseconds(),
		retryMs:  cfg.RetryInterval.Milliseconds(),
	}, nil
}

// Check takes a sample when the sample interval has elapsed since the last
// one and applies the trip and retry rules to the smoothed current.
func (s *Supervisor) Check(nowMs int64) Edge {
	if s.sampled && nowMs-s.lastCheck < s.sampleMs {
		return NoEdge
	}
	s.lastCheck = nowMs

	raw := float32(s.sensor.ReadRaw())
	if !s.sampled {
		s.reading = raw
		s.sampled = true
	} else {
		a := s.cfg.Smoothing
		s.reading = raw*a + s.reading*(1-a)
	}
	cur := s.cfg.Scale.Current(s.reading)
	s.current.Store(int64(cur))

	switch {
	case !s.tripped && cur > s.cfg.Trigger && s.out.PowerOn():
		s.out.SetPower(false)
		s.tripped = true
		s.lastTrip = nowMs
		s.trips.Add(1)
		s.publish()
		return TripEdge
	case s.tripped && cur < s.cfg.Trigger && nowMs-s.lastTrip > s.retryMs:
		s.out.SetPower(true)
		s.tripped = false
		s.publish()
		return RetryEdge
	}
	return NoEdge
}

// SetEnabled is operator power control. Turning off clears a trip and stops
// retries until power is turned on again.
func (s *Supervisor) SetEnabled(on bool) {
	s.enabled = on
	s.tripped = false
	s.out.SetPower(on)
	s.publish()
}

func (s *Supervisor) publish() {
	st := Off
	switch {
	case s.tripped:
		st = Tripped
	case s.enabled:
		st = Normal
	}
	s.state.Store(uint32(st))
}

func (s *Supervisor) State() State { return State(s.state.Load()) }

// Powered reports whether the operator has power on and no trip is active.
func (s *Supervisor) Powered() bool { return s.State() == Normal }

func (s *Supervisor) Tripped() bool { return s.State() == Tripped }

// Current is the last smoothed sample.
func (s *Supervisor) Current() physic.ElectricCurrent {
	return physic.ElectricCurrent(s.current.Load())
}

// Trips counts Normal to Tripped transitions since construction.
func (s *Supervisor) Trips() uint32 { return s.trips.Load() }

func (s *Supervisor) Config() Config { return s.cfg }
