// Package track composes one physical DCC output: its driver, packet queue,
// waveform encoder and power supervisor.
//
// Two contexts touch a Track. The platform timer vector calls
// InterruptHandler; the station main loop calls everything else.
package track

import (
	"math"

	"periph.io/x/conn/v3/physic"

	"commandstation-go/drivers/ina219"
	"commandstation-go/errcode"
	"commandstation-go/services/station/internal/halcore"
	"commandstation-go/services/station/internal/packet"
	"commandstation-go/services/station/internal/power"
	"commandstation-go/services/station/internal/queue"
	"commandstation-go/services/station/internal/wave"
	"commandstation-go/types"
	"commandstation-go/x/mathx"
)

// ID is the registry slot of a track.
type ID uint8

const (
	Main ID = iota
	Prog

	MaxTracks = 2
)

// IDFor maps a role onto its registry slot.
func IDFor(r types.TrackRole) ID {
	if r == types.RoleProg {
		return Prog
	}
	return Main
}

func (id ID) String() string { return types.TrackRole(id).String() }

const maxPreamble = 40

// Default refresh register counts.
const (
	DefaultMainRegisters = 50
	DefaultProgRegisters = 2
)

type Track struct {
	id   ID
	name string
	cfg  types.TrackConfig
	hw   halcore.Hardware

	drv    *Driver
	q      *queue.Queue
	enc    *wave.Encoder
	sup    *power.Supervisor
	timing wave.Timing
}

// WithDefaults fills unset timing, preamble and register fields for role.
func WithDefaults(cfg types.TrackConfig) types.TrackConfig {
	if cfg.OneHalf == 0 {
		cfg.OneHalf = wave.DefaultTiming.One
	}
	if cfg.ZeroHalf == 0 {
		cfg.ZeroHalf = wave.DefaultTiming.Zero
	}
	if cfg.PreambleBits == 0 {
		cfg.PreambleBits = 16
		if cfg.Role == types.RoleProg {
			cfg.PreambleBits = 22
		}
	}
	if cfg.Registers == 0 {
		cfg.Registers = DefaultMainRegisters
		if cfg.Role == types.RoleProg {
			cfg.Registers = DefaultProgRegisters
		}
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Role.String()
	}
	return cfg
}

// New validates cfg (after defaults) and wires the track onto hw. Nothing is
// driven until Start.
func New(id ID, cfg types.TrackConfig, hw halcore.Hardware) (*Track, error) {
	if id >= MaxTracks {
		return nil, errcode.UnknownTrack
	}
	if hw.IO == nil || hw.Timer == nil || hw.Clock == nil {
		return nil, errcode.Invalid("track", "hardware incomplete")
	}
	cfg = WithDefaults(cfg)

	timing := wave.Timing{One: cfg.OneHalf, Zero: cfg.ZeroHalf}
	if err := timing.Validate(); err != nil {
		return nil, err
	}
	minPre := wave.MinPreambleMain
	if cfg.Role == types.RoleProg {
		minPre = wave.MinPreambleProg
	}
	if !mathx.Between(int(cfg.PreambleBits), minPre, maxPreamble) {
		return nil, errcode.Invalid("track", "preamble length out of range")
	}
	if cfg.Registers < 0 {
		return nil, errcode.Invalid("track", "negative register count")
	}

	scale, err := scaleFor(cfg.Sense)
	if err != nil {
		return nil, err
	}
	drv, err := newDriver(hw.IO, &cfg)
	if err != nil {
		return nil, err
	}
	if hw.Sensor == nil {
		if cfg.Sense.Kind != types.SenseAnalog {
			return nil, errcode.Invalid("track", "shunt monitor sensor not provided")
		}
		hw.Sensor = halcore.AnalogSensor{IO: hw.IO, Pin: cfg.Sense.Pin}
	}
	sup, err := power.New(power.Config{
		Trigger:        cfg.Trigger,
		SampleInterval: cfg.SampleInterval,
		RetryInterval:  cfg.RetryInterval,
		Smoothing:      cfg.Smoothing,
		Scale:          scale,
	}, drv, hw.Sensor)
	if err != nil {
		return nil, err
	}

	q := queue.New(cfg.Registers)
	return &Track{
		id:     id,
		name:   cfg.Name,
		cfg:    cfg,
		hw:     hw,
		drv:    drv,
		q:      q,
		enc:    wave.NewEncoder(drv, hw.Timer, q, timing, cfg.PreambleBits),
		sup:    sup,
		timing: timing,
	}, nil
}

func scaleFor(s types.SenseConfig) (power.Scale, error) {
	switch s.Kind {
	case types.SenseAnalog:
		return power.AnalogScale(s.VRef, s.Bits, s.AmpsPerVolt)
	case types.SenseINA219:
		return power.ShuntScale(ina219.ShuntLSB, s.Shunt)
	}
	return power.Scale{}, errcode.Invalid("track", "unknown sense kind")
}

// Start configures the pins, leaving power off, and arms the first half
// period. The platform timer then calls InterruptHandler on every expiry.
func (t *Track) Start() error {
	if err := t.drv.Setup(); err != nil {
		return err
	}
	t.hw.Timer.Arm(t.timing.One)
	return nil
}

// InterruptHandler performs one waveform half-transition.
func (t *Track) InterruptHandler() { t.enc.Step() }

// Check runs current supervision. It reports a trip or retry edge.
func (t *Track) Check() power.Edge { return t.sup.Check(t.hw.Clock.NowMs()) }

// ---- Submission ----

// Enqueue validates raw and queues it as a one-shot.
func (t *Track) Enqueue(raw []byte, repeats uint8) error {
	p, err := packet.New(raw...)
	if err != nil {
		return err
	}
	return t.q.Enqueue(p, repeats)
}

// EnqueuePacket queues an already built packet.
func (t *Track) EnqueuePacket(p packet.Packet, repeats uint8) error {
	return t.q.Enqueue(p, repeats)
}

func (t *Track) Refresh(reg int, raw []byte) error {
	p, err := packet.New(raw...)
	if err != nil {
		return err
	}
	return t.q.Refresh(reg, p)
}

// Forget clears one register; 0 clears all of them.
func (t *Track) Forget(reg int) error {
	if reg == 0 {
		t.q.Flush()
		return nil
	}
	return t.q.Forget(reg)
}

// EmergencyStop drops everything queued and sends a broadcast stop, repeated
// so that decoders which miss one copy still see it.
func (t *Track) EmergencyStop() error {
	t.q.Reset()
	return t.q.Enqueue(packet.BroadcastStop(), queue.MaxRepeats)
}

// SetPower is operator power control.
func (t *Track) SetPower(on bool) { t.sup.SetEnabled(on) }

func (t *Track) SetBrake(on bool) error { return t.drv.SetBrake(on) }

// ---- Status ----

func (t *Track) ID() ID                    { return t.id }
func (t *Track) Name() string              { return t.name }
func (t *Track) Config() types.TrackConfig { return t.cfg }
func (t *Track) Timing() wave.Timing       { return t.timing }

func (t *Track) Powered() bool { return t.sup.Powered() }
func (t *Track) Tripped() bool { return t.sup.Tripped() }

// CurrentMA is the last smoothed current in milliamps.
func (t *Track) CurrentMA() int32 {
	ma := int64(t.sup.Current() / physic.MilliAmpere)
	return int32(mathx.Clamp(ma, math.MinInt32, math.MaxInt32))
}

// Status is a point-in-time snapshot for the status boundary.
func (t *Track) Status() types.TrackStatus {
	return types.TrackStatus{
		Track:     t.name,
		Powered:   t.sup.Powered(),
		Tripped:   t.sup.Tripped(),
		Braking:   t.drv.Braking(),
		CurrentMA: t.CurrentMA(),
		Trips:     t.sup.Trips(),
		Refused:   t.enc.Refused(),
		Pending:   t.q.Pending(),
		Active:    t.q.Active(),
		TSms:      t.hw.Clock.NowMs(),
	}
}
