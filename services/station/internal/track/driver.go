package track

import (
	"sync/atomic"

	"commandstation-go/errcode"
	"commandstation-go/services/station/internal/halcore"
	"commandstation-go/types"
)

// Driver owns the H-bridge pins of one track: the signal pair, the power
// enable and, for brake-capable schemes, the brake line.
//
// SetSignal runs in interrupt context; everything else runs in the main loop.
type Driver struct {
	io     halcore.IO
	scheme types.ControlScheme
	a, b   int
	bDef   bool
	enable int
	sense  int // -1 when the sensor is not an analog pin

	braking atomic.Bool
}

func newDriver(io halcore.IO, cfg *types.TrackConfig) (*Driver, error) {
	d := &Driver{
		io:     io,
		scheme: cfg.Scheme,
		a:      cfg.SignalA,
		b:      cfg.SignalB,
		bDef:   cfg.SignalBDefault,
		enable: cfg.Enable,
		sense:  -1,
	}
	if cfg.Sense.Kind == types.SenseAnalog {
		d.sense = cfg.Sense.Pin
	}
	if d.a < 0 || d.enable < 0 {
		return nil, errcode.Invalid("driver", "signal and enable pins required")
	}
	switch d.scheme {
	case types.DirectionEnable:
	case types.DualDirectionInverted, types.DirectionBrakeEnable:
		if d.b < 0 {
			return nil, errcode.Invalid("driver", "scheme needs signal B")
		}
	default:
		return nil, errcode.Invalid("driver", "unknown control scheme")
	}
	return d, nil
}

func (d *Driver) usesB() bool { return d.scheme != types.DirectionEnable }

// Setup leaves the track unpowered with signal A low and B at its default.
func (d *Driver) Setup() error {
	if err := d.io.ConfigureOutput(d.a, false); err != nil {
		return err
	}
	if d.usesB() {
		if err := d.io.ConfigureOutput(d.b, d.bDef); err != nil {
			return err
		}
	}
	if err := d.io.ConfigureOutput(d.enable, false); err != nil {
		return err
	}
	if d.sense >= 0 {
		return d.io.ConfigureAnalog(d.sense)
	}
	return nil
}

// SetSignal drives the DCC level. Dual-inverted bridges get the complement on
// B within the same call. While a dual-inverted bridge brakes, both inputs
// are held and the level is dropped.
func (d *Driver) SetSignal(high bool) {
	if d.scheme == types.DualDirectionInverted && d.braking.Load() {
		return
	}
	d.io.SetPin(d.a, high)
	if d.scheme == types.DualDirectionInverted {
		d.io.SetPin(d.b, !high)
	}
}

func (d *Driver) SetPower(on bool) { d.io.SetPin(d.enable, on) }

// PowerOn reads the enable output back.
func (d *Driver) PowerOn() bool { return d.io.GetPin(d.enable) }

// SetBrake holds the bridge in its braking state. Dual-inverted bridges brake
// with both inputs equal; brake-enable bridges use B relative to its resting
// level. Single-ended bridges have no brake.
func (d *Driver) SetBrake(on bool) error {
	switch d.scheme {
	case types.DualDirectionInverted:
		d.braking.Store(on)
		d.io.SetPin(d.a, on)
		d.io.SetPin(d.b, on)
	case types.DirectionBrakeEnable:
		d.braking.Store(on)
		d.io.SetPin(d.b, on != d.bDef)
	default:
		return errcode.Unsupported
	}
	return nil
}

func (d *Driver) Braking() bool { return d.braking.Load() }
