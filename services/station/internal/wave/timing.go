package wave

import (
	"time"

	"commandstation-go/errcode"
)

// Timing holds the two DCC half-bit periods. A full bit is two halves of
// equal length.
type Timing struct {
	One  time.Duration
	Zero time.Duration
}

// DefaultTiming is the nominal NMRA command-station timing.
var DefaultTiming = Timing{One: 58 * time.Microsecond, Zero: 100 * time.Microsecond}

// Half returns the half period for bit.
func (t Timing) Half(bit bool) time.Duration {
	if bit {
		return t.One
	}
	return t.Zero
}

// Validate checks the periods against the NMRA command-station windows.
func (t Timing) Validate() error {
	if t.One < 52*time.Microsecond || t.One > 64*time.Microsecond {
		return errcode.Invalid("timing", "one half period outside 52..64us")
	}
	if t.Zero < 90*time.Microsecond || t.Zero > 10*time.Millisecond {
		return errcode.Invalid("timing", "zero half period outside 90us..10ms")
	}
	return nil
}

// Minimum preamble lengths.
const (
	MinPreambleMain = 10
	MinPreambleProg = 20
)
