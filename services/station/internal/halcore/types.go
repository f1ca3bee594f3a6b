// Package halcore declares the hardware capabilities a track needs. Each
// platform implements them once; tracks receive them at construction.
package halcore

import "time"

// IO is the pin capability.
type IO interface {
	ConfigureOutput(pin int, initial bool) error
	ConfigureAnalog(pin int) error
	SetPin(pin int, level bool)
	GetPin(pin int) bool
	ReadAnalog(pin int) uint16
}

// Timer is the per-track compare timer that paces the waveform.
// Arm schedules the next interrupt d after the previous deadline, so that
// interrupt latency does not accumulate as drift. It is called from interrupt
// context and must not block or allocate.
type Timer interface {
	Arm(d time.Duration)
}

// Clock is the monotonic tick source for main-loop timeouts.
type Clock interface {
	NowMs() int64
}

// Sensor yields one raw current-sense reading.
type Sensor interface {
	ReadRaw() uint16
}

// Hardware bundles the capabilities injected into one track.
type Hardware struct {
	IO     IO
	Timer  Timer
	Clock  Clock
	Sensor Sensor // nil => analog read of the configured sense pin
}

// AnalogSensor adapts an IO analog pin to Sensor.
type AnalogSensor struct {
	IO  IO
	Pin int
}

func (a AnalogSensor) ReadRaw() uint16 { return a.IO.ReadAnalog(a.Pin) }
