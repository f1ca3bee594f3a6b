package types

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

// ---- Public station configuration ----

type StationConfig struct {
	Board        string
	LoopInterval time.Duration // main-loop tick; 0 => 1ms
	Tracks       []TrackConfig
}

// TrackRole selects the preamble minimum and the registry slot.
type TrackRole uint8

const (
	RoleMain TrackRole = iota
	RoleProg
)

func (r TrackRole) String() string {
	if r == RoleProg {
		return "prog"
	}
	return "main"
}

// ControlScheme describes how the signal/brake pins drive the H-bridge.
type ControlScheme uint8

const (
	// DirectionEnable: one direction pin, one enable pin.
	DirectionEnable ControlScheme = iota
	// DualDirectionInverted: B is driven as the complement of A.
	DualDirectionInverted
	// DirectionBrakeEnable: B is a brake line with a resting default.
	DirectionBrakeEnable
)

// SenseKind selects the current-sense source.
type SenseKind uint8

const (
	SenseAnalog SenseKind = iota // ADC pin on the driver's sense output
	SenseINA219                  // I2C shunt monitor
)

// SenseConfig holds the calibration inputs for converting a raw reading into
// current. Analog sources use VRef/Bits/AmpsPerVolt; INA219 uses Shunt.
type SenseConfig struct {
	Kind SenseKind

	// Analog source. Bits is the full-scale resolution as reported by the
	// platform ADC, AmpsPerVolt the driver's sense gain.
	Pin         int
	VRef        physic.ElectricPotential
	Bits        uint8
	AmpsPerVolt float32

	// INA219 source. Addr 0 selects the driver default.
	Bus   string
	Addr  uint16
	Shunt physic.ElectricResistance
}

// TrackConfig is the immutable per-track hardware description.
type TrackConfig struct {
	Name string
	Role TrackRole

	SignalA        int
	SignalB        int // -1 when the scheme does not use it
	SignalBDefault bool
	Enable         int
	Scheme         ControlScheme
	Sense          SenseConfig

	OneHalf      time.Duration // 0 => 58us
	ZeroHalf     time.Duration // 0 => 100us
	PreambleBits uint8         // 0 => 16 (main) / 22 (prog)
	Registers    int           // refresh registers

	Trigger        physic.ElectricCurrent
	SampleInterval time.Duration
	RetryInterval  time.Duration
	Smoothing      float32 // exponential smoothing factor in (0,1]
}
