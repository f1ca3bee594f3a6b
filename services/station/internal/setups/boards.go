// Package setups holds the per-board station wiring and calibration. The
// board is chosen at build time; see the files guarded by build tags.
package setups

import (
	"time"

	"periph.io/x/conn/v3/physic"

	"commandstation-go/types"
)

// Shared calibration. Boards only override what differs.
const (
	sampleInterval = time.Millisecond
	retryInterval  = 10 * time.Second
	smoothing      = 0.01

	mainTrigger = 5000 * physic.MilliAmpere
	progTrigger = 250 * physic.MilliAmpere
)

// Pololu-style carrier: 525mV per amp on the sense output.
const pololuAmpsPerVolt = 1 / 0.525

func mainTrack(a, b, en int, sense types.SenseConfig) types.TrackConfig {
	return types.TrackConfig{
		Name:           "main",
		Role:           types.RoleMain,
		SignalA:        a,
		SignalB:        b,
		Enable:         en,
		Scheme:         types.DualDirectionInverted,
		Sense:          sense,
		Registers:      50,
		Trigger:        mainTrigger,
		SampleInterval: sampleInterval,
		RetryInterval:  retryInterval,
		Smoothing:      smoothing,
	}
}

func progTrack(a, b, en int, sense types.SenseConfig) types.TrackConfig {
	return types.TrackConfig{
		Name:           "prog",
		Role:           types.RoleProg,
		SignalA:        a,
		SignalB:        b,
		Enable:         en,
		Scheme:         types.DualDirectionInverted,
		Sense:          sense,
		Registers:      2,
		Trigger:        progTrigger,
		SampleInterval: sampleInterval,
		RetryInterval:  retryInterval,
		Smoothing:      smoothing,
	}
}

// analog is a driver sense output read by an ADC whose readings are scaled
// to bits of resolution over vref.
func analog(pin int, vref physic.ElectricPotential, bits uint8, ampsPerVolt float32) types.SenseConfig {
	return types.SenseConfig{Kind: types.SenseAnalog, Pin: pin, VRef: vref, Bits: bits, AmpsPerVolt: ampsPerVolt}
}

// shunt is an INA219 on bus at addr measuring across r.
func shunt(bus string, addr uint16, r physic.ElectricResistance) types.SenseConfig {
	return types.SenseConfig{Kind: types.SenseINA219, Bus: bus, Addr: addr, Shunt: r}
}

// Pico is a Raspberry Pi Pico driving a dual H-bridge carrier: GP2/GP3
// main, GP6/GP7 prog, enables on GP4/GP8, sense outputs on ADC0/ADC1.
// The RP2040 ADC reports 16-bit scaled readings.
func Pico() types.StationConfig {
	return types.StationConfig{
		Board:        "pico",
		LoopInterval: time.Millisecond,
		Tracks: []types.TrackConfig{
			mainTrack(2, 3, 4, analog(26, 3300*physic.MilliVolt, 16, pololuAmpsPerVolt)),
			progTrack(6, 7, 8, analog(27, 3300*physic.MilliVolt, 16, pololuAmpsPerVolt)),
		},
	}
}

// PicoINA219 is the Pico carrier with high-side INA219 monitors on i2c0
// (0x40 main, 0x41 prog) and 10mΩ / 100mΩ shunts.
func PicoINA219() types.StationConfig {
	return types.StationConfig{
		Board:        "pico_ina219",
		LoopInterval: time.Millisecond,
		Tracks: []types.TrackConfig{
			mainTrack(2, 3, 4, shunt("i2c0", 0x40, 10*physic.MilliOhm)),
			progTrack(6, 7, 8, shunt("i2c0", 0x41, 100*physic.MilliOhm)),
		},
	}
}

// SAMDReference mirrors the wiring of the SAMD21 reference command station:
// brake-enable bridges, 12-bit ADC at 3.3V.
func SAMDReference() types.StationConfig {
	m := mainTrack(6, 7, 3, analog(2, 3300*physic.MilliVolt, 12, pololuAmpsPerVolt))
	m.Scheme = types.DirectionBrakeEnable
	p := progTrack(5, 4, 11, analog(3, 3300*physic.MilliVolt, 12, pololuAmpsPerVolt))
	p.Scheme = types.DirectionBrakeEnable
	return types.StationConfig{Board: "samd_reference", LoopInterval: time.Millisecond, Tracks: []types.TrackConfig{m, p}}
}

// ArduinoMotorShield mirrors the AVR motor-shield wiring: direction pins
// 12/13, enables 3/11, 1.65V per amp at 5V over 10 bits.
func ArduinoMotorShield() types.StationConfig {
	const ampsPerVolt = 1 / 1.65
	m := mainTrack(12, -1, 3, analog(0, 5*physic.Volt, 10, ampsPerVolt))
	m.Scheme = types.DirectionEnable
	p := progTrack(13, -1, 11, analog(1, 5*physic.Volt, 10, ampsPerVolt))
	p.Scheme = types.DirectionEnable
	return types.StationConfig{Board: "arduino_motor_shield", LoopInterval: time.Millisecond, Tracks: []types.TrackConfig{m, p}}
}

// HostSim is the simulated host board: Pico wiring, INA219 on the prog
// track so both sense paths are exercised.
func HostSim() types.StationConfig {
	cfg := Pico()
	cfg.Board = "host_sim"
	cfg.Tracks[1].Sense = shunt("i2c0", 0x41, 100*physic.MilliOhm)
	return cfg
}

// ByName returns a known board configuration.
func ByName(name string) (types.StationConfig, bool) {
	switch name {
	case "pico":
		return Pico(), true
	case "pico_ina219":
		return PicoINA219(), true
	case "samd_reference":
		return SAMDReference(), true
	case "arduino_motor_shield":
		return ArduinoMotorShield(), true
	case "host_sim":
		return HostSim(), true
	}
	return types.StationConfig{}, false
}
