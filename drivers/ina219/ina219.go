// Package ina219 provides a driver for the TI INA219 high-side current and
// bus voltage monitor.
//
// The station uses it as a track current-sense source on boards where the
// motor driver has no analog sense output: the shunt-voltage register is the
// raw reading, and current is shunt voltage over shunt resistance.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided, without releasing the bus.
package ina219

import (
	"errors"

	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

// Address is the default I2C address (A0 = A1 = GND).
const Address = 0x40

// ShuntLSB is the weight of one shunt-voltage register count.
const ShuntLSB = 10 * physic.MicroVolt

// BusLSB is the weight of one bus-voltage count.
const BusLSB = 4 * physic.MilliVolt

// Registers.
const (
	regConfig    = 0x00
	regShuntVolt = 0x01
	regBusVolt   = 0x02
)

const (
	cfgReset = 0x8000
	busOVF   = 0x0001
)

// Gain selects the shunt full-scale range.
type Gain uint16

const (
	Gain40mV  Gain = 0 << 11
	Gain80mV  Gain = 1 << 11
	Gain160mV Gain = 2 << 11
	Gain320mV Gain = 3 << 11
)

// BusRange selects the bus-voltage full scale.
type BusRange uint16

const (
	Bus16V BusRange = 0
	Bus32V BusRange = 1 << 13
)

// ADC selects resolution or sample averaging for one converter. The same
// code is shifted into the bus (bits 10..7) or shunt (bits 6..3) field.
type ADC uint16

const (
	ADC9Bit   ADC = 0x0
	ADC10Bit  ADC = 0x1
	ADC11Bit  ADC = 0x2
	ADC12Bit  ADC = 0x3
	ADCAvg2   ADC = 0x9
	ADCAvg4   ADC = 0xA
	ADCAvg8   ADC = 0xB
	ADCAvg16  ADC = 0xC
	ADCAvg32  ADC = 0xD
	ADCAvg64  ADC = 0xE
	ADCAvg128 ADC = 0xF
)

const modeShuntBusContinuous = 0x7

var (
	ErrOverflow = errors.New("ina219: math overflow")
	ErrProtocol = errors.New("ina219: protocol error")
)

// Config holds optional settings; zero values select the power-on defaults
// (32V range, 320mV shunt range, 12-bit conversions).
type Config struct {
	Address  uint16
	BusRange BusRange
	Gain     Gain
	BusADC   ADC
	ShuntADC ADC
	// Set true to keep the zero value of BusRange/Gain/ADCs instead of
	// substituting the defaults.
	Explicit bool
}

// Device wraps an I2C connection to an INA219.
type Device struct {
	bus     drivers.I2C
	Address uint16

	config uint16
	w      [3]byte
	r      [2]byte
}

// New creates a Device. The bus must already be configured; nothing is sent.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address}
}

// Configure resets the device and writes the configuration register.
func (d *Device) Configure(cfgs ...Config) error {
	c := Config{BusRange: Bus32V, Gain: Gain320mV, BusADC: ADC12Bit, ShuntADC: ADC12Bit}
	if len(cfgs) > 0 {
		in := cfgs[0]
		if in.Address != 0 {
			d.Address = in.Address
		}
		if in.Explicit || in.BusRange != 0 || in.Gain != 0 || in.BusADC != 0 || in.ShuntADC != 0 {
			c = in
		}
	}
	if err := d.writeReg(regConfig, cfgReset); err != nil {
		return err
	}
	d.config = uint16(c.BusRange) | uint16(c.Gain) |
		uint16(c.BusADC&0xF)<<7 | uint16(c.ShuntADC&0xF)<<3 | modeShuntBusContinuous
	if err := d.writeReg(regConfig, d.config); err != nil {
		return err
	}
	got, err := d.readReg(regConfig)
	if err != nil {
		return err
	}
	if got != d.config {
		return ErrProtocol
	}
	return nil
}

// ReadShunt returns the signed shunt-voltage register in ShuntLSB counts.
func (d *Device) ReadShunt() (int16, error) {
	v, err := d.readReg(regShuntVolt)
	return int16(v), err
}

// ShuntVoltage returns the voltage across the shunt.
func (d *Device) ShuntVoltage() (physic.ElectricPotential, error) {
	raw, err := d.ReadShunt()
	if err != nil {
		return 0, err
	}
	return physic.ElectricPotential(raw) * ShuntLSB, nil
}

// BusVoltage returns the voltage on IN- with respect to ground.
func (d *Device) BusVoltage() (physic.ElectricPotential, error) {
	v, err := d.readReg(regBusVolt)
	if err != nil {
		return 0, err
	}
	if v&busOVF != 0 {
		return 0, ErrOverflow
	}
	return physic.ElectricPotential(v>>3) * BusLSB, nil
}

// Current derives load current from the shunt voltage and the given shunt
// resistance. The calibration register is not used.
func (d *Device) Current(shunt physic.ElectricResistance) (physic.ElectricCurrent, error) {
	if shunt <= 0 {
		return 0, ErrProtocol
	}
	raw, err := d.ReadShunt()
	if err != nil {
		return 0, err
	}
	// nV / nΩ is amperes.
	nv := int64(raw) * int64(ShuntLSB)
	return physic.ElectricCurrent(nv * int64(physic.Ampere) / int64(shunt)), nil
}

// ---- register access (big-endian: HIGH then LOW) ----

func (d *Device) readReg(reg byte) (uint16, error) {
	d.w[0] = reg
	if err := d.bus.Tx(d.Address, d.w[:1], d.r[:2]); err != nil {
		return 0, err
	}
	return uint16(d.r[0])<<8 | uint16(d.r[1]), nil
}

func (d *Device) writeReg(reg byte, val uint16) error {
	d.w[0] = reg
	d.w[1] = byte(val >> 8)
	d.w[2] = byte(val)
	return d.bus.Tx(d.Address, d.w[:3], nil)
}
