package power

import (
	"periph.io/x/conn/v3/physic"

	"commandstation-go/errcode"
)

// Scale converts a smoothed sensor reading into current. Both supported
// sense paths are linear, so a scale is one milliamps-per-count factor.
type Scale struct {
	MilliampsPerCount float32
}

// AnalogScale calibrates an ADC reading of a driver's current-sense output:
// full scale (2^bits-1 counts) is vref, and the driver delivers ampsPerVolt.
func AnalogScale(vref physic.ElectricPotential, bits uint8, ampsPerVolt float32) (Scale, error) {
	if vref <= 0 || bits == 0 || bits > 16 || ampsPerVolt <= 0 {
		return Scale{}, errcode.Invalid("analog scale", "vref, bits (1..16) and amps-per-volt must be positive")
	}
	full := float32(uint32(1)<<bits - 1)
	volts := float32(vref) / float32(physic.Volt)
	return Scale{MilliampsPerCount: volts * ampsPerVolt * 1000 / full}, nil
}

// ShuntScale calibrates a shunt monitor whose reading counts lsb volts across
// a shunt of resistance r.
func ShuntScale(lsb physic.ElectricPotential, r physic.ElectricResistance) (Scale, error) {
	if lsb <= 0 || r <= 0 {
		return Scale{}, errcode.Invalid("shunt scale", "lsb and shunt resistance must be positive")
	}
	volts := float32(lsb) / float32(physic.Volt)
	ohms := float32(r) / float32(physic.Ohm)
	return Scale{MilliampsPerCount: volts / ohms * 1000}, nil
}

// Current applies the scale. Sub-milliamp precision is dropped.
func (s Scale) Current(reading float32) physic.ElectricCurrent {
	ma := reading * s.MilliampsPerCount
	return physic.ElectricCurrent(int64(ma+0.5)) * physic.MilliAmpere
}
