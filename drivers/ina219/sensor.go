package ina219

// Sensor presents the shunt register as an unsigned raw reading for a
// current supervisor. Reverse current reads as zero. A failed transfer
// repeats the last good reading and is counted.
type Sensor struct {
	Dev *Device

	last   uint16
	errors uint32
}

func (s *Sensor) ReadRaw() uint16 {
	v, err := s.Dev.ReadShunt()
	if err != nil {
		s.errors++
		return s.last
	}
	if v < 0 {
		v = 0
	}
	s.last = uint16(v)
	return s.last
}

// Errors counts failed reads since construction.
func (s *Sensor) Errors() uint32 { return s.errors }
