package packet

import "commandstation-go/errcode"

// Address limits for multi-function decoders.
const (
	MaxShortAddr = 127
	MaxLongAddr  = 10239
	MaxAccessory = 511
	MaxCV        = 1024
)

// Idle is the NMRA idle packet.
func Idle() Packet { return mustBuild(0xFF, 0x00) }

// Reset is the broadcast decoder reset packet (service mode entry).
func Reset() Packet { return mustBuild(0x00, 0x00) }

// BroadcastStop stops every locomotive immediately (01DC000S, D=1 C=1 S=1).
func BroadcastStop() Packet { return mustBuild(0x00, 0x71) }

// Speed128 builds an advanced-operations 128 speed step packet.
// speed is 0..126 (0 = stop); forward selects direction.
func Speed128(addr uint16, speed uint8, forward bool) (Packet, error) {
	if speed > 126 {
		return Packet{}, errcode.Invalid("speed128", "speed > 126")
	}
	step := speed
	if step > 0 {
		step++ // step 1 is emergency stop
	}
	if forward {
		step |= 0x80
	}
	return withAddress(addr, 0x3F, step)
}

// EmergencyStop stops one locomotive, ignoring momentum.
func EmergencyStop(addr uint16, forward bool) (Packet, error) {
	var d byte = 0x01
	if forward {
		d |= 0x80
	}
	return withAddress(addr, 0x3F, d)
}

// FunctionGroup1 sets FL and F1..F4 (fns bit0 = F1).
func FunctionGroup1(addr uint16, fl bool, fns uint8) (Packet, error) {
	ins := 0x80 | fns&0x0F
	if fl {
		ins |= 0x10
	}
	return withAddress(addr, ins)
}

// FunctionGroup2 sets F5..F8, or F9..F12 when upper is true (fns bit0 = lowest).
func FunctionGroup2(addr uint16, upper bool, fns uint8) (Packet, error) {
	ins := 0xB0 | fns&0x0F
	if upper {
		ins = 0xA0 | fns&0x0F
	}
	return withAddress(addr, ins)
}

// Accessory builds a basic accessory decoder packet for board address
// 0..511, output port 0..3 and gate 0..1.
func Accessory(board uint16, port, gate uint8, activate bool) (Packet, error) {
	if board > MaxAccessory || port > 3 || gate > 1 {
		return Packet{}, errcode.Invalid("accessory", "address out of range")
	}
	b1 := 0x80 | byte(board&0x3F)
	b2 := 0x80 | byte((^(board>>6))&0x07)<<4 | port<<1 | gate
	if activate {
		b2 |= 0x08
	}
	return WithChecksum(b1, b2)
}

// WriteCV builds a service-mode direct write-byte packet for cv 1..1024.
func WriteCV(cv uint16, value byte) (Packet, error) {
	if cv == 0 || cv > MaxCV {
		return Packet{}, errcode.Invalid("write_cv", "cv out of range")
	}
	c := cv - 1
	return WithChecksum(0x7C|byte(c>>8)&0x03, byte(c), value)
}

func withAddress(addr uint16, ins ...byte) (Packet, error) {
	var body [MaxLen - 1]byte
	n := 0
	switch {
	case addr == 0:
		return Packet{}, errcode.Invalid("address", "address 0 is broadcast")
	case addr <= MaxShortAddr:
		body[0] = byte(addr)
		n = 1
	case addr <= MaxLongAddr:
		body[0] = 0xC0 | byte(addr>>8)
		body[1] = byte(addr)
		n = 2
	default:
		return Packet{}, errcode.Invalid("address", "address > 10239")
	}
	n += copy(body[n:], ins)
	return WithChecksum(body[:n]...)
}

func mustBuild(body ...byte) Packet {
	p, err := WithChecksum(body...)
	if err != nil {
		panic(err)
	}
	return p
}
