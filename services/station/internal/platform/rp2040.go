//go:build rp2040

package platform

import (
	"context"
	"device/rp"
	"machine"
	"runtime/interrupt"
	"time"

	"tinygo.org/x/drivers"

	"commandstation-go/drivers/ina219"
	"commandstation-go/errcode"
	"commandstation-go/services/station/internal/halcore"
	"commandstation-go/types"
	"commandstation-go/x/timex"
)

// The runtime owns alarm 0 for sleeping; tracks use alarms 2 and 3.
const (
	alarmMain = 2
	alarmProg = 3
)

// dispatch is set once by Start before the alarm interrupts are enabled.
var dispatch func(int)

func alarm2(interrupt.Interrupt) {
	rp.TIMER.INTR.Set(1 << alarmMain)
	dispatch(0)
}

func alarm3(interrupt.Interrupt) {
	rp.TIMER.INTR.Set(1 << alarmProg)
	dispatch(1)
}

// ----------------------------- Pins (rp2040) ---------------------------------

type picoIO struct {
	adcReady bool
	adc      [4]machine.ADC // GP26..GP29
}

func picoPin(n int) (machine.Pin, bool) {
	// User GPIOs GP0..GP28.
	if n < 0 || n > 28 {
		return 0, false
	}
	return machine.Pin(n), true
}

func (p *picoIO) ConfigureOutput(pin int, initial bool) error {
	mp, ok := picoPin(pin)
	if !ok {
		return errcode.UnknownPin
	}
	mp.Configure(machine.PinConfig{Mode: machine.PinOutput})
	mp.Set(initial)
	return nil
}

func (p *picoIO) ConfigureAnalog(pin int) error {
	if pin < 26 || pin > 29 {
		return errcode.UnknownPin
	}
	if !p.adcReady {
		machine.InitADC()
		p.adcReady = true
	}
	a := machine.ADC{Pin: machine.Pin(pin)}
	a.Configure(machine.ADCConfig{})
	p.adc[pin-26] = a
	return nil
}

func (p *picoIO) SetPin(pin int, level bool) { machine.Pin(pin).Set(level) }
func (p *picoIO) GetPin(pin int) bool        { return machine.Pin(pin).Get() }

// ReadAnalog returns the ADC reading scaled to 16 bits.
func (p *picoIO) ReadAnalog(pin int) uint16 {
	if pin < 26 || pin > 29 {
		return 0
	}
	return p.adc[pin-26].Get()
}

// ----------------------------- Timer (rp2040) --------------------------------

// alarm arms one TIMER compare in microseconds. Deadlines advance from the
// previous target; a target already passed restarts from the current count.
type alarm struct {
	n       uint8
	target  uint32
	started bool
}

func (a *alarm) Arm(d time.Duration) {
	us := uint32(d / time.Microsecond)
	now := rp.TIMER.TIMERAWL.Get()
	next := a.target + us
	if !a.started || int32(next-now) <= 0 {
		next = now + us
	}
	a.target = next
	a.started = true
	if a.n == alarmMain {
		rp.TIMER.ALARM2.Set(next)
	} else {
		rp.TIMER.ALARM3.Set(next)
	}
}

// ----------------------------- Board (rp2040) --------------------------------

type pico struct {
	io     picoIO
	clock  timex.Mono
	alarms [Slots]alarm
	i2c    map[string]drivers.I2C
}

// Default returns the Raspberry Pi Pico board.
func Default() Board {
	return &pico{
		clock:  timex.NewMono(),
		alarms: [Slots]alarm{{n: alarmMain}, {n: alarmProg}},
		i2c:    map[string]drivers.I2C{},
	}
}

func (b *pico) Name() string         { return "pico" }
func (b *pico) Clock() halcore.Clock { return b.clock }

func (b *pico) Hardware(slot int, cfg types.TrackConfig) (halcore.Hardware, error) {
	if slot < 0 || slot >= Slots {
		return halcore.Hardware{}, errcode.UnknownTrack
	}
	hw := halcore.Hardware{IO: &b.io, Timer: &b.alarms[slot], Clock: b.clock}
	if cfg.Sense.Kind == types.SenseINA219 {
		bus, err := b.bus(cfg.Sense.Bus)
		if err != nil {
			return halcore.Hardware{}, err
		}
		dev := ina219.New(bus)
		if err := dev.Configure(ina219.Config{Address: cfg.Sense.Addr}); err != nil {
			return halcore.Hardware{}, err
		}
		hw.Sensor = &ina219.Sensor{Dev: &dev}
	}
	return hw, nil
}

// bus configures i2c0 or i2c1 at 400 kHz on the board-default pins.
func (b *pico) bus(id string) (drivers.I2C, error) {
	if bus, ok := b.i2c[id]; ok {
		return bus, nil
	}
	var (
		i2c      *machine.I2C
		sda, scl machine.Pin
	)
	switch id {
	case "i2c0":
		i2c, sda, scl = machine.I2C0, machine.I2C0_SDA_PIN, machine.I2C0_SCL_PIN
	case "i2c1":
		i2c, sda, scl = machine.I2C1, machine.I2C1_SDA_PIN, machine.I2C1_SCL_PIN
	default:
		return nil, errcode.UnknownBus
	}
	if err := i2c.Configure(machine.I2CConfig{Frequency: 400 * machine.KHz, SDA: sda, SCL: scl}); err != nil {
		return nil, err
	}
	b.i2c[id] = i2c
	return i2c, nil
}

func (b *pico) Start(ctx context.Context, d func(slot int)) error {
	dispatch = d

	i2 := interrupt.New(rp.IRQ_TIMER_IRQ_2, alarm2)
	i3 := interrupt.New(rp.IRQ_TIMER_IRQ_3, alarm3)
	i2.SetPriority(0x00)
	i3.SetPriority(0x00)
	rp.TIMER.INTE.SetBits(1<<alarmMain | 1<<alarmProg)
	i2.Enable()
	i3.Enable()

	go func() {
		<-ctx.Done()
		rp.TIMER.INTE.ClearBits(1<<alarmMain | 1<<alarmProg)
		i2.Disable()
		i3.Disable()
	}()
	return nil
}
