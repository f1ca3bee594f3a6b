// Package platform implements the hardware capabilities once per target.
//
// The host build simulates pins, timers and current sensing in virtual time;
// the rp2040 build drives machine pins, the ADC, I2C shunt monitors and two
// TIMER alarms.
package platform

import (
	"context"

	"commandstation-go/services/station/internal/halcore"
	"commandstation-go/types"
)

// Slots is the number of track timers a platform provides.
const Slots = 2

// Board is what the station needs from a platform.
type Board interface {
	Name() string
	// Hardware returns the capabilities for the track in slot. It is called
	// once per slot before Start.
	Hardware(slot int, cfg types.TrackConfig) (halcore.Hardware, error)
	Clock() halcore.Clock
	// Start enables the track timers. Every expiry of slot's timer calls
	// dispatch(slot) from interrupt context.
	Start(ctx context.Context, dispatch func(slot int)) error
}
