//go:build rp2040 && pico_ina219

package setups

var SelectedSetup = PicoINA219()
