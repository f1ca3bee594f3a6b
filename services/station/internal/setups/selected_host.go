//go:build !rp2040

package setups

var SelectedSetup = HostSim()
