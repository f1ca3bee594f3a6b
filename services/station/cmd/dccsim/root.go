package main

import (
	"flag"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dccsim",
	Short: "DCC command station simulator",
	Long: `dccsim runs the command station core on the host.

encode prints the bit and half-period sequence of a packet as the track
waveform would carry it. run starts the station on the simulated board with
the bus, a monitor and an optional locomotive on the refresh loop.

Logging uses glog: pass -logtostderr and -v=1 for per-packet detail.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// glog reads its settings from the Go flag set.
		_ = flag.CommandLine.Parse(nil)
	},
}

func init() {
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
