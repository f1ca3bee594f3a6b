package main

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"commandstation-go/bus"
	"commandstation-go/errcode"
	"commandstation-go/services/config"
	"commandstation-go/services/monitor"
	"commandstation-go/services/station"
	"commandstation-go/services/station/internal/packet"
	"commandstation-go/services/station/internal/platform"
	"commandstation-go/services/station/internal/setups"
	"commandstation-go/services/station/internal/track"
	"commandstation-go/types"
)

var (
	simBoard     string
	simDuration  time.Duration
	simLoco      uint16
	simSpeed     uint8
	simReverse   bool
	simLights    bool
	simLoadAfter time.Duration
	simLoadRaw   uint16
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the station on the simulated board",
	Long: `Start the station with a board's wiring on the host simulator, power
the tracks and optionally keep one locomotive on the refresh loop.

--load applies a raw sense reading to the main track after --load-after, to
watch the overcurrent trip and retry cycle.`,
	RunE: runSim,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&simBoard, "board", "host_sim", "Board wiring (host_sim, pico, pico_ina219, samd_reference, arduino_motor_shield)")
	runCmd.Flags().DurationVar(&simDuration, "duration", 5*time.Second, "How long to run")
	runCmd.Flags().Uint16Var(&simLoco, "loco", 0, "Locomotive address to refresh (0 for none)")
	runCmd.Flags().Uint8Var(&simSpeed, "speed", 0, "128-step speed, 0..126")
	runCmd.Flags().BoolVar(&simReverse, "reverse", false, "Run the locomotive in reverse")
	runCmd.Flags().BoolVar(&simLights, "lights", false, "Turn the headlight (FL) on")
	runCmd.Flags().DurationVar(&simLoadAfter, "load-after", 0, "Delay before applying --load")
	runCmd.Flags().Uint16Var(&simLoadRaw, "load", 0, "Raw main track sense reading to apply (0 for none)")
}

func runSim(cmd *cobra.Command, args []string) error {
	cfg, ok := setups.ByName(simBoard)
	if !ok {
		return errcode.Invalid("run", "unknown board "+simBoard)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), simDuration)
	defer cancel()

	b := bus.NewBus(32)
	sim := platform.NewSim()
	sim.RealTime = true

	st, err := station.New(b.NewConnection("station"), sim, cfg, &track.Registry{})
	if err != nil {
		glog.Errorf("station setup: %v", err)
		return err
	}
	if err := st.Start(ctx); err != nil {
		glog.Errorf("station start: %v", err)
		return err
	}

	config.NewConfigService().Start(context.WithValue(ctx, config.CtxDeviceKey, cfg.Board), b.NewConnection("config"))
	mon := &monitor.Service{Interval: time.Second}
	if err := mon.Start(ctx, b.NewConnection("monitor")); err != nil {
		return err
	}

	client := b.NewConnection("dccsim")
	stateSub := client.Subscribe(bus.T("station", "state"))
	tripSub := client.Subscribe(bus.T("station", "track", "+", "event", "trip"))
	statusSub := client.Subscribe(bus.T("station", "track", "+", "status"))

	done := make(chan struct{})
	go func() {
		st.Run(ctx)
		close(done)
	}()
	if err := waitRunning(ctx, stateSub); err != nil {
		return err
	}
	glog.Infof("station running on %s (%s wiring)", sim.Name(), cfg.Board)

	if err := request(ctx, client, bus.T("station", "control", "power"), types.PowerSet{On: true}); err != nil {
		return err
	}
	if simLoco != 0 {
		if err := refreshLoco(ctx, client); err != nil {
			return err
		}
	}
	if simLoadRaw != 0 {
		time.AfterFunc(simLoadAfter, func() {
			glog.Warningf("applying raw load %d to main", simLoadRaw)
			sim.SetRaw(int(track.Main), simLoadRaw)
		})
	}

	for {
		select {
		case <-done:
			for _, name := range []string{"main", "prog"} {
				if s, ok := mon.Track(name); ok {
					glog.Infof("%s: powered=%v trips=%d refused=%d pending=%d active=%d",
						name, s.Powered, mon.Trips(name), s.Refused, s.Pending, s.Active)
				}
			}
			return nil
		case m := <-tripSub.Channel():
			if ev, ok := m.Payload.(types.TripEvent); ok {
				glog.Warningf("trip on %s at %dmA", ev.Track, ev.CurrentMA)
			}
		case m := <-statusSub.Channel():
			if s, ok := m.Payload.(types.TrackStatus); ok {
				glog.V(1).Infof("status %s: %+v", s.Track, s)
			}
		}
	}
}

func waitRunning(ctx context.Context, sub *bus.Subscription) error {
	for {
		select {
		case m := <-sub.Channel():
			if s, ok := m.Payload.(types.StationState); ok {
				switch s.Level {
				case "running":
					return nil
				case "error":
					return errcode.Code(s.Status)
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// refreshLoco keeps the locomotive's speed and function group 1 on the main
// track refresh loop.
func refreshLoco(ctx context.Context, c *bus.Connection) error {
	speed, err := packet.Speed128(simLoco, simSpeed, !simReverse)
	if err != nil {
		return err
	}
	fns, err := packet.FunctionGroup1(simLoco, simLights, 0)
	if err != nil {
		return err
	}
	for i, p := range []packet.Packet{speed, fns} {
		glog.V(1).Infof("refresh %d: % X", i+1, p.Bytes())
		set := types.RefreshSet{Register: i + 1, Bytes: p.Bytes()}
		if err := request(ctx, c, bus.T("station", "track", "main", "control", "refresh"), set); err != nil {
			return err
		}
	}
	glog.Infof("loco %d at speed %d", simLoco, simSpeed)
	return nil
}

func request(ctx context.Context, c *bus.Connection, topic bus.Topic, payload any) error {
	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	rep, err := c.RequestWait(rctx, c.NewMessage(topic, payload, false))
	if err != nil {
		return err
	}
	if e, ok := rep.Payload.(types.ErrorReply); ok {
		glog.Errorf("%v rejected: %s", topic, e.Error)
		return errcode.Code(e.Error)
	}
	return nil
}
