package main

import (
	"context"
	"runtime"
	"time"

	"commandstation-go/bus"
	"commandstation-go/services/config"
	"commandstation-go/services/monitor"
	"commandstation-go/services/station"
	"commandstation-go/types"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, station.SelectedBoard())

	println("[main] bootstrapping bus …")
	b := bus.NewBus(8)
	ctlConn := b.NewConnection("main")

	println("[main] publishing config for", station.SelectedBoard(), "…")
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	mon := &monitor.Service{Interval: 10 * time.Second}
	if err := mon.Start(ctx, b.NewConnection("monitor")); err != nil {
		println("[main] monitor:", err.Error())
	}

	state := ctlConn.Subscribe(bus.T("station", "state"))
	println("[main] starting station.Run …")
	go station.Run(ctx, b.NewConnection("station"))

	for m := range state.Channel() {
		st, ok := m.Payload.(types.StationState)
		if !ok {
			continue
		}
		if st.Level == "error" {
			println("[main] station failed:", st.Status)
			select {}
		}
		if st.Level == "running" {
			break
		}
	}
	ctlConn.Unsubscribe(state)

	power := bus.T("station", "control", "power")
	if reply, err := ctlConn.RequestWait(ctx, ctlConn.NewMessage(power, types.PowerSet{On: true}, false)); err != nil {
		println("[main] power on error:", err.Error())
	} else if e, ok := reply.Payload.(types.ErrorReply); ok {
		println("[main] power on rejected:", e.Error)
	}

	tick := time.NewTicker(30 * time.Second)
	defer tick.Stop()
	for range tick.C {
		printMem()
	}
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
// Uses builtin println to avoid fmt overhead/allocations.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
