package station

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"commandstation-go/bus"
	"commandstation-go/errcode"
	"commandstation-go/services/station/internal/packet"
	"commandstation-go/services/station/internal/platform"
	"commandstation-go/services/station/internal/track"
	"commandstation-go/services/station/internal/wave"
	"commandstation-go/types"
)

const mainA = 2

// Main reads one count per milliamp on ADC pin 26; prog sits behind an
// INA219 with a 10mΩ shunt (1mA per count).
func testConfig() types.StationConfig {
	common := func(tc types.TrackConfig) types.TrackConfig {
		tc.Scheme = types.DualDirectionInverted
		tc.SampleInterval = time.Millisecond
		tc.RetryInterval = 10 * time.Second
		tc.Smoothing = 1
		return tc
	}
	return types.StationConfig{
		Board: "test",
		Tracks: []types.TrackConfig{
			common(types.TrackConfig{
				Role: types.RoleMain, SignalA: mainA, SignalB: 3, Enable: 4,
				Sense: types.SenseConfig{
					Kind: types.SenseAnalog, Pin: 26,
					VRef: 4095 * physic.MilliVolt, Bits: 12, AmpsPerVolt: 1,
				},
				Trigger: 2500 * physic.MilliAmpere,
			}),
			common(types.TrackConfig{
				Role: types.RoleProg, SignalA: 6, SignalB: 7, Enable: 8,
				Sense:   types.SenseConfig{Kind: types.SenseINA219, Shunt: 10 * physic.MilliOhm},
				Trigger: 250 * physic.MilliAmpere,
			}),
		},
	}
}

type rig struct {
	sim    *platform.Sim
	st     *Station
	client *bus.Connection
	cancel context.CancelFunc
	done   chan struct{}
}

func newRig(t *testing.T) *rig {
	t.Helper()
	b := bus.NewBus(32)
	sim := platform.NewSim()
	st, err := New(b.NewConnection("station"), sim, testConfig(), &track.Registry{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, st.Start(ctx))
	sim.IO.Trace(mainA)

	r := &rig{sim: sim, st: st, client: b.NewConnection("test"), cancel: cancel, done: make(chan struct{})}
	stateSub := r.client.Subscribe(topicState())
	go func() {
		st.Run(ctx)
		close(r.done)
	}()
	waitState(t, stateSub, "running")
	r.client.Unsubscribe(stateSub)

	t.Cleanup(r.stop)
	return r
}

func (r *rig) stop() {
	r.cancel()
	<-r.done
}

func waitState(t *testing.T, sub *bus.Subscription, level string) {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.StationState); ok && st.Level == level {
				return
			}
		case <-timeout:
			t.Fatalf("station never reached %q", level)
		}
	}
}

func (r *rig) request(t *testing.T, topic bus.Topic, payload any) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rep, err := r.client.RequestWait(ctx, r.client.NewMessage(topic, payload, false))
	require.NoError(t, err)
	return rep.Payload
}

func (r *rig) status(t *testing.T, name string) types.TrackStatus {
	t.Helper()
	st, ok := r.request(t, trackCtrl(name, "status"), nil).(types.TrackStatus)
	require.True(t, ok)
	return st
}

var accepted = types.OKReply{OK: true}

func rejected(code errcode.Code) types.ErrorReply {
	return types.ErrorReply{OK: false, Error: string(code)}
}

func TestEnqueueOverBus(t *testing.T) {
	r := newRig(t)
	assert.Equal(t, accepted, r.request(t, trackCtrl("main", "enqueue"), types.PacketSubmit{Bytes: []byte{0x03, 0x3F, 0x3C}}))
	assert.Equal(t, 1, r.status(t, "main").Pending)

	r.sim.Advance(20 * time.Millisecond)

	d := wave.NewDecoder(wave.DefaultTiming, wave.MinPreambleMain)
	edges := r.sim.IO.History(mainA)
	var got []packet.Packet
	for i := 0; i+1 < len(edges); i++ {
		if p, ok := d.Feed(edges[i].Level, time.Duration(edges[i+1].AtNs-edges[i].AtNs)); ok {
			got = append(got, p)
		}
	}
	want, _ := packet.New(0x03, 0x3F, 0x3C)
	assert.Equal(t, []packet.Packet{want}, got)
	assert.Equal(t, 0, r.status(t, "main").Pending)
}

func TestRejectionCodes(t *testing.T) {
	r := newRig(t)
	cases := []struct {
		topic   bus.Topic
		payload any
		code    errcode.Code
	}{
		{trackCtrl("main", "enqueue"), types.PacketSubmit{Bytes: []byte{0x03, 0x3F, 0x00}}, errcode.BadChecksum},
		{trackCtrl("main", "enqueue"), types.PacketSubmit{Bytes: []byte{0x03}}, errcode.PacketTooShort},
		{trackCtrl("main", "enqueue"), types.PacketSubmit{Bytes: make([]byte, 7)}, errcode.PacketTooLong},
		{trackCtrl("main", "enqueue"), "03 3F 3C", errcode.InvalidPayload},
		{trackCtrl("main", "refresh"), types.RefreshSet{Register: 51, Bytes: []byte{0x03, 0x3F, 0x3C}}, errcode.InvalidParams},
		{trackCtrl("prog", "refresh"), types.RefreshSet{Register: 3, Bytes: []byte{0x03, 0x3F, 0x3C}}, errcode.InvalidParams},
		{trackCtrl("aux", "enqueue"), types.PacketSubmit{Bytes: []byte{0x03, 0x3F, 0x3C}}, errcode.UnknownTrack},
		{trackCtrl("main", "reverse"), nil, errcode.Unsupported},
		{stationCtrl("reverse"), nil, errcode.Unsupported},
	}
	for _, c := range cases {
		assert.Equal(t, rejected(c.code), r.request(t, c.topic, c.payload), "%v", c.topic)
	}
	assert.Equal(t, 0, r.status(t, "main").Pending)
}

func TestQueueFullOverBus(t *testing.T) {
	r := newRig(t)
	submit := types.PacketSubmit{Bytes: []byte{0x03, 0x3F, 0x3C}}
	for i := 0; i < 16; i++ {
		require.Equal(t, accepted, r.request(t, trackCtrl("main", "enqueue"), submit))
	}
	assert.Equal(t, rejected(errcode.QueueFull), r.request(t, trackCtrl("main", "enqueue"), submit))
	assert.Equal(t, 16, r.status(t, "main").Pending)
}

func TestRefreshAndForget(t *testing.T) {
	r := newRig(t)
	set := func(reg int) any {
		return r.request(t, trackCtrl("main", "refresh"), types.RefreshSet{Register: reg, Bytes: []byte{0x03, 0x3F, 0x3C}})
	}
	assert.Equal(t, accepted, set(1))
	assert.Equal(t, accepted, set(50))
	assert.Equal(t, 2, r.status(t, "main").Active)

	assert.Equal(t, accepted, r.request(t, trackCtrl("main", "forget"), types.RefreshClear{Register: 1}))
	assert.Equal(t, 1, r.status(t, "main").Active)
	assert.Equal(t, accepted, r.request(t, trackCtrl("main", "forget"), types.RefreshClear{}))
	assert.Equal(t, 0, r.status(t, "main").Active)
}

func TestTripPublishesEvent(t *testing.T) {
	r := newRig(t)
	trips := r.client.Subscribe(trackTrip("main"))

	require.Equal(t, accepted, r.request(t, trackCtrl("main", "power"), types.PowerSet{On: true}))
	require.True(t, r.status(t, "main").Powered)

	r.sim.SetRaw(0, 3000)
	r.sim.Advance(2 * time.Millisecond)

	select {
	case m := <-trips.Channel():
		ev, isTrip := m.Payload.(types.TripEvent)
		require.True(t, isTrip)
		assert.Equal(t, "main", ev.Track)
		assert.Equal(t, int32(3000), ev.CurrentMA)
		assert.False(t, m.Retained)
	case <-time.After(time.Second):
		t.Fatal("no trip event")
	}

	st := r.status(t, "main")
	assert.True(t, st.Tripped)
	assert.False(t, st.Powered)
	assert.Equal(t, uint32(1), st.Trips)
	assert.False(t, r.sim.IO.GetPin(4))
	assert.False(t, r.status(t, "prog").Tripped)
}

func TestRetainedStatusFollowsChanges(t *testing.T) {
	r := newRig(t)
	require.Equal(t, accepted, r.request(t, trackCtrl("prog", "power"), types.PowerSet{On: true}))

	sub := r.client.Subscribe(trackStatus("prog"))
	select {
	case m := <-sub.Channel():
		st, isStatus := m.Payload.(types.TrackStatus)
		require.True(t, isStatus)
		assert.True(t, m.Retained)
		assert.True(t, st.Powered)
		assert.Equal(t, "prog", st.Track)
	case <-time.After(time.Second):
		t.Fatal("no retained status")
	}
}

func TestStationWideControl(t *testing.T) {
	r := newRig(t)
	assert.Equal(t, accepted, r.request(t, stationCtrl("power"), types.PowerSet{On: true}))
	assert.True(t, r.status(t, "main").Powered)
	assert.True(t, r.status(t, "prog").Powered)

	require.Equal(t, accepted, r.request(t, trackCtrl("main", "refresh"), types.RefreshSet{Register: 1, Bytes: []byte{0x03, 0x3F, 0x3C}}))
	assert.Equal(t, accepted, r.request(t, stationCtrl("estop"), nil))
	for _, name := range []string{"main", "prog"} {
		st := r.status(t, name)
		assert.Equal(t, 1, st.Pending, name)
		assert.Zero(t, st.Active, name)
	}
}

func TestBrake(t *testing.T) {
	r := newRig(t)
	assert.Equal(t, accepted, r.request(t, trackCtrl("main", "brake"), types.BrakeSet{On: true}))
	assert.True(t, r.status(t, "main").Braking)
	assert.True(t, r.sim.IO.GetPin(mainA))
	assert.True(t, r.sim.IO.GetPin(3))
	assert.Equal(t, accepted, r.request(t, trackCtrl("main", "brake"), types.BrakeSet{On: false}))
	assert.False(t, r.status(t, "main").Braking)
}

func TestShutdownCutsPower(t *testing.T) {
	r := newRig(t)
	require.Equal(t, accepted, r.request(t, stationCtrl("power"), types.PowerSet{On: true}))
	r.stop()

	assert.False(t, r.sim.IO.GetPin(4))
	assert.False(t, r.sim.IO.GetPin(8))
	sub := r.client.Subscribe(topicState())
	waitState(t, sub, "stopped")
}

func TestNewRejectsBadSetups(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("station")

	cfg := testConfig()
	cfg.Tracks[1].Role = types.RoleMain
	reg := &track.Registry{}
	_, err := New(conn, platform.NewSim(), cfg, reg)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
	assert.Nil(t, reg.Get(track.Main))

	cfg = testConfig()
	cfg.Tracks[0].Trigger = 0
	_, err = New(conn, platform.NewSim(), cfg, reg)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
	assert.Nil(t, reg.Get(track.Prog))

	_, err = New(conn, platform.NewSim(), types.StationConfig{}, reg)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
}
