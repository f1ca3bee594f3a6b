package track

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"commandstation-go/errcode"
	"commandstation-go/services/station/internal/packet"
	"commandstation-go/services/station/internal/platform"
	"commandstation-go/services/station/internal/power"
	"commandstation-go/services/station/internal/wave"
	"commandstation-go/types"
)

const (
	pinA, pinB, pinEn, pinSense = 2, 3, 4, 26
)

// One count per milliamp: 4095mV over 12 bits at 1A/V.
func testConfig(role types.TrackRole, scheme types.ControlScheme) types.TrackConfig {
	return types.TrackConfig{
		Role:    role,
		SignalA: pinA,
		SignalB: pinB,
		Enable:  pinEn,
		Scheme:  scheme,
		Sense: types.SenseConfig{
			Kind:        types.SenseAnalog,
			Pin:         pinSense,
			VRef:        4095 * physic.MilliVolt,
			Bits:        12,
			AmpsPerVolt: 1,
		},
		Trigger:        2500 * physic.MilliAmpere,
		SampleInterval: time.Millisecond,
		RetryInterval:  10 * time.Second,
		Smoothing:      0.01,
	}
}

type rig struct {
	sim *platform.Sim
	reg *Registry
	tr  *Track
}

func newRig(t *testing.T, cfg types.TrackConfig) *rig {
	t.Helper()
	sim := platform.NewSim()
	id := IDFor(cfg.Role)
	hw, err := sim.Hardware(int(id), cfg)
	require.NoError(t, err)
	tr, err := New(id, cfg, hw)
	require.NoError(t, err)

	reg := &Registry{}
	reg.Register(tr)
	require.NoError(t, tr.Start())
	require.NoError(t, sim.Start(context.Background(), func(slot int) { reg.Dispatch(ID(slot)) }))
	sim.IO.Trace(pinA, pinB)
	return &rig{sim: sim, reg: reg, tr: tr}
}

// decode replays the recorded signal A edges through a rail-side decoder.
func decode(t *testing.T, edges []platform.Edge, minPreamble int) []packet.Packet {
	t.Helper()
	d := wave.NewDecoder(wave.DefaultTiming, minPreamble)
	var out []packet.Packet
	for i := 0; i+1 < len(edges); i++ {
		dur := time.Duration(edges[i+1].AtNs - edges[i].AtNs)
		if p, ok := d.Feed(edges[i].Level, dur); ok {
			out = append(out, p)
		}
	}
	assert.Zero(t, d.Errors())
	return out
}

func TestEnqueueReachesTheRails(t *testing.T) {
	r := newRig(t, testConfig(types.RoleMain, types.DualDirectionInverted))
	require.NoError(t, r.tr.Enqueue([]byte{0x03, 0x3F, 0x3C}, 1))

	r.sim.Advance(20 * time.Millisecond)

	want, _ := packet.New(0x03, 0x3F, 0x3C)
	assert.Equal(t, []packet.Packet{want}, decode(t, r.sim.IO.History(pinA), wave.MinPreambleMain))
	assert.Equal(t, 0, r.tr.Status().Pending)
}

func TestDualInvertedComplement(t *testing.T) {
	r := newRig(t, testConfig(types.RoleMain, types.DualDirectionInverted))
	require.NoError(t, r.tr.Enqueue([]byte{0x03, 0x3F, 0x3C}, 2))
	r.sim.Advance(5 * time.Millisecond)

	a, b := r.sim.IO.History(pinA), r.sim.IO.History(pinB)
	require.NotEmpty(t, a)
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].AtNs, b[i].AtNs)
		assert.Equal(t, !a[i].Level, b[i].Level, "edge %d", i)
	}
}

func TestSingleEndedLeavesBAlone(t *testing.T) {
	cfg := testConfig(types.RoleMain, types.DirectionEnable)
	cfg.SignalB = -1
	r := newRig(t, cfg)
	r.sim.Advance(2 * time.Millisecond)
	assert.NotEmpty(t, r.sim.IO.History(pinA))
	assert.Empty(t, r.sim.IO.History(pinB))
	assert.Equal(t, errcode.Unsupported, r.tr.SetBrake(true))
}

func TestLateInterruptsKeepTheSequence(t *testing.T) {
	r := newRig(t, testConfig(types.RoleMain, types.DirectionBrakeEnable))
	want := []packet.Packet{}
	for _, body := range [][]byte{{0x03, 0x3F, 0x80}, {0x17, 0x91}, {0xC1, 0x02, 0x3F, 0x85}} {
		p, err := packet.WithChecksum(body...)
		require.NoError(t, err)
		require.NoError(t, r.tr.EnqueuePacket(p, 1))
		want = append(want, p)
	}

	clock := r.sim.ManualClock()
	for i := 0; i < 1500; i++ {
		if i%3 == 0 {
			require.True(t, r.sim.FireLate(0, 15*time.Microsecond))
			continue
		}
		d, armed := r.sim.Timer(0).Deadline()
		require.True(t, armed)
		r.sim.Advance(time.Duration(d - clock.NowNs()))
	}
	assert.Equal(t, want, decode(t, r.sim.IO.History(pinA), wave.MinPreambleMain))
}

func TestProgTrackPreamble(t *testing.T) {
	r := newRig(t, testConfig(types.RoleProg, types.DualDirectionInverted))
	assert.Equal(t, Prog, r.tr.ID())
	assert.Equal(t, "prog", r.tr.Name())
	assert.Equal(t, uint8(22), r.tr.Config().PreambleBits)
	assert.Equal(t, DefaultProgRegisters, r.tr.Config().Registers)

	require.NoError(t, r.tr.Enqueue([]byte{0x7C, 0x00, 0x03, 0x7F}, 1))
	r.sim.Advance(20 * time.Millisecond)
	got := decode(t, r.sim.IO.History(pinA), wave.MinPreambleProg)
	require.Len(t, got, 1)
}

func TestTripThroughTrack(t *testing.T) {
	r := newRig(t, testConfig(types.RoleMain, types.DualDirectionInverted))
	r.tr.SetPower(true)
	require.True(t, r.sim.IO.GetPin(pinEn))

	r.sim.SetRaw(0, 3000)
	assert.Equal(t, power.TripEdge, r.tr.Check())
	assert.False(t, r.sim.IO.GetPin(pinEn))

	st := r.tr.Status()
	assert.True(t, st.Tripped)
	assert.False(t, st.Powered)
	assert.Equal(t, int32(3000), st.CurrentMA)
	assert.Equal(t, uint32(1), st.Trips)

	r.sim.SetRaw(0, 100)
	var edge power.Edge
	for i := 0; i < 10_002 && edge == power.NoEdge; i++ {
		r.sim.Advance(time.Millisecond)
		edge = r.tr.Check()
	}
	assert.Equal(t, power.RetryEdge, edge)
	assert.True(t, r.sim.IO.GetPin(pinEn))
	assert.True(t, r.tr.Powered())
}

func TestEmergencyStop(t *testing.T) {
	r := newRig(t, testConfig(types.RoleMain, types.DualDirectionInverted))
	for i := 0; i < 4; i++ {
		require.NoError(t, r.tr.Enqueue([]byte{0x03, 0x3F, 0x3C}, 1))
	}
	require.NoError(t, r.tr.Refresh(1, []byte{0x03, 0x3F, 0x3C}))
	require.NoError(t, r.tr.Refresh(50, []byte{0x04, 0x3F, 0x3B}))
	assert.Equal(t, 2, r.tr.Status().Active)

	require.NoError(t, r.tr.EmergencyStop())
	st := r.tr.Status()
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 0, st.Active)

	r.sim.Advance(50 * time.Millisecond)
	got := decode(t, r.sim.IO.History(pinA), wave.MinPreambleMain)
	require.NotEmpty(t, got)
	for _, p := range got {
		assert.Equal(t, packet.BroadcastStop(), p)
	}
}

func TestSubmissionErrors(t *testing.T) {
	r := newRig(t, testConfig(types.RoleMain, types.DualDirectionInverted))
	assert.Equal(t, errcode.BadChecksum, errcode.Of(r.tr.Enqueue([]byte{0x03, 0x3F, 0x00}, 1)))
	assert.Equal(t, errcode.PacketTooShort, errcode.Of(r.tr.Enqueue([]byte{0x03}, 1)))
	assert.Equal(t, errcode.PacketTooLong, errcode.Of(r.tr.Enqueue(make([]byte, 7), 1)))
	assert.Equal(t, errcode.InvalidParams, errcode.Of(r.tr.Refresh(51, []byte{0x03, 0x3F, 0x3C})))
	assert.Equal(t, 0, r.tr.Status().Pending)

	for i := 0; i < 16; i++ {
		require.NoError(t, r.tr.Enqueue([]byte{0x03, 0x3F, 0x3C}, 1))
	}
	assert.Equal(t, errcode.QueueFull, errcode.Of(r.tr.Enqueue([]byte{0x03, 0x3F, 0x3C}, 1)))

	require.NoError(t, r.tr.Forget(0))
	assert.Equal(t, errcode.InvalidParams, errcode.Of(r.tr.Forget(99)))
}

func TestNewValidation(t *testing.T) {
	sim := platform.NewSim()
	hw, err := sim.Hardware(0, types.TrackConfig{})
	require.NoError(t, err)

	cases := map[string]func(*types.TrackConfig){
		"prog preamble": func(c *types.TrackConfig) { c.Role = types.RoleProg; c.PreambleBits = 15 },
		"long preamble": func(c *types.TrackConfig) { c.PreambleBits = 41 },
		"no B":          func(c *types.TrackConfig) { c.SignalB = -1 },
		"no enable":     func(c *types.TrackConfig) { c.Enable = -1 },
		"timing":        func(c *types.TrackConfig) { c.OneHalf = 30 * time.Microsecond },
		"trigger":       func(c *types.TrackConfig) { c.Trigger = 0 },
		"scale":         func(c *types.TrackConfig) { c.Sense.Bits = 0 },
		"shunt":         func(c *types.TrackConfig) { c.Sense = types.SenseConfig{Kind: types.SenseINA219, Shunt: physic.Ohm} },
	}
	for name, mut := range cases {
		cfg := testConfig(types.RoleMain, types.DualDirectionInverted)
		mut(&cfg)
		_, err := New(Main, cfg, hw)
		assert.Equal(t, errcode.InvalidParams, errcode.Of(err), name)
	}

	_, err = New(ID(2), testConfig(types.RoleMain, types.DualDirectionInverted), hw)
	assert.Equal(t, errcode.UnknownTrack, err)
	noTimer := hw
	noTimer.Timer = nil
	_, err = New(Main, testConfig(types.RoleMain, types.DualDirectionInverted), noTimer)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
}
