package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commandstation-go/errcode"
	"commandstation-go/services/station/internal/platform"
	"commandstation-go/types"
)

func setupDriver(t *testing.T, scheme types.ControlScheme, bDefault bool) (*Driver, *platform.FakeIO) {
	t.Helper()
	io := platform.NewFakeIO(nil)
	cfg := testConfig(types.RoleMain, scheme)
	cfg.SignalBDefault = bDefault
	d, err := newDriver(io, &cfg)
	require.NoError(t, err)
	require.NoError(t, d.Setup())
	return d, io
}

func TestDriverSetup(t *testing.T) {
	_, io := setupDriver(t, types.DirectionBrakeEnable, true)
	assert.True(t, io.IsOutput(pinA))
	assert.True(t, io.IsOutput(pinB))
	assert.True(t, io.IsOutput(pinEn))
	assert.True(t, io.IsAnalog(pinSense))
	assert.False(t, io.GetPin(pinA))
	assert.True(t, io.GetPin(pinB))
	assert.False(t, io.GetPin(pinEn))

	_, io = setupDriver(t, types.DirectionEnable, false)
	assert.False(t, io.IsOutput(pinB))
}

func TestDriverPower(t *testing.T) {
	d, io := setupDriver(t, types.DirectionEnable, false)
	d.SetPower(true)
	assert.True(t, io.GetPin(pinEn))
	assert.True(t, d.PowerOn())
	d.SetPower(false)
	assert.False(t, d.PowerOn())
}

func TestDriverBrakeDualInverted(t *testing.T) {
	d, io := setupDriver(t, types.DualDirectionInverted, false)
	d.SetSignal(true)
	assert.True(t, io.GetPin(pinA))
	assert.False(t, io.GetPin(pinB))

	require.NoError(t, d.SetBrake(true))
	assert.True(t, io.GetPin(pinA))
	assert.True(t, io.GetPin(pinB))
	assert.True(t, d.Braking())

	d.SetSignal(false) // held while braking
	assert.True(t, io.GetPin(pinA))
	assert.True(t, io.GetPin(pinB))

	require.NoError(t, d.SetBrake(false))
	assert.False(t, io.GetPin(pinA))
	assert.False(t, io.GetPin(pinB))
	d.SetSignal(true)
	assert.True(t, io.GetPin(pinA))
	assert.False(t, io.GetPin(pinB))
}

func TestDriverBrakeEnable(t *testing.T) {
	for _, def := range []bool{false, true} {
		d, io := setupDriver(t, types.DirectionBrakeEnable, def)
		require.NoError(t, d.SetBrake(true))
		assert.Equal(t, !def, io.GetPin(pinB), "default %v", def)
		require.NoError(t, d.SetBrake(false))
		assert.Equal(t, def, io.GetPin(pinB), "default %v", def)

		d.SetSignal(true)
		assert.Equal(t, def, io.GetPin(pinB), "signal leaves B alone")
	}
}

func TestDriverRejectsBadSchemes(t *testing.T) {
	io := platform.NewFakeIO(nil)
	cfg := testConfig(types.RoleMain, types.ControlScheme(9))
	_, err := newDriver(io, &cfg)
	assert.Equal(t, errcode.InvalidParams, errcode.Of(err))
}
