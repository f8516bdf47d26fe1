package hand_test

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"

	"github.com/clintpurser/leaphand/hand"
	"github.com/clintpurser/leaphand/hand/handtest"
)

func connected(t *testing.T) (*hand.Controller, *handtest.Bus) {
	t.Helper()
	bus := handtest.NewBus()
	ctrl, err := hand.Connect(bus.Dialer(), hand.ConnectionConfig{Port: "/dev/ttyUSB0", BaudRate: 4000000}, logging.NewTestLogger(t))
	require.NoError(t, err)
	return ctrl, bus
}

func TestConnectFallback(t *testing.T) {
	logger := logging.NewTestLogger(t)
	bus := handtest.NewBus()
	cfg := hand.ConnectionConfig{Port: "/dev/ttyUSB0", FallbackPort: "/dev/ttyUSB1", BaudRate: 4000000}

	t.Run("primary succeeds", func(t *testing.T) {
		var tried []string
		dial := func(port string, baud int) (hand.Bus, error) {
			tried = append(tried, port)
			return bus, nil
		}
		ctrl, err := hand.Connect(dial, cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, []string{"/dev/ttyUSB0"}, tried)
		assert.Equal(t, "/dev/ttyUSB0", ctrl.Port())
	})

	t.Run("fallback succeeds", func(t *testing.T) {
		var tried []string
		dial := func(port string, baud int) (hand.Bus, error) {
			tried = append(tried, port)
			if port == "/dev/ttyUSB0" {
				return nil, errors.New("no such device")
			}
			return bus, nil
		}
		ctrl, err := hand.Connect(dial, cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, tried)
		assert.Equal(t, "/dev/ttyUSB1", ctrl.Port())
	})

	t.Run("both fail", func(t *testing.T) {
		var tried []string
		dial := func(port string, baud int) (hand.Bus, error) {
			tried = append(tried, port)
			return nil, errors.New("no such device")
		}
		_, err := hand.Connect(dial, cfg, logger)
		require.Error(t, err)
		assert.True(t, errors.Is(err, hand.ErrConnection))
		assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, tried, "exactly one fallback attempt")
	})

	t.Run("no fallback configured", func(t *testing.T) {
		calls := 0
		dial := func(port string, baud int) (hand.Bus, error) {
			calls++
			return nil, errors.New("busy")
		}
		_, err := hand.Connect(dial, hand.ConnectionConfig{Port: "/dev/ttyUSB0"}, logger)
		assert.True(t, errors.Is(err, hand.ErrConnection))
		assert.Equal(t, 1, calls)
	})
}

func TestConfigureScalesSpecialJoints(t *testing.T) {
	ctrl, bus := connected(t)

	require.NoError(t, ctrl.Configure(hand.Gains{KP: 600, KI: 0, KD: 200, CurrentLimit: 350}))

	for i := 0; i < hand.NumJoints; i++ {
		assert.Equal(t, hand.CurrentBasedPosition, bus.Registers[hand.AddrOperatingMode][i])
		assert.Equal(t, 0, bus.Registers[hand.AddrPositionIGain][i])
		assert.Equal(t, 350, bus.Registers[hand.AddrCurrentLimit][i])
		if hand.IsSpecial(i) {
			assert.Equal(t, 450, bus.Registers[hand.AddrPositionPGain][i], "joint %d kP", i)
			assert.Equal(t, 150, bus.Registers[hand.AddrPositionDGain][i], "joint %d kD", i)
		} else {
			assert.Equal(t, 600, bus.Registers[hand.AddrPositionPGain][i], "joint %d kP", i)
			assert.Equal(t, 200, bus.Registers[hand.AddrPositionDGain][i], "joint %d kD", i)
		}
	}
	assert.Equal(t, 600.0, ctrl.Gains().KP)
}

func TestConfigureRejectsOutOfRangeGains(t *testing.T) {
	ctrl, bus := connected(t)

	for _, g := range []hand.Gains{
		{KP: -1, KD: 200, CurrentLimit: 350},
		{KP: 600, KD: 200, CurrentLimit: 1e6},
		{KP: 600, KI: math.NaN(), KD: 200, CurrentLimit: 350},
	} {
		err := ctrl.Configure(g)
		assert.True(t, errors.Is(err, hand.ErrConfiguration), "%+v", g)
	}
	assert.Empty(t, bus.Registers)
}

func TestSetPoseTracksPrevious(t *testing.T) {
	ctrl, bus := connected(t)

	assert.Equal(t, hand.NeutralPose(), ctrl.CurrentPose())

	first := hand.Uniform(3.0)
	second := hand.Uniform(3.5)
	require.NoError(t, ctrl.SetPose(first))
	require.NoError(t, ctrl.SetPose(second))

	assert.Equal(t, first, ctrl.PreviousPose())
	assert.Equal(t, second, ctrl.CurrentPose())
	require.Equal(t, 2, bus.WriteCount())
	assert.Equal(t, second, bus.Writes[1].Position)
}

func TestReadPoseQueriesEveryTime(t *testing.T) {
	ctrl, bus := connected(t)
	bus.QueueReads(hand.Uniform(2.0), hand.Uniform(4.0))

	p, err := ctrl.ReadPose()
	require.NoError(t, err)
	assert.Equal(t, hand.Uniform(2.0), p)

	p, err = ctrl.ReadPose()
	require.NoError(t, err)
	assert.Equal(t, hand.Uniform(4.0), p)
	assert.Equal(t, 2, bus.Reads)
}

func TestReadPosePropagatesTimeout(t *testing.T) {
	ctrl, bus := connected(t)
	bus.FailReads(handtest.Timeout())

	_, err := ctrl.ReadPose()
	require.Error(t, err)
	assert.True(t, hand.IsRecoverable(err))
	assert.Equal(t, 1, bus.Reads, "controller does not retry")
}

func TestCloseDisablesTorque(t *testing.T) {
	ctrl, bus := connected(t)
	require.NoError(t, ctrl.SetTorque(true))

	require.NoError(t, ctrl.Close())
	require.NoError(t, ctrl.Close())

	assert.Equal(t, []bool{true, false}, bus.Torque)
	assert.True(t, bus.Closed)
	assert.Error(t, ctrl.SetPose(hand.NeutralPose()))
}
