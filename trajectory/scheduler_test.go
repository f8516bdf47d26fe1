package trajectory

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.viam.com/rdk/logging"

	"github.com/clintpurser/leaphand/hand"
	"github.com/clintpurser/leaphand/hand/handtest"
)

func newScheduler(t *testing.T) (*Scheduler, *handtest.Bus) {
	t.Helper()
	bus := handtest.NewBus()
	ctrl, err := hand.Connect(bus.Dialer(), hand.ConnectionConfig{Port: "test"}, logging.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { ctrl.Close() })

	cfg := DefaultConfig()
	cfg.Settle = 10 * time.Millisecond
	return NewScheduler(ctrl, cfg, logging.NewTestLogger(t)), bus
}

func ramp(frames int) hand.Trajectory {
	traj := make(hand.Trajectory, frames)
	for i := range traj {
		traj[i] = hand.Uniform(math.Pi + float64(i)*0.01)
	}
	return traj
}

func TestPlayCadence(t *testing.T) {
	s, bus := newScheduler(t)

	start := time.Now()
	report, err := s.Play(context.Background(), ramp(50), 25)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, 50, bus.WriteCount())
	assert.Equal(t, 50, report.Frames)
	assert.False(t, report.Cancelled)
	assert.InDelta(t, 2*time.Second, elapsed, float64(50*time.Millisecond))

	// Deadlines are anchored at frame 0: frame i goes out near i/hz.
	times := bus.WriteTimes()
	for i, at := range times {
		offset := at.Sub(times[0])
		assert.InDelta(t, time.Duration(i)*40*time.Millisecond, offset, float64(20*time.Millisecond), "frame %d", i)
	}
	assert.Equal(t, ramp(50)[49], bus.Writes[49].Position)
}

func TestPlayRejectsBadRate(t *testing.T) {
	s, bus := newScheduler(t)
	for _, hz := range []float64{0, -5, math.NaN()} {
		_, err := s.Play(context.Background(), ramp(2), hz)
		assert.True(t, errors.Is(err, hand.ErrValidation), "hz %g", hz)
	}
	assert.Equal(t, 0, bus.WriteCount())
}

func TestPlayCancel(t *testing.T) {
	s, bus := newScheduler(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	report, err := s.Play(ctx, ramp(100), 20)
	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	assert.Less(t, bus.WriteCount(), 100)
	assert.Greater(t, bus.WriteCount(), 0)
}

func TestPlayCancelAfterLastFrameIsComplete(t *testing.T) {
	s, bus := newScheduler(t)
	// Frame 1 goes out at 100ms; the cancel lands in its trailing period.
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	report, err := s.Play(ctx, ramp(2), 10)
	require.NoError(t, err)
	assert.False(t, report.Cancelled)
	assert.Equal(t, 2, report.Frames)
	assert.Equal(t, 2, bus.WriteCount())
}

func TestPlaySkipsTimeouts(t *testing.T) {
	s, bus := newScheduler(t)
	bus.FailWrites(nil, handtest.Timeout(), handtest.Timeout())

	report, err := s.Play(context.Background(), ramp(5), 100)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Frames)
	assert.Equal(t, 2, report.Skipped)
}

func TestPlayAbortsAfterTimeoutBudget(t *testing.T) {
	s, bus := newScheduler(t)
	bus.FailWrites(handtest.Timeout(), handtest.Timeout(), handtest.Timeout(), handtest.Timeout())

	report, err := s.Play(context.Background(), ramp(10), 100)
	require.Error(t, err)
	assert.True(t, hand.IsRecoverable(err))
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 0, bus.WriteCount())
}

func TestPlayAbortsOnFatalError(t *testing.T) {
	s, bus := newScheduler(t)
	bus.FailWrites(errors.New("port unplugged"))

	_, err := s.Play(context.Background(), ramp(10), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 0")
}

func TestHoldRefreshesUntilCancelled(t *testing.T) {
	s, bus := newScheduler(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	pose := hand.Uniform(math.Pi)
	report, err := s.Hold(ctx, pose)
	require.NoError(t, err)
	assert.True(t, report.Cancelled)

	times := bus.WriteTimes()
	require.GreaterOrEqual(t, len(times), 5)
	for i := 1; i < len(times); i++ {
		assert.LessOrEqual(t, times[i].Sub(times[i-1]), 100*time.Millisecond, "refresh %d", i)
	}
	for _, w := range bus.Writes {
		assert.Equal(t, pose, w.Position)
	}
}

func TestPrime(t *testing.T) {
	s, bus := newScheduler(t)

	start := time.Now()
	require.NoError(t, s.Prime(context.Background(), hand.NeutralPose()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, 1, bus.WriteCount())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Prime(ctx, hand.NeutralPose()), context.Canceled)
}
