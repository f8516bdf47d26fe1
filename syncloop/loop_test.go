package syncloop

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.viam.com/rdk/logging"
	"gopkg.in/yaml.v3"

	"github.com/clintpurser/leaphand/hand"
	"github.com/clintpurser/leaphand/hand/handtest"
	"github.com/clintpurser/leaphand/mapping"
)

type recordingSink struct {
	poses []hand.Pose
	err   error
}

func (r *recordingSink) Update(p hand.Pose) error {
	r.poses = append(r.poses, p)
	return r.err
}

func testConfig() Config {
	return Config{Interval: time.Millisecond, MaxConsecutiveTimeouts: 2}
}

func connect(t *testing.T, bus *handtest.Bus) *hand.Controller {
	t.Helper()
	ctrl, err := hand.Connect(bus.Dialer(), hand.ConnectionConfig{Port: "test"}, logging.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { ctrl.Close() })
	return ctrl
}

func TestRunMapsToVisual(t *testing.T) {
	bus := handtest.NewBus()
	ctrl := connect(t, bus)
	logger := logging.NewTestLogger(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tables := mapping.DefaultTables()
	raw := tables.Raw()
	var low hand.Pose
	for i := range low {
		low[i] = raw[i].Min
	}
	bus.QueueReads(low)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	sink := &recordingSink{}
	stats, err := Run(ctx, ctrl, mapping.New(tables), sink, testConfig(), logger)
	require.NoError(t, err)
	assert.True(t, stats.Cancelled)
	require.NotEmpty(t, sink.poses)
	assert.Equal(t, stats.Iterations, len(sink.poses))

	visual := tables.Visual()
	for i := 0; i < hand.NumJoints; i++ {
		assert.Equal(t, visual[i].Min, sink.poses[0][i])
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	bus := handtest.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := Run(ctx, connect(t, bus), mapping.New(mapping.DefaultTables()), &recordingSink{}, testConfig(), logging.NewTestLogger(t))
	require.NoError(t, err)
	assert.True(t, stats.Cancelled)
	assert.Equal(t, 0, bus.Reads)
}

func TestRunNeedsMapperForVisualSinks(t *testing.T) {
	_, err := Run(context.Background(), connect(t, handtest.NewBus()), nil, &recordingSink{}, testConfig(), logging.NewTestLogger(t))
	assert.True(t, errors.Is(err, hand.ErrConfiguration))
}

func TestRunTimeoutPolicy(t *testing.T) {
	bus := handtest.NewBus()
	bus.FailReads(handtest.Timeout(), handtest.Timeout(), nil, handtest.Timeout(), handtest.Timeout(), handtest.Timeout())

	sink := &recordingSink{}
	stats, err := Run(context.Background(), connect(t, bus), mapping.New(mapping.DefaultTables()), sink, testConfig(), logging.NewTestLogger(t))
	require.Error(t, err)
	assert.True(t, hand.IsRecoverable(err))
	assert.Equal(t, 1, stats.Iterations)
	assert.Equal(t, 4, stats.Skipped)
}

func TestRunSinkErrorAborts(t *testing.T) {
	sink := &recordingSink{err: errors.New("viewer gone")}
	_, err := Run(context.Background(), connect(t, handtest.NewBus()), mapping.New(mapping.DefaultTables()), sink, testConfig(), logging.NewTestLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "viewer gone")
	assert.Len(t, sink.poses, 1)
}

type summarizingSink struct {
	recordingSink
	summarized int
}

func (s *summarizingSink) Summarize(logging.Logger) { s.summarized++ }

func TestRunSummarizesOnEveryExit(t *testing.T) {
	logger := logging.NewTestLogger(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &summarizingSink{}
	_, err := Run(ctx, connect(t, handtest.NewBus()), mapping.New(mapping.DefaultTables()), sink, testConfig(), logger)
	require.NoError(t, err)
	assert.Equal(t, 1, sink.summarized)

	bus := handtest.NewBus()
	bus.FailReads(errors.New("unplugged"))
	sink = &summarizingSink{}
	_, err = Run(context.Background(), connect(t, bus), mapping.New(mapping.DefaultTables()), sink, testConfig(), logger)
	require.Error(t, err)
	assert.Equal(t, 1, sink.summarized)
}

func TestCalibrationSink(t *testing.T) {
	cal := NewCalibrationSink()
	for _, v := range []float64{1.0, 3.0, 2.0} {
		require.NoError(t, cal.Update(hand.Uniform(v)))
	}

	assert.Equal(t, hand.Uniform(1.0), cal.Min())
	assert.Equal(t, hand.Uniform(3.0), cal.Max())
	assert.Equal(t, 3, cal.Samples())
	assert.Equal(t, mapping.Range{Min: 1, Max: 3}, cal.Limits()[15])
}

func TestCalibrationThroughLoop(t *testing.T) {
	bus := handtest.NewBus()
	bus.QueueReads(hand.Uniform(1.0), hand.Uniform(3.0), hand.Uniform(2.0))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cal := NewCalibrationSink()
	_, err := Run(ctx, connect(t, bus), nil, cal, testConfig(), logging.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, hand.Uniform(1.0), cal.Min())
	assert.Equal(t, hand.Uniform(3.0), cal.Max())
}

func TestCalibrationYAML(t *testing.T) {
	cal := NewCalibrationSink()
	require.NoError(t, cal.Update(hand.Uniform(1.234)))
	require.NoError(t, cal.Update(hand.Uniform(4.567)))

	var buf bytes.Buffer
	require.NoError(t, cal.WriteYAML(&buf))

	var doc struct {
		Limits struct {
			Raw map[string][]float64 `yaml:"raw"`
		} `yaml:"limits"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Len(t, doc.Limits.Raw, hand.NumJoints)
	assert.Equal(t, []float64{1.23, 4.57}, doc.Limits.Raw["7"])
}

func TestJSONSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf, false)
	require.NoError(t, sink.Update(hand.Uniform(0.5)))
	require.NoError(t, sink.Update(hand.Uniform(0.25)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"space":"visual"`)
	assert.Contains(t, lines[1], `"position":[0.25,`)
}

func TestTee(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	tee, err := NewTee(a, b)
	require.NoError(t, err)
	require.NoError(t, tee.Update(hand.Uniform(1)))
	assert.Len(t, a.poses, 1)
	assert.Len(t, b.poses, 1)
	assert.False(t, tee.ObservesRaw())

	_, err = NewTee(a, NewCalibrationSink())
	assert.True(t, errors.Is(err, hand.ErrConfiguration))

	cal := NewCalibrationSink()
	tee, err = NewTee(&LogSink{Logger: logging.NewTestLogger(t), Raw: true}, cal)
	require.NoError(t, err)
	assert.True(t, tee.ObservesRaw())
	require.NoError(t, tee.Update(hand.Uniform(2)))
	assert.Equal(t, 1, cal.Samples())
}
