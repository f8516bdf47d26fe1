package syncloop

import (
	"io"
	"math"
	"strconv"
	"sync"

	"go.viam.com/rdk/logging"
	"gopkg.in/yaml.v3"

	"github.com/clintpurser/leaphand/hand"
	"github.com/clintpurser/leaphand/mapping"
)

// CalibrationSink tracks the per-joint minimum and maximum of every raw pose
// it sees. Moving each finger through its full travel while it runs yields the
// raw limit table used by the mapper.
type CalibrationSink struct {
	mu      sync.Mutex
	min     hand.Pose
	max     hand.Pose
	samples int
}

var (
	_ RawObserver = (*CalibrationSink)(nil)
	_ Summarizer  = (*CalibrationSink)(nil)
)

// NewCalibrationSink returns an accumulator with no samples.
func NewCalibrationSink() *CalibrationSink {
	return &CalibrationSink{
		min: hand.Uniform(math.Inf(1)),
		max: hand.Uniform(math.Inf(-1)),
	}
}

// ObservesRaw implements RawObserver.
func (c *CalibrationSink) ObservesRaw() bool { return true }

// Update folds p into the running extremes.
func (c *CalibrationSink) Update(p hand.Pose) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, v := range p {
		c.min[i] = math.Min(c.min[i], v)
		c.max[i] = math.Max(c.max[i], v)
	}
	c.samples++
	return nil
}

// Min returns the smallest value seen per joint.
func (c *CalibrationSink) Min() hand.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.min
}

// Max returns the largest value seen per joint.
func (c *CalibrationSink) Max() hand.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max
}

// Samples returns how many poses were folded in.
func (c *CalibrationSink) Samples() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples
}

// Limits returns the observed ranges as a raw limit table.
func (c *CalibrationSink) Limits() map[int]mapping.Range {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[int]mapping.Range, hand.NumJoints)
	for i := range c.min {
		out[i] = mapping.Range{Min: c.min[i], Max: c.max[i]}
	}
	return out
}

// Summarize logs the final extremes.
func (c *CalibrationSink) Summarize(logger logging.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.samples == 0 {
		logger.Warn("Calibration ended without any samples")
		return
	}
	logger.Infof("Calibration finished after %d samples", c.samples)
	logger.Infof("Final joint minimum: %s", c.min)
	logger.Infof("Final joint maximum: %s", c.max)
}

// WriteYAML writes the observed ranges as a limits.raw config fragment.
func (c *CalibrationSink) WriteYAML(w io.Writer) error {
	raw := make(map[string][]float64, hand.NumJoints)
	for i, r := range c.Limits() {
		raw[strconv.Itoa(i)] = []float64{round2(r.Min), round2(r.Max)}
	}
	doc := map[string]any{"limits": map[string]any{"raw": raw}}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
