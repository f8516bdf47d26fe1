// Package mapping converts joint angles between the hand's raw sensor space and
// the visualization (URDF) space using per-joint range tables.
package mapping

import (
	"github.com/pkg/errors"

	"github.com/clintpurser/leaphand/hand"
)

// Range is the closed interval a joint moves through in one angle space.
type Range struct {
	Min float64
	Max float64
}

// Span returns Max - Min.
func (r Range) Span() float64 {
	return r.Max - r.Min
}

// Limits holds one range per joint, index aligned with hand.Pose.
type Limits [hand.NumJoints]Range

// Tables are the raw and visualization limits. Built once by NewTables and
// never mutated.
type Tables struct {
	raw    Limits
	visual Limits
}

// NewTables validates and freezes the two limit tables. Every joint must be
// present in both tables with a non-empty range.
func NewTables(raw, visual map[int]Range) (*Tables, error) {
	r, err := toLimits("raw", raw)
	if err != nil {
		return nil, err
	}
	v, err := toLimits("visual", visual)
	if err != nil {
		return nil, err
	}
	return &Tables{raw: r, visual: v}, nil
}

// DefaultTables are the measured hardware ranges paired with the URDF ranges.
func DefaultTables() *Tables {
	t, err := NewTables(DefaultRawLimits(), DefaultVisualLimits())
	if err != nil {
		panic(err)
	}
	return t
}

// Raw returns a copy of the raw-space limits.
func (t *Tables) Raw() Limits {
	return t.raw
}

// Visual returns a copy of the visualization-space limits.
func (t *Tables) Visual() Limits {
	return t.visual
}

func toLimits(name string, table map[int]Range) (Limits, error) {
	var out Limits
	for i := range table {
		if !hand.ValidJoint(i) {
			return out, errors.Wrapf(hand.ErrConfiguration, "%s limits: joint index %d outside [0,%d]", name, i, hand.NumJoints-1)
		}
	}
	for i := 0; i < hand.NumJoints; i++ {
		r, ok := table[i]
		if !ok {
			return out, errors.Wrapf(hand.ErrConfiguration, "%s limits: joint %d missing", name, i)
		}
		if !(r.Max > r.Min) {
			return out, errors.Wrapf(hand.ErrConfiguration, "%s limits: joint %d has empty range [%g, %g]", name, i, r.Min, r.Max)
		}
		out[i] = r
	}
	return out, nil
}

// DefaultRawLimits are hardware ranges measured with the calibrate command,
// in raw radians (π is the motor centre).
func DefaultRawLimits() map[int]Range {
	return map[int]Range{
		0:  {1.56, 4.52},
		1:  {2.81, 5.31},
		2:  {2.69, 5.12},
		3:  {2.79, 5.19},
		4:  {1.50, 4.50},
		5:  {2.81, 5.30},
		6:  {2.71, 4.48},
		7:  {2.77, 5.19},
		8:  {1.59, 4.51},
		9:  {2.87, 5.34},
		10: {2.62, 5.06},
		11: {2.77, 5.18},
		12: {2.26, 5.35},
		13: {2.45, 5.45},
		14: {1.83, 4.96},
		15: {1.82, 5.06},
	}
}

// DefaultVisualLimits are the joint limits of the right-hand URDF, in radians.
func DefaultVisualLimits() map[int]Range {
	return map[int]Range{
		0:  {-1.047, 1.047},
		1:  {-0.314, 2.23},
		2:  {-0.506, 1.885},
		3:  {-0.366, 2.042},
		4:  {-1.047, 1.047},
		5:  {-0.314, 2.23},
		6:  {-0.506, 1.885},
		7:  {-0.366, 2.042},
		8:  {-1.047, 1.047},
		9:  {-0.314, 2.23},
		10: {-0.506, 1.885},
		11: {-0.366, 2.042},
		12: {-0.349, 2.094},
		13: {-0.47, 2.443},
		14: {-1.20, 1.90},
		15: {-1.34, 1.88},
	}
}
