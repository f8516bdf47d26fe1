package mapping

import (
	"math"

	"github.com/pkg/errors"

	"github.com/clintpurser/leaphand/hand"
)

// Mapper converts poses between raw and visualization space. It is stateless
// apart from the tables it was built with.
//
// The coupled base joints (hand.SpecialJoints) are mapped with the same linear
// rule as every other joint. Whether their 0.75 mechanical reduction belongs in
// the angle mapping is unresolved, so no scaling is applied in either direction.
type Mapper struct {
	tables *Tables
}

// New returns a Mapper over tables.
func New(tables *Tables) *Mapper {
	return &Mapper{tables: tables}
}

// Tables returns the tables the mapper was built with.
func (m *Mapper) Tables() *Tables {
	return m.tables
}

// ToVisual maps a raw pose into visualization space. Raw readings outside the
// table are clamped to the visualization range.
func (m *Mapper) ToVisual(raw hand.Pose) hand.Pose {
	var out hand.Pose
	for i, v := range raw {
		out[i] = remap(v, m.tables.raw[i], m.tables.visual[i])
	}
	return out
}

// ToRaw maps a visualization pose into raw space.
func (m *Mapper) ToRaw(visual hand.Pose) hand.Pose {
	var out hand.Pose
	for i, v := range visual {
		out[i] = remap(v, m.tables.visual[i], m.tables.raw[i])
	}
	return out
}

// JointToVisual maps one raw joint angle.
func (m *Mapper) JointToVisual(joint int, raw float64) (float64, error) {
	if !hand.ValidJoint(joint) {
		return 0, errors.Wrapf(hand.ErrConfiguration, "joint index %d outside [0,%d]", joint, hand.NumJoints-1)
	}
	return remap(raw, m.tables.raw[joint], m.tables.visual[joint]), nil
}

// JointToRaw maps one visualization joint angle.
func (m *Mapper) JointToRaw(joint int, visual float64) (float64, error) {
	if !hand.ValidJoint(joint) {
		return 0, errors.Wrapf(hand.ErrConfiguration, "joint index %d outside [0,%d]", joint, hand.NumJoints-1)
	}
	return remap(visual, m.tables.visual[joint], m.tables.raw[joint]), nil
}

// Normalize returns where v sits in r, clamped to [0, 1]. NaN maps to the
// middle of the range.
func Normalize(v float64, r Range) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return clamp((v-r.Min)/r.Span(), 0, 1)
}

func remap(v float64, from, to Range) float64 {
	return to.Min + Normalize(v, from)*to.Span()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
