// Package hand provides the controller for the 16-joint LEAP hand: pose types,
// the bus capability it drives and the bring-up sequence.
package hand

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// NumJoints is the number of actuated joints on the hand.
const NumJoints = 16

// SpecialJoints are the finger base joints whose mechanical linkage is coupled
// through a reduction. They receive scaled position gains.
var SpecialJoints = [...]int{0, 4, 8, 12}

// SpecialGainScale is applied to KP and KD on the special joints.
const SpecialGainScale = 0.75

// MotorIDs lists the bus IDs of all joints, index aligned with Pose.
var MotorIDs = func() []int {
	ids := make([]int, NumJoints)
	for i := range ids {
		ids[i] = i
	}
	return ids
}()

// IsSpecial reports whether joint i is one of the coupled base joints.
func IsSpecial(i int) bool {
	for _, s := range SpecialJoints {
		if s == i {
			return true
		}
	}
	return false
}

// ValidJoint reports whether i is a joint index.
func ValidJoint(i int) bool {
	return i >= 0 && i < NumJoints
}

// Pose is a full joint-angle snapshot. Whether it holds raw or visualization
// angles depends on where it came from; the two are never mixed.
type Pose [NumJoints]float64

// NeutralPose returns the open hand in raw space (every motor centred at π).
func NeutralPose() Pose {
	var p Pose
	for i := range p {
		p[i] = math.Pi
	}
	return p
}

// Uniform returns a pose with every joint set to v.
func Uniform(v float64) Pose {
	var p Pose
	for i := range p {
		p[i] = v
	}
	return p
}

// PoseFromSlice copies values into a Pose, failing unless there are exactly
// NumJoints finite angles.
func PoseFromSlice(values []float64) (Pose, error) {
	var p Pose
	if len(values) != NumJoints {
		return p, errors.Wrapf(ErrValidation, "pose needs %d joint angles, got %d", NumJoints, len(values))
	}
	if j := nonFinite(values); j >= 0 {
		return p, errors.Wrapf(ErrValidation, "joint %d angle is %g", j, values[j])
	}
	copy(p[:], values)
	return p, nil
}

// nonFinite returns the index of the first NaN or infinite value, or -1.
func nonFinite(values []float64) int {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i
		}
	}
	return -1
}

// Slice returns the pose as a freshly allocated slice.
func (p Pose) Slice() []float64 {
	out := make([]float64, NumJoints)
	copy(out, p[:])
	return out
}

// String renders the pose rounded to two decimals.
func (p Pose) String() string {
	s := "["
	for i, v := range p {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%.2f", v)
	}
	return s + "]"
}

// Trajectory is a time-ordered sequence of poses, one per fixed time step.
type Trajectory []Pose

// NewTrajectory validates a (T, 16) array and converts it to a Trajectory.
func NewTrajectory(rows [][]float64) (Trajectory, error) {
	if len(rows) == 0 {
		return nil, errors.Wrap(ErrValidation, "trajectory has no frames")
	}
	traj := make(Trajectory, len(rows))
	for t, row := range rows {
		if len(row) != NumJoints {
			return nil, errors.Wrapf(ErrValidation, "trajectory must have shape (T, %d): frame %d has %d values", NumJoints, t, len(row))
		}
		if j := nonFinite(row); j >= 0 {
			return nil, errors.Wrapf(ErrValidation, "frame %d joint %d angle is %g", t, j, row[j])
		}
		copy(traj[t][:], row)
	}
	return traj, nil
}
