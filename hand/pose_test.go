package hand

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrajectory(t *testing.T) {
	rows := make([][]float64, 50)
	for i := range rows {
		rows[i] = make([]float64, NumJoints)
		rows[i][0] = float64(i)
	}
	traj, err := NewTrajectory(rows)
	require.NoError(t, err)
	assert.Len(t, traj, 50)
	assert.Equal(t, 49.0, traj[49][0])

	for i := range rows {
		rows[i] = make([]float64, 12)
	}
	_, err = NewTrajectory(rows)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = NewTrajectory(nil)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestSpecialJoints(t *testing.T) {
	var special []int
	for i := 0; i < NumJoints; i++ {
		if IsSpecial(i) {
			special = append(special, i)
		}
	}
	assert.Equal(t, []int{0, 4, 8, 12}, special)
	assert.False(t, ValidJoint(16))
	assert.False(t, ValidJoint(-1))
}

func TestPoseFromSlice(t *testing.T) {
	_, err := PoseFromSlice([]float64{1, 2, 3})
	assert.True(t, errors.Is(err, ErrValidation))

	p, err := PoseFromSlice(Uniform(1.5).Slice())
	require.NoError(t, err)
	assert.Equal(t, Uniform(1.5), p)
}

func TestNonFiniteAnglesRejected(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		values := NeutralPose().Slice()
		values[5] = bad
		_, err := PoseFromSlice(values)
		assert.True(t, errors.Is(err, ErrValidation), "%g", bad)

		_, err = NewTrajectory([][]float64{NeutralPose().Slice(), values})
		assert.True(t, errors.Is(err, ErrValidation), "%g", bad)
	}
}

func TestTimeoutBudget(t *testing.T) {
	b := TimeoutBudget{Max: 2}
	timeout := errors.Wrap(ErrTimeout, "read")

	assert.True(t, b.Skip(timeout))
	assert.True(t, b.Skip(timeout))
	assert.False(t, b.Skip(timeout))

	b.Reset()
	assert.True(t, b.Skip(timeout))
	assert.False(t, b.Skip(errors.New("port closed")), "only timeouts are skipped")
}
