package hand

import "github.com/pkg/errors"

// Error taxonomy. Callers match with errors.Is; the concrete error carries the
// detail through errors.Wrap.
var (
	// ErrConfiguration reports a bad joint index or limit table. Fatal.
	ErrConfiguration = errors.New("configuration error")

	// ErrConnection reports that no bus port could be opened. Fatal.
	ErrConnection = errors.New("connection error")

	// ErrTimeout reports a transient bus read/write failure. Recoverable.
	ErrTimeout = errors.New("bus timeout")

	// ErrValidation reports a malformed pose or trajectory.
	ErrValidation = errors.New("validation error")
)

// IsRecoverable reports whether err is a transient bus failure that a loop may
// skip over.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// TimeoutBudget decides whether a steady-state loop skips over a failed bus
// call. Only recoverable errors are skipped, and at most Max in a row.
type TimeoutBudget struct {
	Max         int
	consecutive int
}

// Skip reports whether the loop may continue past err.
func (b *TimeoutBudget) Skip(err error) bool {
	if !IsRecoverable(err) {
		return false
	}
	b.consecutive++
	return b.consecutive <= b.Max
}

// Reset clears the run of consecutive failures after a successful call.
func (b *TimeoutBudget) Reset() {
	b.consecutive = 0
}
