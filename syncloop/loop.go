// Package syncloop bridges live hand state to an observer: it polls the
// controller, maps each raw pose into visualization space and hands it to a
// Sink.
package syncloop

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	"github.com/clintpurser/leaphand/hand"
	"github.com/clintpurser/leaphand/mapping"
)

// PoseReader is the read side of the hand controller.
type PoseReader interface {
	ReadPose() (hand.Pose, error)
}

// Sink receives one pose per loop iteration.
type Sink interface {
	Update(p hand.Pose) error
}

// RawObserver is implemented by sinks that want raw poses, before mapping.
type RawObserver interface {
	ObservesRaw() bool
}

// Summarizer is implemented by sinks that accumulate state. Summarize is called
// once when the loop exits, whatever the reason.
type Summarizer interface {
	Summarize(logger logging.Logger)
}

// Config tunes the loop.
type Config struct {
	Interval               time.Duration
	MaxConsecutiveTimeouts int
}

// DefaultConfig polls at 20 Hz.
func DefaultConfig() Config {
	return Config{Interval: 50 * time.Millisecond, MaxConsecutiveTimeouts: 3}
}

// Stats counts loop iterations.
type Stats struct {
	Iterations int
	Skipped    int
	Cancelled  bool
}

// Run polls r until ctx is cancelled or a non-recoverable error occurs.
// Cancellation is only observed between iterations. mapper may be nil when
// sink observes raw poses.
func Run(ctx context.Context, r PoseReader, mapper *mapping.Mapper, sink Sink, cfg Config, logger logging.Logger) (stats Stats, err error) {
	raw := false
	if ro, ok := sink.(RawObserver); ok {
		raw = ro.ObservesRaw()
	}
	if !raw && mapper == nil {
		return stats, errors.Wrap(hand.ErrConfiguration, "sync loop needs a mapper for visual sinks")
	}

	defer func() {
		if s, ok := sink.(Summarizer); ok {
			s.Summarize(logger)
		}
	}()

	budget := hand.TimeoutBudget{Max: cfg.MaxConsecutiveTimeouts}
	for {
		if ctx.Err() != nil {
			stats.Cancelled = true
			return stats, nil
		}

		pose, err := r.ReadPose()
		if err != nil {
			if !budget.Skip(err) {
				return stats, errors.Wrap(err, "read pose")
			}
			stats.Skipped++
			logger.Warnf("Skipped read: %v", err)
		} else {
			budget.Reset()
			if !raw {
				pose = mapper.ToVisual(pose)
			}
			if err := sink.Update(pose); err != nil {
				return stats, errors.Wrap(err, "sink update")
			}
			stats.Iterations++
		}

		if !utils.SelectContextOrWait(ctx, cfg.Interval) {
			stats.Cancelled = true
			return stats, nil
		}
	}
}
