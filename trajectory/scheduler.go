// Package trajectory paces joint poses onto the hand at a fixed cadence.
package trajectory

import (
	"context"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	"github.com/clintpurser/leaphand/hand"
)

// PoseWriter is the write side of the hand controller.
type PoseWriter interface {
	SetPose(p hand.Pose) error
}

// Config tunes the scheduler.
type Config struct {
	// Settle is how long Prime waits after the first write.
	Settle time.Duration
	// HoldInterval is the refresh period of Hold. The motor firmware treats an
	// unrefreshed goal as stale, so this must stay well under 100ms.
	HoldInterval time.Duration
	// SpinWindow is the final stretch before a deadline that is busy-polled
	// instead of slept.
	SpinWindow time.Duration
	// MaxConsecutiveTimeouts is how many bus timeouts in a row are skipped
	// before the loop gives up.
	MaxConsecutiveTimeouts int
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		Settle:                 500 * time.Millisecond,
		HoldInterval:           50 * time.Millisecond,
		SpinWindow:             300 * time.Microsecond,
		MaxConsecutiveTimeouts: 3,
	}
}

// Report summarizes one Play or Hold run.
type Report struct {
	Frames      int
	Skipped     int
	Elapsed     time.Duration
	MaxLateness time.Duration
	Cancelled   bool
}

// Scheduler sends poses to a controller. It is not safe for concurrent use.
type Scheduler struct {
	hand   PoseWriter
	cfg    Config
	logger logging.Logger
}

// NewScheduler returns a scheduler writing to w.
func NewScheduler(w PoseWriter, cfg Config, logger logging.Logger) *Scheduler {
	return &Scheduler{hand: w, cfg: cfg, logger: logger}
}

// Prime sends p once and waits for the motors to settle, so the first
// periodic write does not hit a bus still coming out of disabled torque.
func (s *Scheduler) Prime(ctx context.Context, p hand.Pose) error {
	if err := s.hand.SetPose(p); err != nil {
		return errors.Wrap(err, "failed to send first frame")
	}
	if !utils.SelectContextOrWait(ctx, s.cfg.Settle) {
		return ctx.Err()
	}
	return nil
}

// Play sends one frame per period. Deadlines are t0 + (i+1)/hz, anchored at
// the dispatch of frame 0, so per-frame overhead does not accumulate.
// Cancellation ends playback early and is not reported as an error.
func (s *Scheduler) Play(ctx context.Context, traj hand.Trajectory, hz float64) (Report, error) {
	var report Report
	if !(hz > 0) {
		return report, errors.Wrapf(hand.ErrValidation, "playback rate must be positive, got %g", hz)
	}
	period := time.Duration(float64(time.Second) / hz)

	s.logger.Infof("Playing trajectory: %d frames at %.1f Hz", len(traj), hz)
	budget := hand.TimeoutBudget{Max: s.cfg.MaxConsecutiveTimeouts}
	t0 := time.Now()
	for i, pose := range traj {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		if err := s.hand.SetPose(pose); err != nil {
			if !budget.Skip(err) {
				report.Elapsed = time.Since(t0)
				return report, errors.Wrapf(err, "frame %d", i)
			}
			report.Skipped++
			s.logger.Warnf("Skipped frame %d: %v", i, err)
		} else {
			budget.Reset()
			report.Frames++
		}

		late, ok := s.waitUntil(ctx, t0.Add(time.Duration(i+1)*period))
		if !ok {
			// Every frame is out; only the trailing period was cut short.
			report.Cancelled = i < len(traj)-1
			break
		}
		if late > report.MaxLateness {
			report.MaxLateness = late
		}
	}
	report.Elapsed = time.Since(t0)

	if report.Cancelled {
		s.logger.Infof("Playback cancelled after %d frames", report.Frames+report.Skipped)
	} else {
		s.logger.Infof("Trajectory finished in %s (max lateness %s)", report.Elapsed.Round(time.Millisecond), report.MaxLateness)
	}
	return report, nil
}

// Hold re-sends p every HoldInterval until ctx is cancelled.
func (s *Scheduler) Hold(ctx context.Context, p hand.Pose) (Report, error) {
	var report Report
	budget := hand.TimeoutBudget{Max: s.cfg.MaxConsecutiveTimeouts}
	t0 := time.Now()

	s.logger.Info("Holding pose until interrupted")
	for {
		if err := s.hand.SetPose(p); err != nil {
			if !budget.Skip(err) {
				report.Elapsed = time.Since(t0)
				return report, errors.Wrap(err, "hold")
			}
			report.Skipped++
			s.logger.Warnf("Hold refresh failed: %v", err)
		} else {
			budget.Reset()
			report.Frames++
		}

		if !utils.SelectContextOrWait(ctx, s.cfg.HoldInterval) {
			report.Cancelled = true
			report.Elapsed = time.Since(t0)
			s.logger.Infof("Stopped holding after %d refreshes", report.Frames)
			return report, nil
		}
	}
}

// waitUntil blocks until deadline, sleeping coarsely and busy-polling the last
// SpinWindow. It returns how late it woke, and false if ctx was cancelled.
func (s *Scheduler) waitUntil(ctx context.Context, deadline time.Time) (time.Duration, bool) {
	if remaining := time.Until(deadline) - s.cfg.SpinWindow; remaining > 0 {
		if !utils.SelectContextOrWait(ctx, remaining) {
			return 0, false
		}
	}
	for {
		now := time.Now()
		if !now.Before(deadline) {
			return now.Sub(deadline), true
		}
		runtime.Gosched()
	}
}
