package cli

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/clintpurser/leaphand/hand"
	"github.com/clintpurser/leaphand/trajectory"
)

func (a *app) sendCommand() *cobra.Command {
	var (
		pose   []float64
		hz     float64
		visual bool
	)

	cmd := &cobra.Command{
		Use:   "send [trajectory-file]",
		Short: "Play a (T,16) trajectory file or hold a single pose",
		Long: `Play a trajectory file (.npy, .json or .csv of shape (T,16)) at --hz, or
hold the pose given with --pose until interrupted. Angles are raw hand radians
unless --visual is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromFile := len(args) == 1
			switch {
			case fromFile && cmd.Flags().Changed("pose"):
				return errors.Wrap(hand.ErrValidation, "a trajectory file and --pose are mutually exclusive")
			case !fromFile && !cmd.Flags().Changed("pose"):
				return errors.Wrap(hand.ErrValidation, "give a trajectory file or --pose")
			case !fromFile && cmd.Flags().Changed("hz"):
				return errors.Wrap(hand.ErrValidation, "--hz only applies to trajectory files")
			}
			if !cmd.Flags().Changed("hz") {
				hz = a.cfg.Playback.Hz
			}
			if fromFile && !(hz > 0) {
				return errors.Wrapf(hand.ErrValidation, "--hz must be positive, got %g", hz)
			}

			var traj hand.Trajectory
			if fromFile {
				var err error
				if traj, err = trajectory.Load(args[0]); err != nil {
					return err
				}
			} else {
				p, err := hand.PoseFromSlice(pose)
				if err != nil {
					return err
				}
				traj = hand.Trajectory{p}
			}
			if visual {
				for i := range traj {
					traj[i] = a.mapper.ToRaw(traj[i])
				}
			}

			return a.withController(true, func(ctrl *hand.Controller) error {
				return a.send(cmd.Context(), ctrl, traj, hz, fromFile)
			})
		},
	}

	cmd.Flags().Float64SliceVar(&pose, "pose", nil, "16 comma-separated joint angles to hold")
	cmd.Flags().Float64Var(&hz, "hz", 20.0, "playback rate for trajectory files")
	cmd.Flags().BoolVar(&visual, "visual", false, "angles are in visualization (URDF) space")
	return cmd
}

func (a *app) send(ctx context.Context, ctrl *hand.Controller, traj hand.Trajectory, hz float64, playback bool) error {
	sched := trajectory.NewScheduler(ctrl, a.cfg.Scheduler(), a.logger.Sublogger("trajectory"))

	if err := sched.Prime(ctx, traj[0]); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if !playback {
		_, err := sched.Hold(ctx, traj[0])
		return err
	}

	report, err := sched.Play(ctx, traj, hz)
	if err != nil {
		return err
	}
	if report.Skipped > 0 {
		a.logger.Warnf("%d of %d frames were skipped after bus timeouts", report.Skipped, len(traj))
	}
	return nil
}
