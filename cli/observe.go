package cli

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.viam.com/utils"

	"github.com/clintpurser/leaphand/hand"
	"github.com/clintpurser/leaphand/syncloop"
)

func (a *app) syncCommand() *cobra.Command {
	var (
		jsonl  bool
		quiet  bool
		torque bool
		broker string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Stream live joint angles, mapped to visualization space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var sinks []syncloop.Sink
			if !quiet {
				sinks = append(sinks, &syncloop.LogSink{Logger: a.logger.Sublogger("pose")})
			}
			if jsonl {
				sinks = append(sinks, syncloop.NewJSONSink(cmd.OutOrStdout(), false))
			}
			mqttCfg := a.cfg.MQTTSink()
			if broker != "" {
				mqttCfg.Broker = broker
			}
			if mqttCfg.Broker != "" {
				mq, err := syncloop.NewMQTTSink(mqttCfg, a.logger.Sublogger("mqtt"))
				if err != nil {
					return err
				}
				defer mq.Close()
				sinks = append(sinks, mq)
			}
			if len(sinks) == 0 {
				return errors.New("nothing to stream to: drop --quiet or add --jsonl / --mqtt")
			}
			sink, err := syncloop.NewTee(sinks...)
			if err != nil {
				return err
			}

			return a.withController(torque, func(ctrl *hand.Controller) error {
				if err := ctrl.SetPose(hand.NeutralPose()); err != nil {
					return errors.Wrap(err, "failed to send initial pose")
				}
				a.logger.Info("Initial open pose sent, waiting for motors")
				if !utils.SelectContextOrWait(ctx, a.cfg.Sync.Settle) {
					return nil
				}
				return a.observe(ctx, ctrl, sink)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonl, "jsonl", false, "write joint states as JSON lines to stdout")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not log every pose")
	cmd.Flags().BoolVar(&torque, "torque", false, "keep torque enabled while observing")
	cmd.Flags().StringVar(&broker, "mqtt", "", "publish joint states to this MQTT broker")
	return cmd
}

func (a *app) calibrateCommand() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Record per-joint raw min/max while the fingers are moved by hand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cal := syncloop.NewCalibrationSink()
			sink, err := syncloop.NewTee(&syncloop.LogSink{Logger: a.logger.Sublogger("pose"), Raw: true}, cal)
			if err != nil {
				return err
			}

			a.logger.Info("Recording joint extremes: move every finger through its range, Ctrl+C to finish")
			if err := a.withController(false, func(ctrl *hand.Controller) error {
				return a.observe(cmd.Context(), ctrl, sink)
			}); err != nil {
				return err
			}

			if cal.Samples() == 0 {
				return nil
			}
			if out == "" {
				return cal.WriteYAML(cmd.OutOrStdout())
			}
			f, err := os.Create(out)
			if err != nil {
				return errors.Wrap(err, "failed to create limits file")
			}
			defer f.Close()
			if err := cal.WriteYAML(f); err != nil {
				return errors.Wrapf(err, "failed to write %s", out)
			}
			a.logger.Infof("Raw limits written to %s", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the limits.raw YAML fragment to this file")
	return cmd
}

func (a *app) observe(ctx context.Context, ctrl *hand.Controller, sink syncloop.Sink) error {
	stats, err := syncloop.Run(ctx, ctrl, a.mapper, sink, a.cfg.SyncLoop(), a.logger)
	a.logger.Infof("Observed %d poses (%d skipped reads)", stats.Iterations, stats.Skipped)
	return err
}
