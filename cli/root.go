// Package cli wires the hand packages into the leaphand command line.
package cli

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.viam.com/rdk/logging"

	"github.com/clintpurser/leaphand/config"
	"github.com/clintpurser/leaphand/dynamixel"
	"github.com/clintpurser/leaphand/hand"
	"github.com/clintpurser/leaphand/mapping"
)

// Option customizes the root command.
type Option func(*app)

// WithDialer replaces the serial Dynamixel bus, mainly for tests.
func WithDialer(dial hand.Dialer) Option {
	return func(a *app) { a.dial = dial }
}

type app struct {
	logger  logging.Logger
	dial    hand.Dialer
	cfgFile string
	cfg     *config.Config
	mapper  *mapping.Mapper
}

// NewRootCommand builds the leaphand command tree.
func NewRootCommand(logger logging.Logger, opts ...Option) *cobra.Command {
	a := &app{logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:           "leaphand",
		Short:         "Drive and observe a LEAP hand over its Dynamixel bus",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./leaphand.yaml)")

	root.AddCommand(
		a.sendCommand(),
		a.syncCommand(),
		a.calibrateCommand(),
		a.mapCommand(),
	)
	return root
}

func (a *app) loadConfig() error {
	v, err := config.New(a.cfgFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return errors.Wrapf(hand.ErrConfiguration, "logging.level: %v", err)
	}
	a.logger.SetLevel(level)

	tables, err := cfg.Tables()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.mapper = mapping.New(tables)
	if a.dial == nil {
		a.dial = dynamixel.Dialer(cfg.Bus.ReadTimeout)
	}
	return nil
}

// withController brings the hand up, runs fn and always releases the bus with
// torque disabled, whether fn returns normally, fails or is cancelled.
func (a *app) withController(torque bool, fn func(*hand.Controller) error) (err error) {
	ctrl, err := hand.Connect(a.dial, a.cfg.Connection(), a.logger.Sublogger("hand"))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ctrl.Close(); cerr != nil {
			a.logger.Warnf("Failed to release hand: %v", cerr)
			if err == nil {
				err = cerr
			}
		}
	}()

	if err := ctrl.Configure(a.cfg.Gains()); err != nil {
		return errors.Wrap(err, "bring-up failed")
	}
	if err := ctrl.SetTorque(torque); err != nil {
		return errors.Wrap(err, "bring-up failed")
	}
	return fn(ctrl)
}
