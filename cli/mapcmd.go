package cli

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/clintpurser/leaphand/hand"
)

func (a *app) mapCommand() *cobra.Command {
	var toRaw bool

	cmd := &cobra.Command{
		Use:   "map <16 angles>",
		Short: "Convert a pose between raw and visualization space",
		Long: `Convert 16 joint angles from raw to visualization space, or back with
--to-raw. Put -- before the angles when any of them is negative.`,
		Args:  cobra.ExactArgs(hand.NumJoints),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p hand.Pose
			for i, arg := range args {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return errors.Wrapf(hand.ErrValidation, "joint %d: %v", i, err)
				}
				p[i] = v
			}

			if toRaw {
				p = a.mapper.ToRaw(p)
			} else {
				p = a.mapper.ToVisual(p)
			}
			for i, v := range p {
				sep := " "
				if i == len(p)-1 {
					sep = "\n"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%.4f%s", v, sep)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&toRaw, "to-raw", false, "input is visualization space, output raw")
	return cmd
}
