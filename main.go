// Package main is the entry point for the leaphand command.
package main

import (
	"context"

	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	"github.com/clintpurser/leaphand/cli"
)

func main() {
	utils.ContextualMain(mainWithArgs, logging.NewLogger("leaphand"))
}

// mainWithArgs runs until the command finishes or ctx is cancelled by an
// interrupt. Cancellation is a clean exit; fatal bring-up errors exit non-zero.
func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	root := cli.NewRootCommand(logger)
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
