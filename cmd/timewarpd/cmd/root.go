// Package cmd implements the timewarpd command-line interface: a root
// command plus run/validate subcommands, grounded on the teacher's
// internal/infrastructure/migrations.CLI cobra wiring (one constructor
// function per subcommand, RunE returning wrapped errors, flags declared
// alongside the command that consumes them).
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

// NewRootCommand builds the timewarpd root command with its subcommands
// attached.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "timewarpd",
		Short: "Time Warp optimistic distributed simulation runtime",
		Long:  "timewarpd boots a federation process: it loads a component/address configuration file, wires up the Rollback Manager, Priority Message Queue, and Execution Loop for each locally hosted component, and serves an admin HTTP surface for health, metrics, and live status.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the federation config YAML file")

	root.AddCommand(
		newRunCommand(),
		newValidateCommand(),
	)

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}
