package main

import (
	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "slotbook",
		Short: "Corporate time-slot booking service",
		Long: `slotbook runs the slot booking API and its maintenance tasks.

Configuration comes from SLOTBOOK_* environment variables, optionally layered
over a YAML file given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error); overrides configuration")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newGenerateSlotsCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))

	return cmd
}
