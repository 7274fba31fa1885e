package cli

import (
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/autotrade/internal/setup"
)

// NewSetupCommand creates the setup command.
func NewSetupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "setup",
		Short:         "Interactively add an account to the config",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.RunTUI(rootOpts.ConfigPath, rootOpts.EnvFile)
		},
	}
}
