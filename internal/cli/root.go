// Package cli is the command line interface of the autotrade service.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/autotrade/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	config.Flags
	EnvFile string
}

// NewRootCommand creates the root command. Without a subcommand it runs the
// service.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "autotrade",
		Short: "Automates trade offers between buff163 and Steam",
		Long: `Polls buff163 for every configured account and reconciles pending
sell and buy orders with Steam trade offers: sends offers, accepts incoming
ones and confirms them on the mobile authenticator.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd, opts)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "path to config file")
	f.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file with secrets referenced from the config")
	f.StringVarP(&opts.CookiesFile, "cookies", "d", "", "path to cookies file (overrides config)")
	f.BoolVarP(&opts.NoCookies, "no-cookies", "n", false, "do not save cookies file")
	f.BoolVarP(&opts.NoLoginCheck, "no-login-check", "l", false, "do not check if accounts are logged in")
	f.BoolVarP(&opts.ForceLogin, "force-login", "f", false, "force login all accounts")
	f.DurationVarP(&opts.RefreshPeriod, "refresh-period", "r", 0, "buff trades refresh period (overrides config)")
	f.BoolVar(&opts.Debug, "debug", false, "development logging")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSessionsCommand(opts))
	cmd.AddCommand(NewNotifyTestCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewSetupCommand(opts))

	return cmd
}
