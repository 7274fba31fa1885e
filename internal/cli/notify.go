package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewNotifyTestCommand creates the notify-test command.
func NewNotifyTestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "notify-test",
		Short:         "Send a test notification through every configured notifier",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotifyTest(cmd, rootOpts)
		},
	}
}

func runNotifyTest(cmd *cobra.Command, opts *RootOptions) error {
	l, err := newLogger(opts.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	group := buildNotifiers(cfg, l)
	if group.Len() == 0 {
		return errors.New("no notifiers configured")
	}

	ctx, stop := signalContext()
	defer stop()

	if err := group.NotifyTest(ctx); err != nil {
		return errors.Wrap(err, "test notification")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Test notification sent through %d notifier(s)\n", group.Len())
	return nil
}
