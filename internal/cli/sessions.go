package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vadiminshakov/autotrade/internal/notifier"
)

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Check if accounts are logged in and exit",
		Long: `Loads persisted cookies and reports for every enabled account whether
its Steam and buff sessions are alive. Nothing is logged in.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(cmd, rootOpts)
		},
	}
}

func runSessions(cmd *cobra.Command, opts *RootOptions) error {
	l, err := newLogger(opts.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	// nothing is saved by a read-only check
	opts.NoCookies = true
	sup, err := buildSupervisor(cfg, opts, nil, notifier.NewGroup(l), l)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	out := cmd.OutOrStdout()
	for _, st := range sup.CheckSessions(ctx) {
		fmt.Fprintf(out, "Checking %s session for %s... ", st.Remote, st.Account)
		switch {
		case st.Err != nil:
			fmt.Fprintf(out, "Check failed: %v\n", st.Err)
		case st.Alive:
			fmt.Fprintln(out, "Session is alive")
		default:
			fmt.Fprintln(out, "Session is not alive")
		}
	}
	return nil
}
