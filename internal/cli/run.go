package cli

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/internal/cookiecrypt"
	"github.com/vadiminshakov/autotrade/internal/storage/journal"
	"github.com/vadiminshakov/autotrade/internal/supervisor"
	"github.com/vadiminshakov/autotrade/internal/web"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reconciliation workers (default)",
		Long: `Logs every enabled account into Steam and buff, then runs one
reconciliation worker per account until interrupted.

Examples:
  autotrade run --config config.yaml
  autotrade run --force-login --refresh-period 45s`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(cmd, rootOpts)
		},
	}
}

func runService(cmd *cobra.Command, opts *RootOptions) (err error) {
	l, err := newLogger(opts.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	encryptor, err := cookiecrypt.LoadEncryptor(cfg.PubKeyFile)
	if err != nil {
		return errors.Wrap(err, "load buff public key")
	}

	actions, err := journal.NewWALStore(cfg.JournalDir)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, errors.Wrap(actions.Close(), "close action journal"))
	}()

	group := buildNotifiers(cfg, l)
	sup, err := buildSupervisor(cfg, opts, encryptor, group, l, supervisor.WithJournal(actions))
	if err != nil {
		return err
	}

	if cfg.Status.Addr != "" {
		srv := web.NewServer(cfg.Status.Addr, sup, actions, l.With(zap.String("service", "status")))
		if cfg.Status.Domain != "" {
			sup.AddService("status", func(ctx context.Context) error {
				return srv.StartWithAutoTLS(ctx, cfg.Status.Domain, cfg.Status.CacheDir)
			})
		} else {
			sup.AddService("status", srv.Start)
		}
	}

	ctx, stop := signalContext()
	defer stop()

	if opts.NoLoginCheck {
		l.Info("login check skipped")
	} else if err := sup.LoginAll(ctx, opts.ForceLogin); err != nil {
		return errors.Wrap(err, "login")
	}

	l.Info("autotrade started",
		zap.Int("accounts", len(sup.Workers())),
		zap.Int("notifiers", group.Len()),
		zap.Duration("refresh_period", cfg.RefreshPeriod),
	)
	return sup.Run(ctx)
}
