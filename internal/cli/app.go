package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/config"
	"github.com/vadiminshakov/autotrade/internal/cookiecrypt"
	"github.com/vadiminshakov/autotrade/internal/notifier"
	"github.com/vadiminshakov/autotrade/internal/notifier/telegram"
	"github.com/vadiminshakov/autotrade/internal/storage/cookies"
	"github.com/vadiminshakov/autotrade/internal/supervisor"
)

func newLogger(debug bool) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, errors.Wrap(err, "init logger")
	}
	zap.ReplaceGlobals(l)
	return l, nil
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	if err := config.LoadEnv(opts.EnvFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	opts.Apply(&cfg)
	return cfg, nil
}

func buildNotifiers(cfg config.Config, l *zap.Logger) *notifier.Group {
	var list []notifier.Notifier
	for _, n := range cfg.Notifiers {
		switch n.Type {
		case config.NotifierTelegram:
			list = append(list, telegram.New(n.Token, n.Whitelist, l.With(zap.String("notifier", n.Type))))
		}
	}
	return notifier.NewGroup(l, list...)
}

// buildSupervisor wires the enabled accounts. Without encryptor the workers
// can check and establish sessions but not submit trade offers.
func buildSupervisor(cfg config.Config, opts *RootOptions, encryptor *cookiecrypt.Encryptor, group *notifier.Group,
	l *zap.Logger, supOpts ...supervisor.Option) (*supervisor.Supervisor, error) {
	accounts := cfg.EnabledAccounts()
	if len(accounts) == 0 {
		return nil, errors.New("no enabled accounts in config")
	}
	store := cookies.NewStore(cfg.CookiesFile, !opts.NoCookies)

	if encryptor == nil {
		return supervisor.New(accounts, nil, store, group, l, supOpts...)
	}
	return supervisor.New(accounts, encryptor, store, group, l, supOpts...)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
