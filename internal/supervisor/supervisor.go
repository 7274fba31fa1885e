// Package supervisor builds one reconciliation engine per account and runs
// them side by side with the process-wide services.
package supervisor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/autotrade/internal/clients"
	"github.com/vadiminshakov/autotrade/internal/clients/buff"
	"github.com/vadiminshakov/autotrade/internal/clients/steam"
	"github.com/vadiminshakov/autotrade/internal/cookiecrypt"
	"github.com/vadiminshakov/autotrade/internal/domain"
	"github.com/vadiminshakov/autotrade/internal/engine"
	"github.com/vadiminshakov/autotrade/internal/session"
	"github.com/vadiminshakov/autotrade/internal/storage/cookies"
)

// DefaultSaveInterval is the pause between two cookie saves.
const DefaultSaveInterval = 5 * time.Minute

type payloadEncryptor interface {
	EncryptCookies(src cookiecrypt.CookieSource) (string, error)
}

type cookieStore interface {
	Register(username string, s cookies.Session)
	Load() error
	Save() error
}

type notifierGroup interface {
	NotifyException(ctx context.Context, account string, err error) error
	Start(ctx context.Context) error
}

type journal interface {
	Record(rec domain.ActionRecord) error
}

// Worker is the set of components serving one account.
type Worker struct {
	Account domain.Account
	Jar     *session.Jar
	Buff    *buff.Client
	Steam   *steam.Client
	Engine  *engine.Engine
}

type service struct {
	name string
	run  func(ctx context.Context) error
}

// Supervisor owns the workers of all accounts.
type Supervisor struct {
	workers      []*Worker
	store        cookieStore
	notifier     notifierGroup
	journal      journal
	services     []service
	saveInterval time.Duration

	buffOpts   []buff.Option
	steamOpts  []steam.Option
	engineOpts []engine.Option

	l *zap.Logger
}

// Option customises a Supervisor.
type Option func(*Supervisor)

// WithJournal records the actions of every engine in j.
func WithJournal(j journal) Option {
	return func(s *Supervisor) { s.journal = j }
}

// WithSaveInterval changes how often cookies are saved while running.
func WithSaveInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.saveInterval = d }
}

// WithBuffOptions passes options to every buff client.
func WithBuffOptions(opts ...buff.Option) Option {
	return func(s *Supervisor) { s.buffOpts = append(s.buffOpts, opts...) }
}

// WithSteamOptions passes options to every steam client.
func WithSteamOptions(opts ...steam.Option) Option {
	return func(s *Supervisor) { s.steamOpts = append(s.steamOpts, opts...) }
}

// WithEngineOptions passes options to every engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *Supervisor) { s.engineOpts = append(s.engineOpts, opts...) }
}

// New wires a worker for every account and restores persisted cookies into
// their sessions. A nil encryptor makes trade offer submission fail, which
// is enough for session checks.
func New(accounts []domain.Account, encryptor payloadEncryptor, store cookieStore, group notifierGroup,
	l *zap.Logger, opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		store:        store,
		notifier:     group,
		saveInterval: DefaultSaveInterval,
		l:            l,
	}
	for _, opt := range opts {
		opt(s)
	}
	if encryptor == nil {
		encryptor = missingKey{}
	}

	engineOpts := s.engineOpts
	if s.journal != nil {
		engineOpts = append([]engine.Option{engine.WithJournal(s.journal)}, engineOpts...)
	}

	for _, account := range accounts {
		logger := l.With(zap.String("account", account.Username))

		transport, err := clients.NewTransport(account.Proxy)
		if err != nil {
			return nil, errors.Wrapf(err, "account %s", account.Username)
		}

		jar := session.NewJar()
		steamClient := steam.NewClient(account, jar, transport, logger, s.steamOpts...)
		buffClient := buff.NewClient(jar, transport, encryptor, logger, s.buffOpts...)
		buffClient.SetOpenIDBridge(steamClient.LoginOpenID)

		s.store.Register(account.Username, jar)
		s.workers = append(s.workers, &Worker{
			Account: account,
			Jar:     jar,
			Buff:    buffClient,
			Steam:   steamClient,
			Engine:  engine.New(account, buffClient, steamClient, group, l, engineOpts...),
		})
	}

	if err := s.store.Load(); err != nil {
		return nil, errors.Wrap(err, "load cookies")
	}

	return s, nil
}

// AddService runs fn next to the engines until shutdown. A failing service
// is logged and does not stop the engines. Must be called before Run.
func (s *Supervisor) AddService(name string, fn func(ctx context.Context) error) {
	s.services = append(s.services, service{name: name, run: fn})
}

// Workers returns the workers in configuration order.
func (s *Supervisor) Workers() []*Worker {
	return s.workers
}

// Statuses returns the status of every engine.
func (s *Supervisor) Statuses() []engine.Status {
	out := make([]engine.Status, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w.Engine.Status())
	}
	return out
}

// LoginAll logs every account into Steam and then buff, one account after
// another. Failures of all accounts are reported together.
func (s *Supervisor) LoginAll(ctx context.Context, force bool) error {
	var errs error
	for _, w := range s.workers {
		if err := s.login(ctx, w, force); err != nil {
			s.l.Error("login failed", zap.String("account", w.Account.Username), zap.Error(err))
			errs = multierr.Append(errs, errors.Wrapf(err, "account %s", w.Account.Username))
		}
	}
	if saveErr := s.store.Save(); saveErr != nil {
		s.l.Warn("failed to save cookies after login", zap.Error(saveErr))
	}
	return errs
}

func (s *Supervisor) login(ctx context.Context, w *Worker, force bool) error {
	if _, err := w.Steam.Login(ctx, force); err != nil {
		return errors.Wrap(err, "steam login")
	}
	if _, err := w.Buff.Login(ctx, force); err != nil {
		return errors.Wrap(err, "buff login")
	}
	return nil
}

// Run runs all engines and services until ctx is done, then saves cookies.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, w := range s.workers {
		g.Go(func() error {
			return w.Engine.Run(gctx)
		})
	}

	g.Go(func() error {
		s.saveLoop(gctx)
		return nil
	})

	if s.notifier != nil {
		g.Go(func() error {
			if err := s.notifier.Start(gctx); err != nil {
				s.l.Error("notifier loops stopped", zap.Error(err))
			}
			return nil
		})
	}

	for _, svc := range s.services {
		g.Go(func() error {
			if err := svc.run(gctx); err != nil {
				s.l.Error("service stopped", zap.String("service", svc.name), zap.Error(err))
			}
			return nil
		})
	}

	s.l.Info("supervisor started", zap.Int("accounts", len(s.workers)), zap.Int("services", len(s.services)))
	err := g.Wait()

	if saveErr := s.store.Save(); saveErr != nil {
		err = multierr.Append(err, errors.Wrap(saveErr, "save cookies at shutdown"))
	}
	s.l.Info("supervisor stopped")
	return err
}

func (s *Supervisor) saveLoop(ctx context.Context) {
	ticker := time.NewTicker(s.saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.store.Save(); err != nil {
				s.l.Warn("failed to save cookies", zap.Error(err))
				continue
			}
			s.l.Debug("cookies saved")
		}
	}
}

type missingKey struct{}

func (missingKey) EncryptCookies(cookiecrypt.CookieSource) (string, error) {
	return "", errors.New("buff public key is not loaded")
}
