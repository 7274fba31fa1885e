// Package engine reconciles one account's marketplace orders with its trade
// offers on the trading platform.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/internal/domain"
)

type marketplace interface {
	Notifications(ctx context.Context) (domain.NotificationSnapshot, error)
	ItemsToDeliver(ctx context.Context, game string) ([]domain.Item, error)
	ItemsToSendOffer(ctx context.Context, game string, count int) ([]domain.Item, error)
	TradesToAccept(ctx context.Context) ([]domain.TradeToAccept, error)
	SendTradeOffers(ctx context.Context, role domain.Role, ids []string) error
	Login(ctx context.Context, force bool) (bool, error)
}

type platform interface {
	AcceptTradeOffer(ctx context.Context, tradeOfferID string) error
	ConfirmTransaction(ctx context.Context, tradeOfferID string) error
	Login(ctx context.Context, force bool) (bool, error)
}

type notifier interface {
	NotifyException(ctx context.Context, account string, err error) error
}

type recorder interface {
	Record(rec domain.ActionRecord) error
}

// Status is a point-in-time view of an engine.
type Status struct {
	Account         string    `json:"account"`
	State           State     `json:"state"`
	Cycles          uint64    `json:"cycles"`
	LastCycle       time.Time `json:"last_cycle"`
	LastFault       time.Time `json:"last_fault"`
	LastError       string    `json:"last_error,omitempty"`
	Escalations     int       `json:"escalations"`
	KnownItems      int       `json:"known_items"`
	AcceptedTrades  int       `json:"accepted_trades"`
	ConfirmedTrades int       `json:"confirmed_trades"`
}

// Engine runs the poll, classify and act loop of one account. The dedup
// state is owned by the goroutine running Run and is never shared.
type Engine struct {
	account  domain.Account
	market   marketplace
	platform platform
	notifier notifier
	journal  recorder
	policy   Policy

	knownIDs        map[string]struct{}
	acceptedTrades  map[string]struct{}
	confirmedTrades map[string]struct{}
	lastFault       time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	l     *zap.Logger

	statusMu sync.RWMutex
	status   Status
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the clock used for the failure clock and records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleep replaces the pause between cycles and after escalations.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithJournal records every remote action in rec.
func WithJournal(rec recorder) Option {
	return func(e *Engine) { e.journal = rec }
}

// WithPolicy replaces the failure policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// New creates an engine for account.
func New(account domain.Account, market marketplace, platform platform, notifier notifier,
	l *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		account:         account,
		market:          market,
		platform:        platform,
		notifier:        notifier,
		policy:          DefaultPolicy(),
		knownIDs:        make(map[string]struct{}),
		acceptedTrades:  make(map[string]struct{}),
		confirmedTrades: make(map[string]struct{}),
		now:             time.Now,
		sleep:           sleepContext,
		l:               l.With(zap.String("account", account.Username)),
		status:          Status{Account: account.Username, State: StateRunning},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Account returns the account the engine works for.
func (e *Engine) Account() domain.Account {
	return e.account
}

// Status returns the latest published status. Safe for concurrent use.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

func (e *Engine) updateStatus(fn func(s *Status)) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	fn(&e.status)
	e.status.KnownItems = len(e.knownIDs)
	e.status.AcceptedTrades = len(e.acceptedTrades)
	e.status.ConfirmedTrades = len(e.confirmedTrades)
}

func (e *Engine) record(kind domain.ActionKind, tradeOfferID string, role domain.Role, ids []string,
	value decimal.Decimal, err error) {
	if e.journal == nil {
		return
	}

	rec := domain.ActionRecord{
		ID:           uuid.NewString(),
		Account:      e.account.Username,
		Kind:         kind,
		TradeOfferID: tradeOfferID,
		Role:         role,
		ItemIDs:      ids,
		Value:        value,
		Time:         e.now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if jerr := e.journal.Record(rec); jerr != nil {
		e.l.Warn("failed to journal action", zap.String("kind", string(kind)), zap.Error(jerr))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
