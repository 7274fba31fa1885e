// Package notifier fans operator notifications out to every configured
// notification channel.
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultTimeout bounds one fan-out so a hung channel cannot stall a worker.
const DefaultTimeout = 30 * time.Second

// Notifier is an out-of-band channel to the operator.
type Notifier interface {
	NotifyException(ctx context.Context, account string, err error) error
	NotifyTest(ctx context.Context) error
	// Start runs the channel's background loop until ctx is done.
	Start(ctx context.Context) error
}

// Group delivers every notification to all of its notifiers concurrently.
// One failing or panicking notifier never affects the others.
type Group struct {
	notifiers []Notifier
	timeout   time.Duration
	l         *zap.Logger
}

// NewGroup returns a group over notifiers.
func NewGroup(l *zap.Logger, notifiers ...Notifier) *Group {
	return &Group{
		notifiers: notifiers,
		timeout:   DefaultTimeout,
		l:         l,
	}
}

// Len returns the number of notifiers in the group.
func (g *Group) Len() int {
	return len(g.notifiers)
}

// NotifyException reports err of account to every notifier.
func (g *Group) NotifyException(ctx context.Context, account string, err error) error {
	return g.fanOut(ctx, "exception", func(ctx context.Context, n Notifier) error {
		return n.NotifyException(ctx, account, err)
	})
}

// NotifyTest sends the test message through every notifier.
func (g *Group) NotifyTest(ctx context.Context) error {
	return g.fanOut(ctx, "test", func(ctx context.Context, n Notifier) error {
		return n.NotifyTest(ctx)
	})
}

// Start runs all background loops and returns when every loop has ended.
func (g *Group) Start(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for i, n := range g.notifiers {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			err := safeCall(func() error { return n.Start(ctx) })
			if err != nil {
				g.l.Error("notifier loop stopped", zap.Int("notifier", i), zap.Error(err))
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}(i, n)
	}
	wg.Wait()
	return errs
}

func (g *Group) fanOut(ctx context.Context, kind string, call func(context.Context, Notifier) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	results := make([]error, len(g.notifiers))
	var wg sync.WaitGroup
	for i, n := range g.notifiers {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			results[i] = safeCall(func() error { return call(ctx, n) })
		}(i, n)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			g.l.Warn("notification failed", zap.String("kind", kind), zap.Int("notifier", i), zap.Error(err))
		}
	}
	return multierr.Combine(results...)
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("notifier panic: %v", r)
		}
	}()
	return fn()
}
