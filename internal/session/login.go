package session

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/internal/domain"
)

// Authenticator is a remote capability with its own session.
type Authenticator interface {
	IsSessionAlive(ctx context.Context) (bool, error)
	InteractiveLogin(ctx context.Context) error
}

// Login establishes a session for a.
//
// Without force an alive session is kept and Login reports false. Otherwise
// the interactive flow runs and liveness is verified again; a session that is
// still dead after that is reported as domain.ErrLoginFailed.
func Login(ctx context.Context, a Authenticator, force bool, l *zap.Logger) (bool, error) {
	if !force {
		alive, err := a.IsSessionAlive(ctx)
		if err != nil {
			return false, errors.Wrap(err, "failed to check session")
		}
		if alive {
			l.Debug("session is alive")
			return false, nil
		}
		l.Info("session is not alive, logging in")
	} else {
		l.Info("forced login")
	}

	if err := a.InteractiveLogin(ctx); err != nil {
		return false, errors.Wrap(err, "interactive login")
	}

	alive, err := a.IsSessionAlive(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to verify session after login")
	}
	if !alive {
		return false, errors.WithStack(domain.ErrLoginFailed)
	}

	l.Info("logged in")
	return true, nil
}
