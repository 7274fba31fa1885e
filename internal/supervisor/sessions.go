package supervisor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/autotrade/internal/domain"
	"github.com/vadiminshakov/autotrade/pkg/retrier"
)

const (
	RemoteSteam = "steam"
	RemoteBuff  = "buff"
)

// SessionStatus is the outcome of one liveness probe.
type SessionStatus struct {
	Account string
	Remote  string
	Alive   bool
	Err     error
}

type liveness interface {
	IsSessionAlive(ctx context.Context) (bool, error)
}

// CheckSessions probes the Steam and buff sessions of every account without
// logging in. Transport failures are retried a few times.
func (s *Supervisor) CheckSessions(ctx context.Context) []SessionStatus {
	r := retrier.New(
		retrier.WithMaxRetries(2),
		retrier.WithInitialInterval(time.Second),
		retrier.WithRetryable(func(err error) bool {
			var statusErr *domain.HTTPStatusError
			if errors.As(err, &statusErr) {
				return statusErr.Code >= 500
			}
			return !domain.IsAuthError(err)
		}),
	)

	out := make([]SessionStatus, 0, 2*len(s.workers))
	for _, w := range s.workers {
		for _, probe := range []struct {
			remote string
			client liveness
		}{
			{remote: RemoteSteam, client: w.Steam},
			{remote: RemoteBuff, client: w.Buff},
		} {
			alive, err := retrier.DoWithData(r, ctx, probe.client.IsSessionAlive)
			status := SessionStatus{Account: w.Account.Username, Remote: probe.remote, Alive: alive, Err: err}
			s.l.Info("session checked",
				zap.String("account", status.Account),
				zap.String("remote", status.Remote),
				zap.Bool("alive", status.Alive),
				zap.Error(status.Err),
			)
			out = append(out, status)
		}
	}
	return out
}
