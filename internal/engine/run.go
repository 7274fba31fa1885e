package engine

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Run repeats reconciliation cycles until ctx is done. Faults never end the
// loop: a fault long after the previous one is logged and followed by a
// session check, a fault shortly after it is escalated to the notifier and
// followed by a long pause.
func (e *Engine) Run(ctx context.Context) error {
	e.l.Info("starting reconciliation loop", zap.Duration("refresh_period", e.account.RefreshPeriod))

	state := StateRunning
	var fault error

	for ctx.Err() == nil {
		switch state {
		case StateRunning:
			fault = e.runCycles(ctx)
			if ctx.Err() != nil {
				break
			}
			state = e.policy.Next(state, fault, 0)

		case StateRecovering:
			elapsed := e.now().Sub(e.lastFault)
			state = e.policy.Next(state, fault, elapsed)
			if state != StateRunning {
				break
			}

			e.l.Error("reconciliation cycle failed", zap.Error(fault))
			e.lastFault = e.now()
			e.updateStatus(func(s *Status) {
				s.LastFault = e.lastFault
				s.LastError = fault.Error()
			})

			if err := e.relogin(ctx); err != nil && ctx.Err() == nil {
				fault = errors.Wrap(err, "re-login after failure")
				state = StateRecovering
			}

		case StateEscalated:
			e.escalate(ctx, fault)
			if err := e.sleep(ctx, e.policy.EscalationBackoff); err != nil {
				break
			}
			state = e.policy.Next(state, fault, 0)
		}

		e.updateStatus(func(s *Status) { s.State = state })
	}

	e.l.Info("reconciliation loop stopped")
	return nil
}

// runCycles runs cycles separated by the refresh period and returns the
// first fault, or nil once ctx is done.
func (e *Engine) runCycles(ctx context.Context) error {
	for {
		if err := e.RunCycle(ctx); err != nil {
			return err
		}
		if err := e.sleep(ctx, e.account.RefreshPeriod); err != nil {
			return nil
		}
	}
}

// relogin re-establishes both sessions if they are gone.
func (e *Engine) relogin(ctx context.Context) error {
	_, platformErr := e.platform.Login(ctx, false)
	if platformErr != nil {
		return errors.Wrap(platformErr, "steam login")
	}
	_, marketErr := e.market.Login(ctx, false)
	return errors.Wrap(marketErr, "buff login")
}

func (e *Engine) escalate(ctx context.Context, fault error) {
	e.l.Error("repeated failure, escalating", zap.Error(fault))
	e.updateStatus(func(s *Status) {
		s.Escalations++
		s.LastError = fault.Error()
	})

	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyException(ctx, e.account.Username, fault); err != nil {
		e.l.Warn("escalation notification failed", zap.Error(err))
	}
}
