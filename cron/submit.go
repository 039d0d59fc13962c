package cron

import (
	"context"
	"sync"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
)

// Submitter accepts actions for execution. manager.Manager implements it.
type Submitter[K comparable] interface {
	Submit(a *actionqueue.Action[K]) (bool, error)
}

// Factory builds the action for one scheduled run.
type Factory[K comparable] func(ctx context.Context) (*actionqueue.Action[K], error)

// SubmitJob returns a Job that builds an action and submits it.
// A rejected submission surfaces as ErrRejected so the schedule can retry it
// with the same, never-started action.
func SubmitJob[K comparable](sub Submitter[K], factory Factory[K]) Job {
	var (
		mu      sync.Mutex
		pending *actionqueue.Action[K]
	)
	return func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()

		a := pending
		if a == nil {
			var err error
			if a, err = factory(ctx); err != nil {
				return err
			}
			if a == nil {
				return actionqueue.NewError(actionqueue.ErrNilAction, "factory returned a nil action", nil, nil)
			}
		}

		admitted, err := sub.Submit(a)
		if err != nil {
			pending = nil
			return err
		}
		if !admitted {
			pending = a
			return actionqueue.NewError(actionqueue.ErrRejected, "", nil, map[string]any{
				"action_id": a.ID(),
				"kind":      a.Kind(),
			})
		}
		pending = nil
		return nil
	}
}

// SubmitCron submits an action built by factory on every tick of cfg.Expression.
func SubmitCron[K comparable](s *Scheduler, cfg JobConfig, sub Submitter[K], factory Factory[K]) (Handle, error) {
	if err := validateProducer(sub, factory); err != nil {
		return nil, err
	}
	return s.ScheduleCron(cfg, SubmitJob(sub, factory))
}

// SubmitAfter submits one action after delay.
func SubmitAfter[K comparable](s *Scheduler, delay time.Duration, cfg JobConfig, sub Submitter[K], factory Factory[K]) (Handle, error) {
	if err := validateProducer(sub, factory); err != nil {
		return nil, err
	}
	return s.ScheduleAfter(delay, cfg, SubmitJob(sub, factory))
}

// SubmitAt submits one action at a specific time.
func SubmitAt[K comparable](s *Scheduler, at time.Time, cfg JobConfig, sub Submitter[K], factory Factory[K]) (Handle, error) {
	if err := validateProducer(sub, factory); err != nil {
		return nil, err
	}
	return s.ScheduleAt(at, cfg, SubmitJob(sub, factory))
}

func validateProducer[K comparable](sub Submitter[K], factory Factory[K]) error {
	if sub == nil {
		return actionqueue.NewError(actionqueue.ErrConfigInvalid, "submitter cannot be nil", nil, nil)
	}
	if factory == nil {
		return actionqueue.NewError(actionqueue.ErrConfigInvalid, "action factory cannot be nil", nil, nil)
	}
	return nil
}
