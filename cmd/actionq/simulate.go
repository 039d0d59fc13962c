package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-actionqueue/config"
	"github.com/goliatone/go-actionqueue/cron"
	"github.com/goliatone/go-actionqueue/manager"
	"github.com/goliatone/go-actionqueue/queue"
	"github.com/goliatone/go-actionqueue/runner"
	"golang.org/x/sync/errgroup"
)

const (
	kindOpen     = "open"
	kindWrite    = "write"
	kindSnapshot = "snapshot"
	kindClose    = "close"
	kindPing     = "ping"
)

var defaultKinds = map[string]actionqueue.Flags{
	kindOpen:     actionqueue.Creational,
	kindWrite:    actionqueue.None,
	kindSnapshot: actionqueue.Blocking,
	kindClose:    actionqueue.Terminating,
	kindPing:     actionqueue.Unqueued,
}

// Scenario drives one simulated session per key: open, a series of writes
// with a periodic snapshot, then close.
type Scenario struct {
	Keys          int
	ActionsPerKey int
	SnapshotEvery int
	WorkDelay     time.Duration
	Retries       int
	RetryDelay    time.Duration
	Ping          string
}

// Summary counts what happened during a simulation.
type Summary struct {
	Submitted  int64
	Admitted   int64
	Rejected   int64
	Succeeded  int64
	Failed     int64
	Pings      int64
	QueuesLeft int
	Elapsed    time.Duration
}

func (s Summary) String() string {
	return fmt.Sprintf(
		"submitted=%d admitted=%d rejected=%d succeeded=%d failed=%d pings=%d queues_left=%d elapsed=%s",
		s.Submitted, s.Admitted, s.Rejected, s.Succeeded, s.Failed, s.Pings, s.QueuesLeft, s.Elapsed.Round(time.Millisecond),
	)
}

type simulation struct {
	scenario Scenario
	table    *actionqueue.FlagTable
	manager  *manager.Manager[int]
	logger   actionqueue.Logger

	submitted atomic.Int64
	admitted  atomic.Int64
	rejected  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	pings     atomic.Int64
}

// flagTable returns the configured kinds, or the built-in session kinds.
func flagTable(cfg config.Config) (*actionqueue.FlagTable, error) {
	if len(cfg.Kinds) == 0 {
		return actionqueue.NewFlagTable(defaultKinds), nil
	}
	return cfg.FlagTable()
}

func runSimulation(ctx context.Context, sc Scenario, table *actionqueue.FlagTable, opts []manager.Option[int], logger actionqueue.Logger) (Summary, error) {
	if sc.Keys < 1 {
		sc.Keys = 1
	}
	if sc.SnapshotEvery < 0 {
		sc.SnapshotEvery = 0
	}
	logger = actionqueue.NormalizeLogger(logger)

	sim := &simulation{
		scenario: sc,
		table:    table,
		logger:   logger,
	}
	sim.manager = manager.New(opts...)

	start := time.Now()
	var scheduler *cron.Scheduler
	if sc.Ping != "" {
		scheduler = cron.NewScheduler(cron.WithLogger(logger))
		if _, err := cron.SubmitCron[int](scheduler, cron.JobConfig{Expression: sc.Ping}, sim.manager, sim.pingFactory); err != nil {
			sim.manager.Dispose()
			return Summary{}, err
		}
		_ = scheduler.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	for key := 0; key < sc.Keys; key++ {
		g.Go(func() error {
			return sim.session(gctx, key)
		})
	}
	err := g.Wait()

	if scheduler != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = scheduler.Stop(stopCtx)
		cancel()
	}

	summary := Summary{QueuesLeft: sim.manager.Len()}
	sim.manager.Dispose()

	summary.Submitted = sim.submitted.Load()
	summary.Admitted = sim.admitted.Load()
	summary.Rejected = sim.rejected.Load()
	summary.Succeeded = sim.succeeded.Load()
	summary.Failed = sim.failed.Load()
	summary.Pings = sim.pings.Load()
	summary.Elapsed = time.Since(start)
	return summary, err
}

func (s *simulation) session(ctx context.Context, key int) error {
	open := s.newAction(key, kindOpen)
	if err := s.submitAndWait(ctx, open); err != nil {
		return err
	}
	if open.Outcome() != actionqueue.OutcomeSucceeded {
		s.logger.Warn("session %d did not open", key)
		return nil
	}

	var batch []*actionqueue.Action[int]
	for i := 1; i <= s.scenario.ActionsPerKey; i++ {
		kind := kindWrite
		if s.scenario.SnapshotEvery > 0 && i%s.scenario.SnapshotEvery == 0 {
			kind = kindSnapshot
		}
		a := s.newAction(key, kind)
		ok, err := s.submit(ctx, a)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if kind == kindSnapshot {
			// the blocking window rejects everything until it is released
			if _, err := a.AwaitOutcome(ctx); err != nil {
				return err
			}
			continue
		}
		batch = append(batch, a)
	}
	for _, a := range batch {
		if _, err := a.AwaitOutcome(ctx); err != nil {
			return err
		}
	}

	return s.submitAndWait(ctx, s.newAction(key, kindClose))
}

func (s *simulation) newAction(key int, kind string) *actionqueue.Action[int] {
	delay := s.scenario.WorkDelay
	a := actionqueue.NewAction(key, func(ctx context.Context) error {
		if delay <= 0 {
			return nil
		}
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}, false, s.table.Option(kind))

	_ = a.FinishWith(func(context.Context) error {
		if a.IsSuccessful() {
			s.succeeded.Add(1)
		} else {
			s.failed.Add(1)
		}
		return nil
	}, actionqueue.Lowest, actionqueue.OnWorker)
	_ = a.OnException(func(err error) {
		s.logger.Warn("action %s (%s) failed: %v", a.ID(), kind, err)
	})
	return a
}

func (s *simulation) pingFactory(context.Context) (*actionqueue.Action[int], error) {
	a := actionqueue.NewAction(0, func(context.Context) error {
		s.pings.Add(1)
		return nil
	}, false, s.table.Option(kindPing))
	return a, nil
}

func (s *simulation) submit(ctx context.Context, a *actionqueue.Action[int]) (bool, error) {
	s.submitted.Add(1)
	strategy := runner.ExponentialBackoffStrategy{
		Base:   s.scenario.RetryDelay,
		Factor: 2,
		Max:    50 * s.scenario.RetryDelay,
	}
	ok, err := s.manager.SubmitWithRetry(ctx, a, s.scenario.Retries+1, strategy)
	if err != nil {
		return false, err
	}
	if ok {
		s.admitted.Add(1)
	} else {
		s.rejected.Add(1)
	}
	return ok, nil
}

func (s *simulation) submitAndWait(ctx context.Context, a *actionqueue.Action[int]) error {
	ok, err := s.submit(ctx, a)
	if err != nil || !ok {
		return err
	}
	_, err = a.AwaitOutcome(ctx)
	return err
}

// stateLogger logs queue state transitions at debug level.
func stateLogger(logger actionqueue.Logger) queue.Hook[int] {
	return queue.HookFunc[int](func(_ context.Context, evt queue.Event[int]) error {
		if evt.Type == queue.EventStateChanged {
			logger.Debug("queue %d: %s -> %s", evt.Key, evt.From, evt.To)
		}
		return nil
	})
}
