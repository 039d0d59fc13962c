package manager

import (
	"context"
	"sync"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-actionqueue/queue"
	"github.com/goliatone/go-actionqueue/runner"
	"go.opentelemetry.io/otel/trace"
)

// Manager routes actions to per-key queues. It creates a queue when a
// Creational action arrives for an unknown key and forgets it once the queue
// signals cleanup.
type Manager[K comparable] struct {
	mu       sync.Mutex
	registry *Registry[K]
	disposed bool
	cleanups sync.WaitGroup

	pool      actionqueue.WorkerPool
	poolSize  int
	ownedPool *runner.Pool
	exclusive actionqueue.ExclusiveContext
	ownedLoop *runner.Loop

	maxParallelism int
	disposeTimeout time.Duration
	queueOpts      []queue.Option[K]

	logger       actionqueue.Logger
	recorder     queue.Recorder
	tracer       trace.Tracer
	hooks        []queue.Hook[K]
	faultHandler func(*actionqueue.Action[K], error)
}

func New[K comparable](opts ...Option[K]) *Manager[K] {
	m := &Manager[K]{
		registry:       NewRegistry[K](),
		disposeTimeout: queue.DefaultDisposeTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	m.logger = actionqueue.NormalizeLogger(m.logger)
	if m.pool == nil {
		m.ownedPool = runner.NewPool(m.poolSize, runner.WithPoolLogger(m.logger))
		m.pool = m.ownedPool
	}
	if m.exclusive == nil {
		m.ownedLoop = runner.NewLoop(runner.WithLoopLogger(m.logger))
		m.exclusive = m.ownedLoop
	}
	return m
}

// Submit routes a to its queue. Unqueued actions go straight to the worker pool.
// A rejection, including an unknown key with a non-Creational action, is
// reported as false with a nil error. A disposed manager returns ErrDisposed.
func (m *Manager[K]) Submit(a *actionqueue.Action[K]) (bool, error) {
	if a == nil {
		return false, actionqueue.NewError(actionqueue.ErrNilAction, "cannot submit a nil action", nil, nil)
	}

	for retried := false; ; retried = true {
		m.mu.Lock()
		if m.disposed {
			m.mu.Unlock()
			return false, actionqueue.NewError(actionqueue.ErrDisposed, "queue manager disposed", nil, map[string]any{
				"action_id": a.ID(),
			})
		}
		if a.Flags().Has(actionqueue.Unqueued) {
			m.mu.Unlock()
			return m.runUnqueued(a)
		}
		q, created, err := m.lookupOrCreate(a)
		m.mu.Unlock()
		if err != nil {
			return false, err
		}
		if q == nil {
			m.logger.Debug("action %s dropped: no queue for key %v", a.ID(), a.Key())
			return false, nil
		}

		admitted, err := q.Enqueue(a)
		if err != nil && actionqueue.IsDisposed(err) && !m.isDisposed() {
			// disposed outside the manager or cleaned up between lookup and enqueue
			m.forget(q)
			if retried || !a.Flags().Has(actionqueue.Creational) {
				return false, nil
			}
			continue
		}
		if created && !admitted {
			m.forget(q)
		}
		return admitted, err
	}
}

// lookupOrCreate returns the queue for a's key, creating it for a Creational
// action that has not started. It returns a nil queue when a cannot reach one.
// Callers hold m.mu.
func (m *Manager[K]) lookupOrCreate(a *actionqueue.Action[K]) (*queue.Queue[K], bool, error) {
	if q, found := m.registry.Get(a.Key()); found {
		return q, false, nil
	}
	if !a.Flags().Has(actionqueue.Creational) {
		return nil, false, nil
	}
	if a.Started() {
		return nil, false, actionqueue.NewError(actionqueue.ErrAlreadyStarted, "cannot create a queue for an action that already started", nil, map[string]any{
			"action_id": a.ID(),
		})
	}
	q := m.newQueue(a.Key())
	if err := m.registry.Add(q); err != nil {
		return nil, false, err
	}
	m.logger.Debug("queue created for key %v", a.Key())
	return q, true, nil
}

// forget unregisters q and disposes it. Queues already removed by their
// cleanup signal are left to that path.
func (m *Manager[K]) forget(q *queue.Queue[K]) {
	m.mu.Lock()
	removed := m.registry.Remove(q.Key(), q)
	m.mu.Unlock()
	if !removed {
		return
	}
	m.logger.Debug("queue for key %v released", q.Key())
	q.Dispose()
}

// SubmitWithRetry resubmits a rejected action with the backoff of strategy,
// up to attempts tries. Errors other than a rejection end the retries.
func (m *Manager[K]) SubmitWithRetry(ctx context.Context, a *actionqueue.Action[K], attempts int, strategy runner.RetryStrategy) (bool, error) {
	if attempts < 1 {
		attempts = 1
	}
	h := runner.NewHandler(
		runner.WithMaxRetries(attempts-1),
		runner.WithRetryStrategy(runner.RetryIf(strategy, actionqueue.IsRejected)),
		runner.WithLogger(actionqueue.NopLogger{}),
	)

	admitted := false
	err := h.Run(ctx, func(context.Context) error {
		ok, err := m.Submit(a)
		if err != nil {
			return err
		}
		if !ok {
			m.logger.Debug("action %s rejected, retrying", a.ID())
			return actionqueue.ErrRejected
		}
		admitted = true
		return nil
	})
	if admitted {
		return true, nil
	}
	if err == nil || actionqueue.IsRejected(err) {
		return false, nil
	}
	return false, err
}

// Lookup returns the live queue for key.
func (m *Manager[K]) Lookup(key K) (*queue.Queue[K], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Get(key)
}

// Len returns the number of live queues.
func (m *Manager[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Len()
}

// Stats returns a snapshot of every live queue.
func (m *Manager[K]) Stats() []queue.Snapshot[K] {
	m.mu.Lock()
	queues := m.registry.Queues()
	m.mu.Unlock()

	out := make([]queue.Snapshot[K], 0, len(queues))
	for _, q := range queues {
		out = append(out, q.Snapshot())
	}
	return out
}

// Dispose stops accepting submissions and disposes every live queue.
// Owned runners are stopped once the queues are gone. Dispose is idempotent.
func (m *Manager[K]) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	registry := m.registry
	m.registry = NewRegistry[K]()
	released := registry.Len()
	m.mu.Unlock()

	registry.Dispose()
	m.cleanups.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), m.disposeTimeout)
	defer cancel()
	if m.ownedPool != nil {
		if err := m.ownedPool.Close(ctx); err != nil {
			m.logger.Warn("worker pool did not drain: %v", err)
		}
	}
	if m.ownedLoop != nil {
		if err := m.ownedLoop.Stop(ctx); err != nil {
			m.logger.Warn("exclusive loop did not stop: %v", err)
		}
	}
	m.logger.Info("queue manager disposed, %d queue(s) released", released)
}

func (m *Manager[K]) isDisposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}

func (m *Manager[K]) newQueue(key K) *queue.Queue[K] {
	opts := []queue.Option[K]{
		queue.WithPool[K](m.pool),
		queue.WithExclusiveContext[K](m.exclusive),
		queue.WithLogger[K](m.logger),
		queue.WithDisposeTimeout[K](m.disposeTimeout),
		queue.WithCleanup(m.onCleanup),
	}
	if m.maxParallelism > 0 {
		opts = append(opts, queue.WithMaxParallelism[K](m.maxParallelism))
	}
	if m.recorder != nil {
		opts = append(opts, queue.WithRecorder[K](m.recorder))
	}
	if m.tracer != nil {
		opts = append(opts, queue.WithTracer[K](m.tracer))
	}
	if len(m.hooks) > 0 {
		opts = append(opts, queue.WithHooks(m.hooks...))
	}
	if m.faultHandler != nil {
		opts = append(opts, queue.WithFaultHandler(m.faultHandler))
	}
	opts = append(opts, m.queueOpts...)
	return queue.New(key, opts...)
}

// onCleanup forgets q synchronously and disposes it in the background, since
// it runs from a finisher of the queue being removed.
func (m *Manager[K]) onCleanup(q *queue.Queue[K]) {
	m.mu.Lock()
	removed := m.registry.Remove(q.Key(), q)
	if removed {
		m.cleanups.Add(1)
	}
	m.mu.Unlock()

	if !removed {
		return
	}
	m.logger.Debug("queue for key %v removed", q.Key())
	go func() {
		defer m.cleanups.Done()
		q.Dispose()
	}()
}

func (m *Manager[K]) runUnqueued(a *actionqueue.Action[K]) (bool, error) {
	err := m.pool.Go(context.Background(), func(ctx context.Context) {
		if err := a.Execute(ctx, m.exclusive); err != nil {
			if m.faultHandler != nil {
				m.faultHandler(a, err)
				return
			}
			m.logger.Error("unqueued action %s unhandled fault: %v", a.ID(), err)
		}
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
