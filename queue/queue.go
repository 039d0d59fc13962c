package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-actionqueue/runner"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/goliatone/go-actionqueue/queue"

type record[K comparable] struct {
	action     *actionqueue.Action[K]
	effect     effect
	admittedAt time.Time
}

func (r *record[K]) lifecycle() bool {
	return r.effect != effectNone
}

// Queue serializes the actions of a single key. Admission is decided by the
// queue state machine; admitted actions run in admission order on the worker pool.
type Queue[K comparable] struct {
	key K

	mu               sync.Mutex
	state            state
	pending          []*record[K]
	running          int
	lifecycleRunning bool
	drained          chan struct{}
	drainedClosed    bool

	maxParallelism int
	disposeTimeout time.Duration
	pool           actionqueue.WorkerPool
	ownedPool      *runner.Pool
	exclusive      actionqueue.ExclusiveContext
	cleanup        func(*Queue[K])
	cleanupOnce    sync.Once
	disposeOnce    sync.Once

	logger       actionqueue.Logger
	recorder     Recorder
	tracer       trace.Tracer
	hooks        Hooks[K]
	faultHandler func(*actionqueue.Action[K], error)

	baseCtx context.Context
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a queue for key in the Initial state.
func New[K comparable](key K, opts ...Option[K]) *Queue[K] {
	q := &Queue[K]{
		key:            key,
		state:          state{kind: Initial},
		drained:        make(chan struct{}),
		maxParallelism: 1,
		disposeTimeout: DefaultDisposeTimeout,
		recorder:       nopRecorder{},
		baseCtx:        context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}

	if q.pool == nil {
		q.ownedPool = runner.NewPool(0)
		q.pool = q.ownedPool
	}
	if q.exclusive == nil {
		q.exclusive = actionqueue.InlineContext{}
	}
	if q.tracer == nil {
		q.tracer = otel.Tracer(tracerName)
	}
	q.logger = actionqueue.WithLoggerFields(q.logger, map[string]any{
		"queue_key": fmt.Sprint(key),
	})
	q.ctx, q.cancel = context.WithCancel(q.baseCtx)

	q.recorder.QueueOpened()
	return q
}

func (q *Queue[K]) Key() K {
	return q.key
}

func (q *Queue[K]) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.kind
}

// Pending returns the number of admitted actions waiting to start.
func (q *Queue[K]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Running returns the number of actions currently executing.
func (q *Queue[K]) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Snapshot is a point-in-time view of a queue.
type Snapshot[K comparable] struct {
	Key     K
	State   State
	Pending int
	Running int
}

func (q *Queue[K]) Snapshot() Snapshot[K] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Snapshot[K]{
		Key:     q.key,
		State:   q.state.kind,
		Pending: len(q.pending),
		Running: q.running,
	}
}

// Enqueue runs the admission decision for a and, when admitted, schedules it.
// Rejection is reported as false with a nil error. A disposed queue returns ErrDisposed.
func (q *Queue[K]) Enqueue(a *actionqueue.Action[K]) (bool, error) {
	if a == nil {
		return false, actionqueue.NewError(actionqueue.ErrNilAction, "cannot enqueue a nil action", nil, nil)
	}
	if a.Key() != q.key {
		return false, actionqueue.NewError(actionqueue.ErrConfigInvalid, "action key does not match queue key", nil, map[string]any{
			"queue_key":  fmt.Sprint(q.key),
			"action_key": fmt.Sprint(a.Key()),
		})
	}

	if a.Started() {
		return false, actionqueue.NewError(actionqueue.ErrAlreadyStarted, "cannot enqueue an action that already started", nil, map[string]any{
			"action_id": a.ID(),
		})
	}

	q.mu.Lock()
	prev := q.state
	if prev.kind == Disposed {
		q.mu.Unlock()
		return false, actionqueue.NewError(actionqueue.ErrDisposed, "queue disposed", nil, map[string]any{
			"queue_key": fmt.Sprint(q.key),
			"action_id": a.ID(),
		})
	}

	next, admitted, eff := transition(prev, a.Flags())
	if admitted && eff != effectNone {
		if err := a.FinishWith(q.lifecycleFinisher(a, eff), actionqueue.Highest, actionqueue.OnWorker); err != nil {
			q.mu.Unlock()
			return false, err
		}
	}
	q.state = next
	if admitted {
		q.pending = append(q.pending, &record[K]{action: a, effect: eff, admittedAt: time.Now()})
	}
	pending := len(q.pending)
	q.mu.Unlock()

	q.stateChanged(prev.kind, next.kind)
	if !admitted {
		q.logger.Debug("action %s rejected in state %s", a.ID(), prev.kind)
		q.recorder.ActionRejected(a.Kind(), prev.kind)
		q.emit(Event[K]{Type: EventRejected, ActionID: a.ID(), Kind: a.Kind(), From: prev.kind, To: next.kind})
		return false, nil
	}

	q.logger.Debug("action %s admitted effect=%s pending=%d", a.ID(), eff, pending)
	q.recorder.ActionAdmitted(a.Kind())
	q.recorder.PendingChanged(1)
	q.emit(Event[K]{Type: EventAdmitted, ActionID: a.ID(), Kind: a.Kind(), From: prev.kind, To: next.kind})
	q.pump()
	return true, nil
}

// Dispose moves the queue to Disposed, releases the cleanup callback and waits
// up to the dispose timeout for admitted work. Work still outstanding after the
// timeout is canceled, and actions that never started are aborted.
// Dispose is idempotent.
func (q *Queue[K]) Dispose() {
	q.disposeOnce.Do(q.dispose)
}

func (q *Queue[K]) dispose() {
	q.mu.Lock()
	prev := q.state.kind
	q.state = state{kind: Disposed}
	q.cleanup = nil
	q.closeDrainedLocked()
	drained := q.drained
	q.mu.Unlock()

	q.stateChanged(prev, Disposed)

	timer := time.NewTimer(q.disposeTimeout)
	defer timer.Stop()

	select {
	case <-drained:
	case <-timer.C:
		q.forceCancel()
	}
	q.cancel()

	if q.ownedPool != nil {
		// work still running after a forced cancel is left to finish on its own
		go func() {
			_ = q.ownedPool.Close(context.Background())
		}()
	}

	q.recorder.QueueDisposed()
	q.logger.Info("queue disposed")
	q.emit(Event[K]{Type: EventDisposed, From: prev, To: Disposed})
}

func (q *Queue[K]) forceCancel() {
	q.cancel()

	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	running := q.running
	q.mu.Unlock()

	aborted := 0
	for _, rec := range dropped {
		if rec.action.Abort(actionqueue.ErrAborted) {
			aborted++
		}
	}
	if len(dropped) > 0 {
		q.recorder.PendingChanged(-len(dropped))
	}
	q.recorder.ActionsAborted(aborted)
	q.logger.Warn("dispose timeout after %s: canceled %d running action(s), aborted %d pending", q.disposeTimeout, running, aborted)
}

// pump starts pending actions while capacity allows. Lifecycle actions wait
// for the queue to be idle and hold it until they complete.
func (q *Queue[K]) pump() {
	q.mu.Lock()
	var start []*record[K]
	for len(q.pending) > 0 && !q.lifecycleRunning {
		head := q.pending[0]
		if head.lifecycle() && q.running > 0 {
			break
		}
		if !head.lifecycle() && q.running >= q.maxParallelism {
			break
		}
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.running++
		if head.lifecycle() {
			q.lifecycleRunning = true
		}
		start = append(start, head)
	}
	q.mu.Unlock()

	for _, rec := range start {
		q.recorder.PendingChanged(-1)
		if err := q.pool.Go(q.ctx, func(ctx context.Context) {
			q.execute(ctx, rec)
		}); err != nil {
			q.logger.Error("worker pool rejected action %s: %v", rec.action.ID(), err)
			rec.action.Abort(err)
			if rec.lifecycle() {
				q.settle(rec, false)
			}
			q.complete(rec)
		}
	}
}

func (q *Queue[K]) execute(ctx context.Context, rec *record[K]) {
	a := rec.action
	ctx, span := q.tracer.Start(ctx, "actionqueue.execute", trace.WithAttributes(
		attribute.String("action.id", a.ID()),
		attribute.String("action.kind", a.Kind()),
		attribute.String("action.flags", a.Flags().String()),
	))
	defer span.End()

	q.logger.Trace("action %s started after %s", a.ID(), time.Since(rec.admittedAt))
	q.emit(Event[K]{Type: EventStarted, ActionID: a.ID(), Kind: a.Kind()})

	start := time.Now()
	err := a.Execute(ctx, q.exclusive)
	duration := time.Since(start)
	success := a.Outcome() == actionqueue.OutcomeSucceeded

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		q.fault(a, err)
	}
	span.SetAttributes(attribute.Bool("action.success", success))

	q.recorder.ActionExecuted(a.Kind(), duration, success)
	q.logger.Debug("action %s completed success=%t duration=%s", a.ID(), success, duration)
	q.emit(Event[K]{Type: EventCompleted, ActionID: a.ID(), Kind: a.Kind(), Success: success, Duration: duration, Err: err})

	q.complete(rec)
}

func (q *Queue[K]) complete(rec *record[K]) {
	q.mu.Lock()
	q.running--
	if rec.lifecycle() {
		q.lifecycleRunning = false
	}
	if q.state.kind == Disposed {
		q.closeDrainedLocked()
	}
	q.mu.Unlock()

	q.pump()
}

func (q *Queue[K]) closeDrainedLocked() {
	if q.drainedClosed || q.running > 0 || len(q.pending) > 0 {
		return
	}
	q.drainedClosed = true
	close(q.drained)
}

func (q *Queue[K]) fault(a *actionqueue.Action[K], err error) {
	if q.faultHandler != nil {
		q.faultHandler(a, err)
	} else if actionqueue.IsAborted(err) {
		q.logger.Warn("action %s aborted: %v", a.ID(), err)
	} else {
		q.logger.Error("action %s unhandled fault: %v", a.ID(), err)
	}
	q.recorder.ActionFaulted(a.Kind())
	q.emit(Event[K]{Type: EventFault, ActionID: a.ID(), Kind: a.Kind(), Err: err})
}

func (q *Queue[K]) lifecycleFinisher(a *actionqueue.Action[K], eff effect) actionqueue.Step {
	return func(context.Context) error {
		q.settle(&record[K]{action: a, effect: eff}, a.IsSuccessful())
		return nil
	}
}

func (q *Queue[K]) settle(rec *record[K], success bool) {
	q.mu.Lock()
	prev := q.state
	next, cleanup := settle(prev, rec.effect, success, rec.action.Flags().Has(actionqueue.Terminating))
	q.state = next
	fn := q.cleanup
	q.mu.Unlock()

	q.stateChanged(prev.kind, next.kind)
	if cleanup {
		q.fireCleanup(fn)
	}
}

func (q *Queue[K]) fireCleanup(fn func(*Queue[K])) {
	q.cleanupOnce.Do(func() {
		q.logger.Info("queue cleanup signaled")
		q.emit(Event[K]{Type: EventCleanup})
		if fn == nil {
			return
		}
		if err := actionqueue.SafeCall("queue_cleanup", func() error {
			fn(q)
			return nil
		}); err != nil {
			q.logger.Error("queue cleanup callback failed: %v", err)
		}
	})
}

func (q *Queue[K]) stateChanged(from, to State) {
	if from == to {
		return
	}
	q.logger.Debug("queue state %s -> %s", from, to)
	q.emit(Event[K]{Type: EventStateChanged, From: from, To: to})
}

func (q *Queue[K]) emit(evt Event[K]) {
	if len(q.hooks) == 0 {
		return
	}
	evt.Key = q.key
	evt.OccurredAt = time.Now()
	q.hooks.notify(q.baseCtx, evt, q.logger)
}
