package actionqueue

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Step is a unit of work attached to an action. A returned error or a panic is a fault.
type Step func(ctx context.Context) error

// Predicate decides whether the step chain of an action runs.
type Predicate func(ctx context.Context) (bool, error)

// Outcome is the tri-state result of an action.
type Outcome int32

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

type actionSettings struct {
	id        string
	kind      string
	flags     Flags
	timeout   time.Duration
	deadline  time.Time
	condition func() bool
}

// ActionOption configures an action at construction.
type ActionOption func(*actionSettings)

func WithID(id string) ActionOption {
	return func(s *actionSettings) {
		if id != "" {
			s.id = id
		}
	}
}

func WithKind(kind string) ActionOption {
	return func(s *actionSettings) {
		s.kind = normalizeKind(kind)
	}
}

func WithFlags(flags Flags) ActionOption {
	return func(s *actionSettings) {
		s.flags = flags
	}
}

// WithSuccessCondition adds a predicate evaluated when the outcome is computed.
func WithSuccessCondition(cond func() bool) ActionOption {
	return func(s *actionSettings) {
		s.condition = cond
	}
}

// WithTimeout bounds the guard and the step chain. Finishers are not bounded.
func WithTimeout(t time.Duration) ActionOption {
	return func(s *actionSettings) {
		s.timeout = t
	}
}

func WithDeadline(d time.Time) ActionOption {
	return func(s *actionSettings) {
		s.deadline = d
	}
}

type callback struct {
	stage    string
	step     Step
	affinity Affinity
}

type finisher struct {
	callback
	priority Priority
}

// Action is a unit of work routed by key.
type Action[K comparable] struct {
	key      K
	settings actionSettings

	mu            sync.Mutex
	started       bool
	guard         Predicate
	guardAffinity Affinity
	steps         []callback
	finishers     []finisher
	onException   func(error)
	abortReason   error

	crashed atomic.Bool
	skipped atomic.Bool
	outcome atomic.Int32

	done     chan struct{}
	doneOnce sync.Once
}

// NewAction builds an action whose body runs on the exclusive context when
// startsOnExclusive is set, and on the executing goroutine otherwise.
func NewAction[K comparable](key K, body Step, startsOnExclusive bool, opts ...ActionOption) *Action[K] {
	a := &Action[K]{
		key:  key,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&a.settings)
		}
	}
	if a.settings.id == "" {
		a.settings.id = uuid.NewString()
	}
	if body != nil {
		a.steps = append(a.steps, callback{stage: "body", step: body, affinity: affinityOf(startsOnExclusive)})
	}
	return a
}

func (a *Action[K]) Key() K       { return a.key }
func (a *Action[K]) ID() string   { return a.settings.id }
func (a *Action[K]) Kind() string { return a.settings.kind }
func (a *Action[K]) Flags() Flags { return a.settings.flags }

// Started reports whether Execute or Abort has been called.
func (a *Action[K]) Started() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// Guard sets the admission predicate of the step chain. It can be set once.
func (a *Action[K]) Guard(pred Predicate, affinity Affinity) error {
	if pred == nil {
		return a.configError(ErrNilCallback, "guard predicate cannot be nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return a.configError(ErrAlreadyStarted, "cannot set guard after execution started")
	}
	if a.guard != nil {
		return a.configError(ErrAlreadySet, "guard can only be set once")
	}
	a.guard = pred
	a.guardAffinity = affinity
	return nil
}

// ContinueWith appends a step to the chain.
func (a *Action[K]) ContinueWith(step Step, affinity Affinity) error {
	if step == nil {
		return a.configError(ErrNilCallback, "continuation step cannot be nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return a.configError(ErrAlreadyStarted, "cannot append steps after execution started")
	}
	a.steps = append(a.steps, callback{stage: "step", step: step, affinity: affinity})
	return nil
}

// FinishWith adds a finisher. Finishers run after the chain, whatever its result,
// by descending priority and in insertion order within a priority.
func (a *Action[K]) FinishWith(step Step, priority Priority, affinity Affinity) error {
	if step == nil {
		return a.configError(ErrNilCallback, "finisher cannot be nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return a.configError(ErrAlreadyStarted, "cannot add finishers after execution started")
	}
	a.finishers = append(a.finishers, finisher{
		callback: callback{stage: "finisher", step: step, affinity: affinity},
		priority: priority,
	})
	return nil
}

// OnException sets the fault handler. It can be set once.
func (a *Action[K]) OnException(handler func(error)) error {
	if handler == nil {
		return a.configError(ErrNilCallback, "exception handler cannot be nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return a.configError(ErrAlreadyStarted, "cannot set exception handler after execution started")
	}
	if a.onException != nil {
		return a.configError(ErrAlreadySet, "exception handler can only be set once")
	}
	a.onException = handler
	return nil
}

// IsSuccessful reports the live success state: no fault, guard not rejected,
// and the success condition (if any) holds.
func (a *Action[K]) IsSuccessful() bool {
	if a.crashed.Load() || a.skipped.Load() {
		return false
	}
	if cond := a.settings.condition; cond != nil {
		return cond()
	}
	return true
}

// Crashed reports whether a fault was raised during execution.
func (a *Action[K]) Crashed() bool {
	return a.crashed.Load()
}

func (a *Action[K]) Outcome() Outcome {
	return Outcome(a.outcome.Load())
}

// Done is closed once the outcome is delivered.
func (a *Action[K]) Done() <-chan struct{} {
	return a.done
}

// AwaitOutcome blocks until the outcome is delivered or ctx is done.
func (a *Action[K]) AwaitOutcome(ctx context.Context) (bool, error) {
	select {
	case <-a.done:
		return a.Outcome() == OutcomeSucceeded, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Abort fails an action that never started. No callbacks run.
// It returns false when execution already began.
func (a *Action[K]) Abort(reason error) bool {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return false
	}
	a.started = true
	a.abortReason = NewError(ErrAborted, "action aborted before execution", reason, a.fields("abort"))
	a.mu.Unlock()

	a.crashed.Store(true)
	a.deliver(false)
	return true
}

// AbortReason returns the error recorded by Abort, nil otherwise.
func (a *Action[K]) AbortReason() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.abortReason
}

// Execute runs the action once: guard, step chain, finishers, then outcome.
// Faults are passed to the exception handler when one is set. Without a handler
// they are returned, after the finishers ran and the outcome was delivered.
func (a *Action[K]) Execute(ctx context.Context, ex ExclusiveContext) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if ex == nil {
		ex = InlineContext{}
	}

	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return a.configError(ErrAlreadyStarted, "action already executed")
	}
	a.started = true
	guard, guardAffinity := a.guard, a.guardAffinity
	steps := append([]callback(nil), a.steps...)
	finishers := sortFinishers(a.finishers)
	handler := a.onException
	a.mu.Unlock()

	var unhandled []error
	fault := func(err error) {
		a.crashed.Store(true)
		if handler == nil {
			unhandled = append(unhandled, err)
			return
		}
		if herr := a.callHandler(handler, err); herr != nil {
			unhandled = append(unhandled, herr)
		}
	}

	runCtx, cancel := a.contextWithSettings(ctx)
	passed := true
	if guard != nil {
		g := callback{stage: "guard", affinity: guardAffinity, step: func(ctx context.Context) error {
			ok, err := guard(ctx)
			passed = ok
			return err
		}}
		if errs := a.runBatch(ctx, runCtx, ex, []callback{g}, true); len(errs) > 0 {
			passed = false
			for _, err := range errs {
				fault(err)
			}
		}
	}

	if passed {
		for _, batch := range batchByAffinity(steps) {
			if errs := a.runBatch(ctx, runCtx, ex, batch, true); len(errs) > 0 {
				for _, err := range errs {
					fault(err)
				}
				break
			}
		}
	} else {
		a.skipped.Store(true)
	}
	cancel()

	finCtx := context.WithoutCancel(ctx)
	callbacks := make([]callback, len(finishers))
	for i, f := range finishers {
		callbacks[i] = f.callback
	}
	for _, batch := range batchByAffinity(callbacks) {
		for _, err := range a.runBatch(finCtx, finCtx, ex, batch, false) {
			fault(err)
		}
	}

	a.deliver(a.IsSuccessful())

	switch len(unhandled) {
	case 0:
		return nil
	case 1:
		return unhandled[0]
	default:
		return stderrors.Join(unhandled...)
	}
}

// runBatch runs adjacent callbacks sharing an affinity in one hop.
// With stopOnFault the batch ends at the first fault or when parent is canceled.
func (a *Action[K]) runBatch(parent, ctx context.Context, ex ExclusiveContext, batch []callback, stopOnFault bool) []error {
	if len(batch) == 0 {
		return nil
	}
	var errs []error
	run := func(ctx context.Context) error {
		for i, cb := range batch {
			if stopOnFault && parent.Err() != nil {
				errs = append(errs, a.abortError(cb.stage, parent.Err()))
				return nil
			}
			if err := a.invoke(parent, ctx, cb, i); err != nil {
				errs = append(errs, err)
				if stopOnFault {
					return nil
				}
			}
		}
		return nil
	}

	if batch[0].affinity != OnExclusive {
		_ = run(ctx)
		return errs
	}
	if err := ex.Invoke(ctx, run); err != nil {
		errs = append(errs, NewError(ErrExecutionFault, "exclusive context rejected callback", err, a.fields(batch[0].stage)))
	}
	return errs
}

func (a *Action[K]) invoke(parent, ctx context.Context, cb callback, index int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fields := a.fields(cb.stage)
			fields["index"] = index
			err = RecoverFault(cb.stage, r, fields)
		}
	}()

	if err = cb.step(ctx); err == nil {
		return nil
	}
	if parent.Err() != nil && isContextError(err) {
		return a.abortError(cb.stage, err)
	}
	if ErrorCode(err) != "" {
		return err
	}
	fields := a.fields(cb.stage)
	fields["index"] = index
	return NewError(ErrExecutionFault, fmt.Sprintf("%s failed: %v", cb.stage, err), err, fields)
}

func (a *Action[K]) callHandler(handler func(error), err error) (herr error) {
	defer func() {
		if r := recover(); r != nil {
			herr = RecoverFault("exception_handler", r, a.fields("exception_handler"))
		}
	}()
	handler(err)
	return nil
}

func (a *Action[K]) deliver(success bool) {
	a.doneOnce.Do(func() {
		if success {
			a.outcome.Store(int32(OutcomeSucceeded))
		} else {
			a.outcome.Store(int32(OutcomeFailed))
		}
		close(a.done)
	})
}

func (a *Action[K]) abortError(stage string, cause error) error {
	return NewError(ErrAborted, fmt.Sprintf("%s aborted", stage), cause, a.fields(stage))
}

func (a *Action[K]) configError(base *apperrors.Error, message string) error {
	return NewError(base, message, nil, map[string]any{
		"action_id": a.settings.id,
	})
}

func (a *Action[K]) fields(stage string) map[string]any {
	return map[string]any{
		"action_id": a.settings.id,
		"kind":      a.settings.kind,
		"stage":     stage,
	}
}

func (a *Action[K]) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	timeout, deadline := a.settings.timeout, a.settings.deadline
	switch {
	case timeout != 0 && !deadline.IsZero():
		ctx, cancelTimeout := context.WithTimeout(parent, timeout)
		ctxDeadline, cancelDeadline := context.WithDeadline(ctx, deadline)
		return ctxDeadline, func() {
			cancelDeadline()
			cancelTimeout()
		}
	case timeout != 0:
		return context.WithTimeout(parent, timeout)
	case !deadline.IsZero():
		return context.WithDeadline(parent, deadline)
	default:
		return context.WithCancel(parent)
	}
}

func sortFinishers(in []finisher) []finisher {
	out := append([]finisher(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].priority > out[j].priority
	})
	return out
}

func batchByAffinity(callbacks []callback) [][]callback {
	var batches [][]callback
	for i, cb := range callbacks {
		if i == 0 || cb.affinity != callbacks[i-1].affinity {
			batches = append(batches, []callback{cb})
			continue
		}
		last := len(batches) - 1
		batches[last] = append(batches[last], cb)
	}
	return batches
}

func isContextError(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
