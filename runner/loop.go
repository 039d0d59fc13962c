package runner

import (
	"context"
	"sync"
	"sync/atomic"

	actionqueue "github.com/goliatone/go-actionqueue"
)

type loopTask struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// Loop is an exclusive execution context: every callback runs on one goroutine,
// one at a time. Invoke from the loop goroutine itself runs inline.
type Loop struct {
	logger actionqueue.Logger
	buffer int

	tasks chan loopTask
	quit  chan struct{}
	done  chan struct{}
	gid   atomic.Uint64

	stopOnce sync.Once
}

// NewLoop starts the loop goroutine.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.logger = actionqueue.NormalizeLogger(l.logger)
	l.tasks = make(chan loopTask, l.buffer)

	started := make(chan struct{})
	go l.run(started)
	<-started
	return l
}

// Invoke runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Invoke(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return actionqueue.NewError(actionqueue.ErrNilCallback, "loop callback cannot be nil", nil, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if l.OnLoop() {
		return l.exec(ctx, fn)
	}

	task := loopTask{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case <-l.quit:
		return l.disposedError()
	default:
	}

	select {
	case l.tasks <- task:
	case <-l.quit:
		return l.disposedError()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-task.result:
		return err
	case <-l.done:
		// the loop may have exited with the task still buffered
		select {
		case err := <-task.result:
			return err
		default:
			return l.disposedError()
		}
	}
}

// OnLoop reports whether the caller runs on the loop goroutine.
func (l *Loop) OnLoop() bool {
	return l.gid.Load() == actionqueue.GetGoroutineID()
}

// Stop stops accepting callbacks and waits for the loop to exit.
// Callbacks already handed to the loop run before it exits.
func (l *Loop) Stop(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.quit)
	})
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) run(started chan<- struct{}) {
	l.gid.Store(actionqueue.GetGoroutineID())
	close(started)
	defer close(l.done)

	for {
		select {
		case task := <-l.tasks:
			task.result <- l.exec(task.ctx, task.fn)
		case <-l.quit:
			l.drain()
			return
		}
	}
}

func (l *Loop) drain() {
	for {
		select {
		case task := <-l.tasks:
			task.result <- l.exec(task.ctx, task.fn)
		default:
			return
		}
	}
}

func (l *Loop) exec(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = actionqueue.RecoverFault("exclusive_loop", r, nil)
			l.logger.Error("exclusive loop recovered from panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (l *Loop) disposedError() error {
	return actionqueue.NewError(actionqueue.ErrDisposed, "exclusive loop stopped", nil, nil)
}
