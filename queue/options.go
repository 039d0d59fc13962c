package queue

import (
	"context"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
	"go.opentelemetry.io/otel/trace"
)

// DefaultDisposeTimeout is the grace period granted to in-flight work on Dispose.
const DefaultDisposeTimeout = 250 * time.Millisecond

type Option[K comparable] func(*Queue[K])

// WithMaxParallelism sets how many ordinary actions may run at once.
// Lifecycle actions always run alone.
func WithMaxParallelism[K comparable](n int) Option[K] {
	return func(q *Queue[K]) {
		if n > 0 {
			q.maxParallelism = n
		}
	}
}

func WithDisposeTimeout[K comparable](d time.Duration) Option[K] {
	return func(q *Queue[K]) {
		if d >= 0 {
			q.disposeTimeout = d
		}
	}
}

func WithPool[K comparable](pool actionqueue.WorkerPool) Option[K] {
	return func(q *Queue[K]) {
		q.pool = pool
	}
}

func WithExclusiveContext[K comparable](ex actionqueue.ExclusiveContext) Option[K] {
	return func(q *Queue[K]) {
		q.exclusive = ex
	}
}

// WithCleanup registers the callback fired once when the queue must be removed.
func WithCleanup[K comparable](fn func(*Queue[K])) Option[K] {
	return func(q *Queue[K]) {
		q.cleanup = fn
	}
}

func WithLogger[K comparable](logger actionqueue.Logger) Option[K] {
	return func(q *Queue[K]) {
		q.logger = logger
	}
}

func WithRecorder[K comparable](r Recorder) Option[K] {
	return func(q *Queue[K]) {
		if r != nil {
			q.recorder = r
		}
	}
}

func WithTracer[K comparable](t trace.Tracer) Option[K] {
	return func(q *Queue[K]) {
		if t != nil {
			q.tracer = t
		}
	}
}

func WithHooks[K comparable](hooks ...Hook[K]) Option[K] {
	return func(q *Queue[K]) {
		q.hooks = append(q.hooks, hooks...)
	}
}

// WithFaultHandler receives errors returned by Execute for actions without an
// exception handler.
func WithFaultHandler[K comparable](h func(*actionqueue.Action[K], error)) Option[K] {
	return func(q *Queue[K]) {
		q.faultHandler = h
	}
}

// WithBaseContext sets the parent of the context handed to actions.
func WithBaseContext[K comparable](ctx context.Context) Option[K] {
	return func(q *Queue[K]) {
		if ctx != nil {
			q.baseCtx = ctx
		}
	}
}
