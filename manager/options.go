package manager

import (
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-actionqueue/queue"
	"go.opentelemetry.io/otel/trace"
)

type Option[K comparable] func(*Manager[K])

// WithPool sets the worker pool used by queues and unqueued actions.
// A caller supplied pool is not closed by Dispose.
func WithPool[K comparable](pool actionqueue.WorkerPool) Option[K] {
	return func(m *Manager[K]) {
		m.pool = pool
	}
}

// WithPoolSize bounds the pool the manager creates when none is supplied.
func WithPoolSize[K comparable](size int) Option[K] {
	return func(m *Manager[K]) {
		m.poolSize = size
	}
}

// WithExclusiveContext sets the exclusive context. Without one the manager
// starts its own runner.Loop and stops it on Dispose.
func WithExclusiveContext[K comparable](ex actionqueue.ExclusiveContext) Option[K] {
	return func(m *Manager[K]) {
		m.exclusive = ex
	}
}

func WithLogger[K comparable](logger actionqueue.Logger) Option[K] {
	return func(m *Manager[K]) {
		m.logger = logger
	}
}

func WithRecorder[K comparable](r queue.Recorder) Option[K] {
	return func(m *Manager[K]) {
		m.recorder = r
	}
}

func WithTracer[K comparable](t trace.Tracer) Option[K] {
	return func(m *Manager[K]) {
		m.tracer = t
	}
}

func WithHooks[K comparable](hooks ...queue.Hook[K]) Option[K] {
	return func(m *Manager[K]) {
		m.hooks = append(m.hooks, hooks...)
	}
}

func WithMaxParallelism[K comparable](n int) Option[K] {
	return func(m *Manager[K]) {
		m.maxParallelism = n
	}
}

func WithDisposeTimeout[K comparable](d time.Duration) Option[K] {
	return func(m *Manager[K]) {
		m.disposeTimeout = d
	}
}

func WithFaultHandler[K comparable](h func(*actionqueue.Action[K], error)) Option[K] {
	return func(m *Manager[K]) {
		m.faultHandler = h
	}
}

// WithRegistry replaces the registry. The manager takes ownership of it.
func WithRegistry[K comparable](r *Registry[K]) Option[K] {
	return func(m *Manager[K]) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithQueueOptions appends options applied to every queue the manager creates.
func WithQueueOptions[K comparable](opts ...queue.Option[K]) Option[K] {
	return func(m *Manager[K]) {
		m.queueOpts = append(m.queueOpts, opts...)
	}
}
