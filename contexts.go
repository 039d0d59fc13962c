package actionqueue

import "context"

// ExclusiveContext runs callbacks on a single logical execution context.
// Invoke blocks until fn returns. Calls made from within the context run inline.
type ExclusiveContext interface {
	Invoke(ctx context.Context, fn func(context.Context) error) error
}

// WorkerPool schedules work without ordering guarantees.
// Go must not block waiting for fn to finish.
type WorkerPool interface {
	Go(ctx context.Context, fn func(context.Context)) error
}

// InlineContext runs callbacks on the calling goroutine.
type InlineContext struct{}

func (InlineContext) Invoke(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// ExclusiveFunc adapts a function to ExclusiveContext.
type ExclusiveFunc func(ctx context.Context, fn func(context.Context) error) error

func (f ExclusiveFunc) Invoke(ctx context.Context, fn func(context.Context) error) error {
	return f(ctx, fn)
}
