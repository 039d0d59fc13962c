package queue

import (
	"context"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
)

// EventType identifies a queue lifecycle event.
type EventType string

const (
	EventAdmitted     EventType = "admitted"
	EventRejected     EventType = "rejected"
	EventStarted      EventType = "started"
	EventCompleted    EventType = "completed"
	EventStateChanged EventType = "state_changed"
	EventCleanup      EventType = "cleanup"
	EventDisposed     EventType = "disposed"
	EventFault        EventType = "fault"
)

// Event describes something that happened on a queue.
type Event[K comparable] struct {
	Type       EventType
	Key        K
	ActionID   string
	Kind       string
	From       State
	To         State
	Success    bool
	Duration   time.Duration
	Err        error
	OccurredAt time.Time
}

// Hook receives queue events. Hooks run outside the queue lock, in order.
// A failing hook is logged and does not affect the queue.
type Hook[K comparable] interface {
	Notify(ctx context.Context, evt Event[K]) error
}

// HookFunc adapts a function to Hook.
type HookFunc[K comparable] func(ctx context.Context, evt Event[K]) error

func (f HookFunc[K]) Notify(ctx context.Context, evt Event[K]) error {
	return f(ctx, evt)
}

// Hooks fan-out collection.
type Hooks[K comparable] []Hook[K]

func (h Hooks[K]) notify(ctx context.Context, evt Event[K], logger actionqueue.Logger) {
	for idx, hook := range h {
		if hook == nil {
			continue
		}
		err := actionqueue.SafeCall("queue_hook", func() error {
			return hook.Notify(ctx, evt)
		})
		if err != nil {
			logger.Warn("queue hook failed at index=%d event=%s: %v", idx, evt.Type, err)
		}
	}
}
