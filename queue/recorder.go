package queue

import "time"

// Recorder receives queue measurements. Labels never carry the queue key.
type Recorder interface {
	QueueOpened()
	QueueDisposed()
	ActionAdmitted(kind string)
	ActionRejected(kind string, state State)
	ActionExecuted(kind string, duration time.Duration, success bool)
	ActionFaulted(kind string)
	ActionsAborted(count int)
	PendingChanged(delta int)
}

type nopRecorder struct{}

func (nopRecorder) QueueOpened()                               {}
func (nopRecorder) QueueDisposed()                             {}
func (nopRecorder) ActionAdmitted(string)                      {}
func (nopRecorder) ActionRejected(string, State)               {}
func (nopRecorder) ActionExecuted(string, time.Duration, bool) {}
func (nopRecorder) ActionFaulted(string)                       {}
func (nopRecorder) ActionsAborted(int)                         {}
func (nopRecorder) PendingChanged(int)                         {}
