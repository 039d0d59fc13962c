package logging

import (
	"context"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-logger/glog"
)

// Glog adapts a go-logger logger to actionqueue.Logger.
type Glog struct {
	logger glog.Logger
}

var (
	_ actionqueue.Logger       = Glog{}
	_ actionqueue.FieldsLogger = Glog{}
)

// NewGlog wraps logger. A nil logger yields a JSON logger at info level.
func NewGlog(logger glog.Logger) Glog {
	if logger == nil {
		logger = glog.NewLogger(glog.WithLoggerTypeJSON(), glog.WithLevel("info"))
	}
	return Glog{logger: logger}
}

func (l Glog) Trace(msg string, args ...any) { l.logger.Trace(msg, args...) }
func (l Glog) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l Glog) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l Glog) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l Glog) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l Glog) Fatal(msg string, args ...any) { l.logger.Fatal(msg, args...) }

func (l Glog) WithContext(ctx context.Context) actionqueue.Logger {
	return Glog{logger: l.logger.WithContext(ctx)}
}

// WithFields returns l unchanged when the wrapped logger has no field support.
func (l Glog) WithFields(fields map[string]any) actionqueue.Logger {
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return Glog{logger: fl.WithFields(fields)}
	}
	return l
}
