package cron

import (
	"fmt"
	"io"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelDebug
)

// Parser represents a cron expression parser type
type Parser int

const (
	DefaultParser Parser = iota
	StandardParser
	SecondsParser
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the timezone location for the scheduler
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.location = loc
	}
}

// WithLogger sets a custom logger for the scheduler
func WithLogger(logger actionqueue.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithLogWriter sets a custom writer for logging
func WithLogWriter(writer io.Writer) Option {
	return func(s *Scheduler) {
		s.logWriter = writer
	}
}

// WithLogLevel sets the logging level
func WithLogLevel(level LogLevel) Option {
	return func(s *Scheduler) {
		s.logLevel = level
	}
}

// WithErrorHandler sets a custom error handler for the scheduler
func WithErrorHandler(handler func(error)) Option {
	return func(s *Scheduler) {
		s.errorHandler = handler
	}
}

// WithParser sets the type of cron expression parser to use
func WithParser(p Parser) Option {
	return func(s *Scheduler) {
		s.parser = p
	}
}

// loggerAdapter adapts our Logger interface to robfig/cron's logger
type loggerAdapter struct {
	logger actionqueue.Logger
	level  LogLevel
}

func (l *loggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	if l.level >= LogLevelInfo {
		l.logger.Info("%s %s", msg, formatKeysAndValues(keysAndValues))
	}
}

func (l *loggerAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	if l.level >= LogLevelError {
		l.logger.Error("%s: %v %s", msg, err, formatKeysAndValues(keysAndValues))
	}
}

// formatKeysAndValues renders robfig/cron key/value pairs as k=v.
func formatKeysAndValues(keysAndValues []interface{}) string {
	out := ""
	for i := 0; i < len(keysAndValues); i += 2 {
		if i > 0 {
			out += " "
		}
		if i+1 < len(keysAndValues) {
			out += fmt.Sprintf("%v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			out += fmt.Sprint(keysAndValues[i])
		}
	}
	return out
}

// errorHandlerAdapter adapts a simple error handler function to implement cron.Logger
type errorHandlerAdapter struct {
	handler func(error)
}

func (e *errorHandlerAdapter) Info(msg string, args ...interface{}) {
	// Info messages are ignored for error handler
}

func (e *errorHandlerAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	if e.handler == nil {
		return
	}
	if err == nil {
		err = fmt.Errorf("%s %s", msg, formatKeysAndValues(keysAndValues))
	}
	e.handler(actionqueue.NewError(actionqueue.ErrExecutionFault, msg, err, nil))
}
