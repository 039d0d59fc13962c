package logging

import (
	"context"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/rs/zerolog"
)

// Zerolog adapts a zerolog logger to actionqueue.Logger.
// Fatal logs at fatal level without exiting the process.
type Zerolog struct {
	logger zerolog.Logger
}

var (
	_ actionqueue.Logger       = Zerolog{}
	_ actionqueue.FieldsLogger = Zerolog{}
)

func NewZerolog(logger zerolog.Logger) Zerolog {
	return Zerolog{logger: logger}
}

func (l Zerolog) Trace(msg string, args ...any) { l.log(l.logger.Trace(), msg, args) }
func (l Zerolog) Debug(msg string, args ...any) { l.log(l.logger.Debug(), msg, args) }
func (l Zerolog) Info(msg string, args ...any)  { l.log(l.logger.Info(), msg, args) }
func (l Zerolog) Warn(msg string, args ...any)  { l.log(l.logger.Warn(), msg, args) }
func (l Zerolog) Error(msg string, args ...any) { l.log(l.logger.Error(), msg, args) }
func (l Zerolog) Fatal(msg string, args ...any) {
	l.log(l.logger.WithLevel(zerolog.FatalLevel), msg, args)
}

func (l Zerolog) WithContext(ctx context.Context) actionqueue.Logger {
	if ctx == nil {
		return l
	}
	return Zerolog{logger: l.logger.With().Ctx(ctx).Logger()}
}

func (l Zerolog) WithFields(fields map[string]any) actionqueue.Logger {
	if len(fields) == 0 {
		return l
	}
	return Zerolog{logger: l.logger.With().Fields(fields).Logger()}
}

func (l Zerolog) log(evt *zerolog.Event, msg string, args []any) {
	if evt == nil {
		return
	}
	if len(args) == 0 {
		evt.Msg(msg)
		return
	}
	evt.Msgf(msg, args...)
}
