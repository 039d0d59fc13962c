package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-logger/glog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlogWritesThroughAdapter(t *testing.T) {
	buf := &bytes.Buffer{}
	base := glog.NewLogger(
		glog.WithWriter(buf),
		glog.WithLoggerTypeJSON(),
		glog.WithLevel("trace"),
	)

	var logger actionqueue.Logger = NewGlog(base)
	logger = actionqueue.WithLoggerFields(logger, map[string]any{"queue_key": "device-7"})
	logger.WithContext(context.Background()).Info("queue created")

	out := buf.String()
	require.NotEmpty(t, strings.TrimSpace(out))
	assert.Contains(t, out, "queue created")
	assert.Contains(t, out, "queue_key")
}

func TestNewGlogDefaultsWhenNil(t *testing.T) {
	l := NewGlog(nil)
	assert.NotNil(t, l.logger)
}

func TestZerologLevelsAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewZerolog(zerolog.New(buf).Level(zerolog.TraceLevel))

	logger.WithFields(map[string]any{"action_id": "a-1"}).Warn("action %s aborted", "a-1")

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"action_id":"a-1"`)
	assert.Contains(t, out, "action a-1 aborted")
}

func TestZerologMessageWithoutArgsIsVerbatim(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewZerolog(zerolog.New(buf))

	logger.Info("100% drained")

	assert.Contains(t, buf.String(), "100% drained")
}

func TestZerologFatalDoesNotExit(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewZerolog(zerolog.New(buf))

	logger.Fatal("cleanup failed")

	assert.Contains(t, buf.String(), `"level":"fatal"`)
}

func TestZerologRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewZerolog(zerolog.New(buf).Level(zerolog.InfoLevel))

	logger.Debug("hidden")
	logger.WithContext(context.Background()).Trace("hidden")

	assert.Empty(t, buf.String())
}
