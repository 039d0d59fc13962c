package config

import (
	"io"
	"os"
	"strings"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-actionqueue/logging"
	"github.com/goliatone/go-actionqueue/manager"
	"github.com/goliatone/go-logger/glog"
	"github.com/rs/zerolog"
)

const (
	BackendGlog    = "glog"
	BackendZerolog = "zerolog"
	BackendFmt     = "fmt"

	FormatJSON    = "json"
	FormatConsole = "console"
)

func validLevel(level string) bool {
	_, err := actionqueue.ParseLevel(level)
	return err == nil
}

// NewLogger builds the configured logger writing to out, stdout when nil.
func (c LoggingConfig) NewLogger(out io.Writer) actionqueue.Logger {
	if out == nil {
		out = os.Stdout
	}
	level := strings.ToLower(strings.TrimSpace(c.Level))

	switch c.Backend {
	case BackendZerolog:
		zl, err := zerolog.ParseLevel(level)
		if err != nil {
			zl = zerolog.InfoLevel
		}
		var w io.Writer = out
		if c.Format == FormatConsole {
			w = zerolog.ConsoleWriter{Out: out}
		}
		return logging.NewZerolog(zerolog.New(w).Level(zl).With().Timestamp().Logger())
	case BackendFmt:
		threshold, err := actionqueue.ParseLevel(level)
		if err != nil {
			threshold = actionqueue.LevelInfo
		}
		return actionqueue.NewFmtLogger(out).WithLevel(threshold)
	default:
		var base glog.Logger
		if c.Format == FormatConsole {
			base = glog.NewLogger(glog.WithWriter(out), glog.WithLevel(level))
		} else {
			base = glog.NewLogger(glog.WithWriter(out), glog.WithLoggerTypeJSON(), glog.WithLevel(level))
		}
		return logging.NewGlog(base)
	}
}

// ManagerOptions translates the manager section into manager options.
func ManagerOptions[K comparable](c Config, logger actionqueue.Logger) []manager.Option[K] {
	opts := []manager.Option[K]{
		manager.WithPoolSize[K](c.Manager.PoolSize),
		manager.WithMaxParallelism[K](c.Manager.MaxParallelism),
		manager.WithDisposeTimeout[K](c.Manager.DisposeTimeout),
	}
	if logger != nil {
		opts = append(opts, manager.WithLogger[K](logger))
	}
	return opts
}
