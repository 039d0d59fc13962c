package cron

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-actionqueue/runner"

	rcron "github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// JobConfig controls how a scheduled job runs.
type JobConfig struct {
	Expression    string
	MaxRetries    int
	RetryStrategy runner.RetryStrategy
	Timeout       time.Duration
	Deadline      time.Time
	RunOnce       bool
	MaxRuns       int
}

// Scheduler wraps cron functionality.
type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	errorHandler func(error)

	logger    actionqueue.Logger
	parser    Parser
	logWriter io.Writer
	logLevel  LogLevel

	nextHandleID int64
	handles      map[int64]*cronSubscription
}

// NewScheduler creates a new scheduler instance with the provided options.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location: time.Local,
		parser:   DefaultParser,
		logLevel: LogLevelError,
		handles:  make(map[int64]*cronSubscription),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.errorHandler == nil {
		logger := actionqueue.NormalizeLogger(s.logger)
		s.errorHandler = func(err error) {
			logger.Error("scheduled job failed: %v", err)
		}
	}

	s.cron = rcron.New(s.build()...)
	return s
}

// ScheduleCron runs job on every tick of cfg.Expression until the handle is
// canceled, the run limits are reached or a non-retryable error occurs.
func (s *Scheduler) ScheduleCron(cfg JobConfig, job Job) (Handle, error) {
	if cfg.Expression == "" {
		return nil, actionqueue.NewError(actionqueue.ErrConfigInvalid, "cron expression cannot be empty", nil, nil)
	}
	if job == nil {
		return nil, actionqueue.NewError(actionqueue.ErrConfigInvalid, "scheduled job cannot be nil", nil, nil)
	}

	sub := s.newHandle()
	h := s.newRunner(cfg, runner.WithDoneHandler(func(*runner.Handler) {
		sub.finish(s, ScheduleStatusCompleted, nil)
	}))

	entryID, err := s.cron.AddJob(cfg.Expression, rcron.FuncJob(func() {
		if isTerminalStatus(sub.Status()) {
			return
		}

		sub.setStatus(ScheduleStatusRunning, nil)
		err := h.Run(context.Background(), job)
		sub.recordRun(err)
		switch {
		case err == nil:
		case actionqueue.IsRejected(err):
			sub.setStatus(ScheduleStatusIdle, err)
			return
		default:
			sub.finish(s, ScheduleStatusFailed, err)
			s.errorHandler(err)
			return
		}

		if !isTerminalStatus(sub.Status()) {
			sub.setStatus(ScheduleStatusIdle, nil)
		}
	}))
	if err != nil {
		return nil, actionqueue.NewError(actionqueue.ErrConfigInvalid, fmt.Sprintf("invalid cron expression %q", cfg.Expression), err, nil)
	}
	sub.entryID = int(entryID)
	s.storeHandle(sub)
	return sub, nil
}

// ScheduleAfter schedules one execution after delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, cfg JobConfig, job Job) (Handle, error) {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleAt(time.Now().Add(delay), cfg, job)
}

// ScheduleAt schedules one execution at a specific time.
func (s *Scheduler) ScheduleAt(at time.Time, cfg JobConfig, job Job) (Handle, error) {
	if job == nil {
		return nil, actionqueue.NewError(actionqueue.ErrConfigInvalid, "scheduled job cannot be nil", nil, nil)
	}
	h := s.newRunner(cfg)

	sub := s.newHandle()
	s.storeHandle(sub)

	go func() {
		timer := time.NewTimer(max(time.Until(at), 0))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-sub.Done():
			return
		}

		if isTerminalStatus(sub.Status()) {
			return
		}
		sub.setStatus(ScheduleStatusRunning, nil)
		err := h.Run(context.Background(), job)
		sub.recordRun(err)
		if err != nil {
			sub.finish(s, ScheduleStatusFailed, err)
			s.errorHandler(err)
			return
		}
		sub.finish(s, ScheduleStatusCompleted, nil)
	}()

	return sub, nil
}

// Handles returns the active handles.
func (s *Scheduler) Handles() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	return out
}

// Start begins executing scheduled cron jobs.
func (s *Scheduler) Start(_ context.Context) error {
	s.cron.Start()
	return nil
}

// Stop stops the cron clock, waits for running jobs until ctx is done and
// marks active handles as stopped.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()

	var handles []*cronSubscription
	s.mu.Lock()
	for _, handle := range s.handles {
		handles = append(handles, handle)
	}
	s.handles = make(map[int64]*cronSubscription)
	s.mu.Unlock()

	for _, handle := range handles {
		if handle.entryID > 0 {
			s.cron.Remove(rcron.EntryID(handle.entryID))
		}
		if isTerminalStatus(handle.Status()) {
			continue
		}
		handle.setTerminal(ScheduleStatusStopped, nil)
	}

	if ctx == nil {
		return nil
	}
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) newRunner(cfg JobConfig, extra ...runner.Option) *runner.Handler {
	strategy := cfg.RetryStrategy
	if strategy == nil {
		strategy = runner.NoDelayStrategy{}
	}
	opts := []runner.Option{
		runner.WithMaxRetries(cfg.MaxRetries),
		runner.WithRetryStrategy(runner.RetryIf(strategy, actionqueue.IsRejected)),
		runner.WithDeadline(cfg.Deadline),
		runner.WithRunOnce(cfg.RunOnce),
		runner.WithLogger(s.logger),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, runner.WithTimeout(cfg.Timeout))
	}
	if cfg.MaxRuns > 0 {
		opts = append(opts, runner.WithMaxRuns(cfg.MaxRuns))
	} else if cfg.RunOnce {
		opts = append(opts, runner.WithMaxRuns(1))
	}
	return runner.NewHandler(append(opts, extra...)...)
}

func (s *Scheduler) removeHandle(id int64) {
	handle := s.removeStoredHandle(id)
	if handle == nil {
		return
	}
	if handle.entryID > 0 {
		s.cron.Remove(rcron.EntryID(handle.entryID))
	}
}

func (s *Scheduler) removeStoredHandle(id int64) *cronSubscription {
	if s == nil || id == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := s.handles[id]
	delete(s.handles, id)
	return handle
}

func (s *Scheduler) storeHandle(handle *cronSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[handle.id] = handle
}

func (s *Scheduler) newHandle() *cronSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandleID++
	return &cronSubscription{
		scheduler: s,
		id:        s.nextHandleID,
		status:    ScheduleStatusScheduled,
		done:      make(chan struct{}),
	}
}

func isTerminalStatus(status ScheduleStatus) bool {
	switch status {
	case ScheduleStatusCompleted, ScheduleStatusCanceled, ScheduleStatusFailed, ScheduleStatusStopped:
		return true
	default:
		return false
	}
}

func makeLogger(out io.Writer, level LogLevel) rcron.Logger {
	stdLogger := log.New(out, "cron: ", log.LstdFlags)
	if level >= LogLevelDebug {
		return rcron.VerbosePrintfLogger(stdLogger)
	}
	return rcron.PrintfLogger(stdLogger)
}

// build converts scheduler options to rcron options.
func (s *Scheduler) build() []rcron.Option {
	opts := make([]rcron.Option, 0)

	if s.location != nil {
		opts = append(opts, rcron.WithLocation(s.location))
	}

	switch s.parser {
	case StandardParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	case SecondsParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Second|rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	}

	opts = append(opts, rcron.WithChain(
		rcron.Recover(&errorHandlerAdapter{handler: s.errorHandler}),
	))

	var cronLogger rcron.Logger
	switch {
	case s.logger != nil:
		cronLogger = &loggerAdapter{logger: s.logger, level: s.logLevel}
	case s.logWriter != nil:
		cronLogger = makeLogger(s.logWriter, s.logLevel)
	default:
		if s.logLevel > LogLevelSilent {
			cronLogger = makeLogger(os.Stdout, s.logLevel)
		}
	}

	if cronLogger != nil {
		opts = append(opts, rcron.WithLogger(cronLogger))
	}

	return opts
}
