package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobName identifies the periodic scan job in logs.
const JobName = "deadline_notifications"

// Pass is one unit of periodic work.
type Pass interface {
	Scan(ctx context.Context) (Result, error)
}

// Scheduler owns the single periodic scan job. Start and Stop may be called
// any number of times; at most one job runs at once.
type Scheduler struct {
	mu       sync.Mutex
	pass     Pass
	interval time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
	entry    cron.EntryID
	cancel   context.CancelFunc
}

// NewScheduler creates a scheduler that runs pass every interval. A
// non-positive interval falls back to DefaultScanInterval.
func NewScheduler(pass Pass, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &Scheduler{
		pass:     pass,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the periodic job. It returns false without doing anything
// if the job is already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.logger.Warn("scheduler already running", "job", JobName)
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	cl := cronLogger{s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.entry = c.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.run(ctx)
	}))
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.logger.Info("scheduler started", "job", JobName, "interval", s.interval)
	return true
}

// Stop cancels the job, waits for an in-flight pass to return and clears
// the slot. Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel, s.entry = nil, nil, 0
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped", "job", JobName)
}

// Running reports whether the periodic job is scheduled.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// NextRun returns when the job fires next, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.pass.Scan(ctx); err != nil {
		s.logger.Error("deadline scan failed", "job", JobName, "error", err)
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
