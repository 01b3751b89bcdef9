// Package scheduler runs the periodic check of all active sources.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Status describes the scheduler for the API.
type Status struct {
	Running  bool          `json:"running"`
	Interval time.Duration `json:"interval"`
	NextRun  *time.Time    `json:"next_run,omitempty"`
}

// Scheduler invokes a job on a fixed interval. Overlapping runs are skipped.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	entry    cron.EntryID
	interval time.Duration
	job      func()
	running  bool
	log      *zap.Logger
}

// New creates a stopped scheduler.
func New(interval time.Duration, job func(), log *zap.Logger) (*Scheduler, error) {
	if err := validInterval(interval); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		interval: interval,
		job:      job,
		log:      log,
	}, nil
}

func validInterval(d time.Duration) error {
	if d < time.Minute {
		return errors.New("check interval must be at least one minute")
	}
	return nil
}

func spec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// Start schedules the job and starts the clock. Starting twice is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	id, err := s.cron.AddFunc(spec(s.interval), s.job)
	if err != nil {
		return fmt.Errorf("scheduling job: %w", err)
	}
	s.entry = id
	s.cron.Start()
	s.running = true
	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Reconfigure replaces the interval. A running scheduler picks it up
// immediately; a stopped one uses it on the next Start.
func (s *Scheduler) Reconfigure(interval time.Duration) error {
	if err := validInterval(interval); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
	if !s.running {
		return nil
	}
	s.cron.Remove(s.entry)
	id, err := s.cron.AddFunc(spec(interval), s.job)
	if err != nil {
		return fmt.Errorf("rescheduling job: %w", err)
	}
	s.entry = id
	s.log.Info("scheduler reconfigured", zap.Duration("interval", interval))
	return nil
}

// Stop halts the clock and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cron.Remove(s.entry)
	ctx := s.cron.Stop()
	s.running = false
	s.mu.Unlock()

	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// Status reports whether the scheduler runs and when the job fires next.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.running, Interval: s.interval}
	if s.running {
		if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
			st.NextRun = &next
		}
	}
	return st
}

// cronLogger routes cron's internal logging to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
