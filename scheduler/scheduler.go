// Package scheduler triggers scrape cycles on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a cycle daily at midnight.
const DefaultSchedule = "0 0 * * *"

// Triggerer starts a cycle without waiting for it.
type Triggerer interface {
	Trigger(ctx context.Context) error
}

// ErrNotStarted is returned by Next before Start.
var ErrNotStarted = errors.New("scheduler not started")

// Scheduler calls Trigger on every tick of a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	target   Triggerer
	schedule string
	entry    cron.EntryID
	logger   *slog.Logger
}

// slogAdapter routes cron's logging onto slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error(msg, append(keysAndValues, "err", err)...)
}

// New parses schedule, a standard five-field cron expression, and returns a
// stopped Scheduler. A nil logger means slog.Default().
func New(schedule string, target Triggerer, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	s := &Scheduler{
		target:   target,
		schedule: schedule,
		logger:   logger,
	}
	s.cron = cron.New(cron.WithLogger(slogAdapter{logger: logger}))

	id, err := s.cron.AddFunc(schedule, s.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	s.entry = id
	return s, nil
}

func (s *Scheduler) tick() {
	s.logger.Info("scheduled scrape triggered", "schedule", s.schedule)
	if err := s.target.Trigger(context.Background()); err != nil {
		s.logger.Warn("scheduled scrape not started", "err", err)
	}
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.schedule, "next", s.cron.Entry(s.entry).Next)
}

// Stop halts the schedule. Cycles already triggered keep running.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next returns the time of the next scheduled cycle.
func (s *Scheduler) Next() (time.Time, error) {
	next := s.cron.Entry(s.entry).Next
	if next.IsZero() {
		return time.Time{}, ErrNotStarted
	}
	return next, nil
}
