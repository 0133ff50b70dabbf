package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"PriceScanner/internal/ports"
)

// offsetSchedule fires every interval, shifted by offset from the interval
// boundary on the wall clock of t's location.
type offsetSchedule struct {
	interval time.Duration
	offset   time.Duration
}

// Next returns the first boundary+offset strictly after t.
func (s offsetSchedule) Next(t time.Time) time.Time {
	_, zoneOffset := t.Zone()
	shift := time.Duration(zoneOffset) * time.Second
	next := t.Add(shift).Truncate(s.interval).Add(-shift).Add(s.offset)
	for !next.After(t) {
		next = next.Add(s.interval)
	}
	return next
}

// CronTrigger registers recurring callbacks on a robfig/cron runner.
type CronTrigger struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	now     func() time.Time
	started bool
}

var _ ports.Trigger = (*CronTrigger)(nil)

// NewCronTrigger builds a stopped trigger evaluating schedules in loc.
func NewCronTrigger(loc *time.Location, logger *slog.Logger) *CronTrigger {
	if loc == nil {
		loc = time.UTC
	}
	adapter := cronLogger{logger: logger}
	return &CronTrigger{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		entries: make(map[string]cron.EntryID),
		now:     func() time.Time { return time.Now().In(loc) },
	}
}

// Register adds a callback firing every interval at the given offset.
func (c *CronTrigger) Register(id string, interval, offset time.Duration, callback func(time.Time)) error {
	if callback == nil {
		return fmt.Errorf("trigger %s: nil callback", id)
	}
	if interval <= 0 {
		return fmt.Errorf("trigger %s: interval must be positive, got %s", id, interval)
	}
	if offset < 0 || offset >= interval {
		return fmt.Errorf("trigger %s: offset %s outside [0, %s)", id, offset, interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[id]; exists {
		return fmt.Errorf("trigger %s already registered", id)
	}

	entryID := c.cron.Schedule(offsetSchedule{interval: interval, offset: offset}, cron.FuncJob(func() {
		callback(c.now())
	}))
	c.entries[id] = entryID
	return nil
}

// Start begins firing registered callbacks; calling it twice is a no-op.
func (c *CronTrigger) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.cron.Start()
}

// Stop halts the runner and waits for running callbacks or ctx, whichever ends first.
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.mu.Unlock()

	done := c.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

// NextRun reports the earliest upcoming fire time across all registrations.
func (c *CronTrigger) NextRun() (time.Time, bool) {
	now := c.now()
	var earliest time.Time
	for _, entry := range c.cron.Entries() {
		next := entry.Next
		if next.IsZero() {
			next = entry.Schedule.Next(now)
		}
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest, !earliest.IsZero()
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.logger.Debug("cron: "+msg, keysAndValues...)
	}
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
	}
}
