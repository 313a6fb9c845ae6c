package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Timer is a handle to a recurring timer.
type Timer interface {
	Stop()
}

// TimerFactory arms recurring timers.
type TimerFactory interface {
	Every(interval time.Duration, fn func()) (Timer, error)
}

// CronTimers arms timers as entries on one shared cron runner.
type CronTimers struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewCronTimers starts a cron runner. A panic inside a timer callback is
// recovered and logged; work the callback hands to other goroutines is not
// covered.
func NewCronTimers(logger *zap.Logger) *CronTimers {
	cronLog := cronLogger{logger: logger.Sugar()}

	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog)),
	)
	c.Start()

	return &CronTimers{cron: c, logger: logger}
}

// Every schedules fn every interval, first firing one interval from now.
// cron schedules have whole-second resolution.
func (t *CronTimers) Every(interval time.Duration, fn func()) (Timer, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("interval %s is below one second", interval)
	}
	id := t.cron.Schedule(cron.Every(interval), cron.FuncJob(fn))
	return &cronTimer{cron: t.cron, id: id}, nil
}

// Entries reports how many timers are currently armed.
func (t *CronTimers) Entries() int {
	return len(t.cron.Entries())
}

// Close stops the runner and waits for running jobs until ctx is done.
func (t *CronTimers) Close(ctx context.Context) error {
	done := t.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronTimer struct {
	cron *cron.Cron
	id   cron.EntryID
	once sync.Once
}

func (t *cronTimer) Stop() {
	t.once.Do(func() {
		t.cron.Remove(t.id)
	})
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
