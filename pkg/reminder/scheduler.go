// Package reminder schedules an alert a fixed lead time before each task's
// due date.
package reminder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/harrisonrobin/pomodo/pkg/logger"
)

// Payload is what a fired reminder knows about its task.
type Payload struct {
	TaskID string
	Title  string
	Due    time.Time
}

type Handle int

// Scheduler runs fire once at the requested instant unless cancelled first.
type Scheduler interface {
	ScheduleAt(at time.Time, p Payload, fire func(Payload)) (Handle, error)
	Cancel(h Handle)
}

// once is a cron.Schedule that activates a single time. cron asks for the
// first activation when the entry is added; an instant already passed by
// then activates immediately. Every later call reports no activation.
type once struct {
	at     time.Time
	issued atomic.Bool
}

func (o *once) Next(t time.Time) time.Time {
	if o.issued.Swap(true) {
		return time.Time{}
	}
	if t.Before(o.at) {
		return o.at
	}
	return t
}

// CronScheduler runs one-shot jobs on a robfig/cron runner.
type CronScheduler struct {
	c *cron.Cron
}

func NewCronScheduler() *CronScheduler {
	c := cron.New()
	c.Start()
	return &CronScheduler{c: c}
}

func (s *CronScheduler) ScheduleAt(at time.Time, p Payload, fire func(Payload)) (Handle, error) {
	var (
		mu sync.Mutex
		id cron.EntryID
	)
	mu.Lock()
	defer mu.Unlock()
	id = s.c.Schedule(&once{at: at}, cron.FuncJob(func() {
		mu.Lock()
		s.c.Remove(id)
		mu.Unlock()
		fire(p)
	}))
	return Handle(id), nil
}

func (s *CronScheduler) Cancel(h Handle) {
	s.c.Remove(cron.EntryID(h))
}

// Len reports how many jobs are still waiting.
func (s *CronScheduler) Len() int {
	return len(s.c.Entries())
}

// Stop halts the runner and waits for running jobs, up to the context's
// deadline.
func (s *CronScheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.Warn("reminder scheduler stop timed out waiting for running jobs")
	}
}
