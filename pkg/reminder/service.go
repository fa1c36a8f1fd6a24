package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/metrics"
	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/notify"
	"github.com/harrisonrobin/pomodo/pkg/store"
)

const DefaultLead = time.Hour

// Marker stamps a task once its reminder was shown. *store.Store satisfies it.
type Marker interface {
	MarkNotified(ctx context.Context, id string, at time.Time) error
}

// Feed is a source of committed store changes.
type Feed interface {
	Subscribe(fn func(store.Change)) (cancel func())
}

type Options struct {
	Lead  time.Duration
	Now   func() time.Time
	Table *Table
}

type pending struct {
	handle Handle
	seq    uint64
	entry  Entry
}

// Service keeps at most one scheduled reminder per task.
type Service struct {
	sched    Scheduler
	notifier notify.Notifier
	marker   Marker
	lead     time.Duration
	now      func() time.Time
	table    *Table

	mu      sync.Mutex
	seq     uint64
	pending map[string]pending
}

func NewService(sched Scheduler, notifier notify.Notifier, marker Marker, opts Options) *Service {
	if opts.Lead <= 0 {
		opts.Lead = DefaultLead
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		sched:    sched,
		notifier: notifier,
		marker:   marker,
		lead:     opts.Lead,
		now:      opts.Now,
		table:    opts.Table,
		pending:  make(map[string]pending),
	}
}

// Schedule requests a reminder for t, replacing any earlier one. It reports
// whether a reminder is now pending: completed tasks, undated tasks and
// tasks whose reminder time has already passed get none.
func (s *Service) Schedule(t model.Task) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Completed || !t.HasDueDate() {
		s.cancelLocked(t.ID)
		return false, nil
	}
	at := t.DueDate.Add(-s.lead)
	if !at.After(s.now()) {
		s.cancelLocked(t.ID)
		return false, nil
	}

	entry := Entry{TaskID: t.ID, Title: t.Title, Due: *t.DueDate, At: at}
	if old, ok := s.pending[t.ID]; ok {
		if old.entry.Title == entry.Title && old.entry.At.Equal(at) && old.entry.Due.Equal(entry.Due) {
			return true, nil
		}
		s.cancelLocked(t.ID)
	}

	s.seq++
	seq := s.seq
	h, err := s.sched.ScheduleAt(at, Payload{TaskID: t.ID, Title: t.Title, Due: entry.Due}, func(p Payload) {
		s.fire(seq, p)
	})
	if err != nil {
		return false, err
	}
	s.pending[t.ID] = pending{handle: h, seq: seq, entry: entry}
	metrics.RemindersScheduled.Inc()
	logger.Debug("reminder scheduled", "task", t.ID, "at", at)

	if s.table != nil {
		s.table.Update(entry)
		s.saveTable()
	}
	return true, nil
}

// Cancel drops the pending reminder for the task, if any.
func (s *Service) Cancel(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(taskID)
}

func (s *Service) cancelLocked(taskID string) {
	p, ok := s.pending[taskID]
	if !ok {
		return
	}
	s.sched.Cancel(p.handle)
	delete(s.pending, taskID)
	if s.table != nil {
		s.table.Remove(taskID)
		s.saveTable()
	}
}

func (s *Service) saveTable() {
	if err := s.table.Save(); err != nil {
		logger.Warn("failed to save reminder table", "path", s.table.Path, "error", err)
	}
}

// Sync schedules every task in tasks and drops reminders for tasks that are
// no longer present. Ledger entries whose time passed while nothing was
// running are logged as missed.
func (s *Service) Sync(tasks []model.Task) error {
	if s.table != nil {
		for _, e := range s.table.Sweep(s.now()) {
			logger.Warn("missed reminder", "task", e.TaskID, "title", e.Title, "at", e.At)
		}
		s.saveTable()
	}

	seen := make(map[string]bool, len(tasks))
	var errs []error
	for _, t := range tasks {
		seen[t.ID] = true
		if _, err := s.Schedule(t); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	for id := range s.pending {
		if !seen[id] {
			s.cancelLocked(id)
		}
	}
	s.mu.Unlock()
	return errors.Join(errs...)
}

// Watch keeps reminders in step with the store's change feed until the
// returned cancel func is called.
func (s *Service) Watch(feed Feed) (cancel func()) {
	return feed.Subscribe(func(c store.Change) {
		if c.Kind == store.ChangeDeleted {
			s.Cancel(c.Task.ID)
			return
		}
		if _, err := s.Schedule(c.Task); err != nil {
			logger.Error("failed to schedule reminder", "task", c.Task.ID, "error", err)
		}
	})
}

// Pending lists scheduled reminders ordered by fire time.
func (s *Service) Pending() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.entry)
	}
	s.mu.Unlock()
	sortEntries(out)
	return out
}

// fire shows the alert and then stamps the task. The stamp is skipped when
// the alert could not be delivered. A job that was replaced or cancelled
// after it started running does nothing.
func (s *Service) fire(seq uint64, p Payload) {
	s.mu.Lock()
	if cur, ok := s.pending[p.TaskID]; !ok || cur.seq != seq {
		s.mu.Unlock()
		logger.Debug("dropping stale reminder", "task", p.TaskID)
		return
	}
	delete(s.pending, p.TaskID)
	if s.table != nil {
		s.table.Remove(p.TaskID)
		s.saveTable()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	due := p.Due
	err := s.notifier.Notify(ctx, notify.Alert{TaskID: p.TaskID, Title: p.Title, DueDate: &due})
	if err == nil {
		err = s.marker.MarkNotified(ctx, p.TaskID, s.now())
	}
	metrics.ObserveReminder(err)
	if err != nil {
		logger.Error("reminder delivery failed", "task", p.TaskID, "error", err)
	}
}
