package google

import (
	"sync"

	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/pomodo/pkg/index"
	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/store"
)

// Syncer writes task state to a calendar. *CalendarClient satisfies it.
type Syncer interface {
	SyncEvent(task model.Task) (*calendar.Event, error)
	RemoveTask(taskID string) error
}

// Feed is a source of committed store changes.
type Feed interface {
	Subscribe(fn func(store.Change)) (cancel func())
}

// Mirror replays store changes onto the calendar from one worker goroutine
// so store mutations never wait on the network.
type Mirror struct {
	syncer Syncer
	index  *index.EventIndex

	mu      sync.Mutex
	queue   []store.Change
	started bool
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	unwatch func()
}

func NewMirror(s Syncer, idx *index.EventIndex) *Mirror {
	return &Mirror{
		syncer: s,
		index:  idx,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start subscribes to feed and launches the worker.
func (m *Mirror) Start(feed Feed) {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	go m.run()
	m.unwatch = feed.Subscribe(m.Enqueue)
}

// Enqueue schedules c for mirroring. It never blocks.
func (m *Mirror) Enqueue(c store.Change) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, c)
	select {
	case m.wake <- struct{}{}:
	default:
	}
	m.mu.Unlock()
}

// Close stops watching, drains queued changes and waits for the worker.
func (m *Mirror) Close() error {
	if m.unwatch != nil {
		m.unwatch()
	}
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.wake)
	}
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}
	return nil
}

func (m *Mirror) run() {
	defer close(m.done)
	for {
		_, ok := <-m.wake
		m.drain()
		if !ok {
			return
		}
	}
}

func (m *Mirror) drain() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			break
		}
		c := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		m.apply(c)
	}
	if m.index != nil {
		if err := m.index.Save(); err != nil {
			logger.Warn("failed to save event index", "error", err)
		}
	}
}

func (m *Mirror) apply(c store.Change) {
	t := c.Task
	if c.Kind == store.ChangeDeleted || !t.HasDueDate() {
		if err := m.syncer.RemoveTask(t.ID); err != nil {
			logger.Error("calendar remove failed", "task", t.ID, "error", err)
		}
		return
	}
	if _, err := m.syncer.SyncEvent(t); err != nil {
		logger.Error("calendar sync failed", "task", t.ID, "error", err)
	}
}
