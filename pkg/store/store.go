package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/metrics"
	"github.com/harrisonrobin/pomodo/pkg/model"
)

var (
	// ErrNotFound is returned for ids that are not in the store.
	ErrNotFound = errors.New("task not found")
	// ErrStorageUnavailable wraps every failure of the persistence backend.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Backend persists whole task records keyed by id. Implementations return
// ErrNotFound from Replace, Remove and Fetch when the id is unknown.
type Backend interface {
	Insert(ctx context.Context, t model.Task) error
	Replace(ctx context.Context, t model.Task) error
	Remove(ctx context.Context, id string) error
	Fetch(ctx context.Context, id string) (model.Task, error)
	Scan(ctx context.Context) ([]model.Task, error)
	Close() error
}

type ChangeKind int

const (
	ChangeCreated ChangeKind = iota + 1
	ChangeUpdated
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	}
	return "unknown"
}

// Change describes one committed mutation. For deletions Task holds the
// record as it was before removal.
type Change struct {
	Kind ChangeKind
	Task model.Task
}

// Store is the task facade. Mutations are serialized and all-or-nothing.
type Store struct {
	backend Backend
	now     func() time.Time
	newID   func() string

	mu    sync.Mutex // serializes mutations
	pubMu sync.Mutex // keeps change delivery in commit order

	subMu  sync.RWMutex
	subs   map[int]func(Change)
	nextID int
}

type Option func(*Store)

// WithClock overrides the time source used for created dates and
// notification stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides id assignment. Generated ids must be unique.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func New(b Backend, opts ...Option) *Store {
	s := &Store{
		backend: b,
		now:     time.Now,
		newID:   uuid.NewString,
		subs:    make(map[int]func(Change)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// Create validates the draft and stores it under a fresh id.
func (s *Store) Create(ctx context.Context, d model.Draft) (string, error) {
	if err := d.Validate(); err != nil {
		metrics.ObserveMutation("create", err)
		return "", err
	}

	s.mu.Lock()
	task := d.NewTask(s.newID(), s.now())
	if err := s.backend.Insert(ctx, task); err != nil {
		s.mu.Unlock()
		err = unavailable("create", task.ID, err)
		metrics.ObserveMutation("create", err)
		return "", err
	}
	metrics.ObserveMutation("create", nil)
	logger.Debug("task created", "id", task.ID, "title", task.Title)
	s.commit(Change{Kind: ChangeCreated, Task: task})
	return task.ID, nil
}

// Update applies the patch to the task with the given id.
func (s *Store) Update(ctx context.Context, id string, p model.Patch) error {
	return s.mutate(ctx, "update", id, p.Apply)
}

// SetCompleted marks the task done or not done.
func (s *Store) SetCompleted(ctx context.Context, id string, completed bool) error {
	return s.Update(ctx, id, model.Patch{Completed: &completed})
}

// ToggleCompleted flips the completion flag and returns the new value.
func (s *Store) ToggleCompleted(ctx context.Context, id string) (bool, error) {
	var completed bool
	err := s.mutate(ctx, "toggle", id, func(t model.Task) (model.Task, error) {
		t.Completed = !t.Completed
		completed = t.Completed
		return t, nil
	})
	return completed, err
}

// IncrementPomodoro records one finished focus interval on the task.
func (s *Store) IncrementPomodoro(ctx context.Context, id string) error {
	return s.mutate(ctx, "pomodoro", id, func(t model.Task) (model.Task, error) {
		t.PomodoroCount++
		return t, nil
	})
}

// MarkNotified stamps the time a reminder for the task was shown.
func (s *Store) MarkNotified(ctx context.Context, id string, at time.Time) error {
	return s.mutate(ctx, "notified", id, func(t model.Task) (model.Task, error) {
		at = model.Stamp(at)
		t.LastNotificationTime = &at
		return t, nil
	})
}

func (s *Store) mutate(ctx context.Context, op, id string, fn func(model.Task) (model.Task, error)) error {
	s.mu.Lock()
	current, err := s.backend.Fetch(ctx, id)
	if err != nil {
		s.mu.Unlock()
		err = s.backendErr(op, id, err)
		metrics.ObserveMutation(op, err)
		return err
	}

	next, err := fn(current)
	if err != nil {
		s.mu.Unlock()
		metrics.ObserveMutation(op, err)
		return err
	}
	next.ID = current.ID
	next.CreatedDate = current.CreatedDate

	if err := s.backend.Replace(ctx, next); err != nil {
		s.mu.Unlock()
		err = s.backendErr(op, id, err)
		metrics.ObserveMutation(op, err)
		return err
	}
	metrics.ObserveMutation(op, nil)
	s.commit(Change{Kind: ChangeUpdated, Task: next})
	return nil
}

// Delete removes the task.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	current, err := s.backend.Fetch(ctx, id)
	if err == nil {
		err = s.backend.Remove(ctx, id)
	}
	if err != nil {
		s.mu.Unlock()
		err = s.backendErr("delete", id, err)
		metrics.ObserveMutation("delete", err)
		return err
	}
	metrics.ObserveMutation("delete", nil)
	logger.Debug("task deleted", "id", id)
	s.commit(Change{Kind: ChangeDeleted, Task: current})
	return nil
}

// Get returns the task or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (model.Task, error) {
	t, err := s.backend.Fetch(ctx, id)
	if err != nil {
		return model.Task{}, s.backendErr("get", id, err)
	}
	return t, nil
}

// ListAll returns every stored task in backend order.
func (s *Store) ListAll(ctx context.Context) ([]model.Task, error) {
	tasks, err := s.backend.Scan(ctx)
	if err != nil {
		return nil, unavailable("list", "", err)
	}
	return tasks, nil
}

// Subscribe registers fn for every committed change. Callbacks run on the
// mutating goroutine, in commit order, after the mutation lock is released.
// A callback must not mutate the store synchronously.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// commit releases the mutation lock and delivers c. Must be called with
// s.mu held.
func (s *Store) commit(c Change) {
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()
	s.publish(c)
}

func (s *Store) publish(c Change) {
	s.subMu.RLock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (s *Store) backendErr(op, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return unavailable(op, id, err)
}

func unavailable(op, id string, err error) error {
	if id == "" {
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s %s: %w: %w", op, id, ErrStorageUnavailable, err)
}
