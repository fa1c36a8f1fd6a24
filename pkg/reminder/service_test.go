package reminder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/notify"
	"github.com/harrisonrobin/pomodo/pkg/store"
	"github.com/harrisonrobin/pomodo/pkg/store/memstore"
)

var now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type scheduled struct {
	at   time.Time
	p    Payload
	fire func(Payload)
}

type fakeScheduler struct {
	mu        sync.Mutex
	next      Handle
	jobs      map[Handle]scheduled
	cancelled []Handle
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[Handle]scheduled)}
}

func (f *fakeScheduler) ScheduleAt(at time.Time, p Payload, fire func(Payload)) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.jobs[f.next] = scheduled{at: at, p: p, fire: fire}
	return f.next, nil
}

func (f *fakeScheduler) Cancel(h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, h)
	f.cancelled = append(f.cancelled, h)
}

func (f *fakeScheduler) only(t *testing.T) scheduled {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.jobs, 1)
	for _, j := range f.jobs {
		return j
	}
	return scheduled{}
}

// fireOnly runs the single pending job the way a scheduler would.
func (f *fakeScheduler) fireOnly(t *testing.T) {
	job := f.only(t)
	f.mu.Lock()
	for h, j := range f.jobs {
		if j.p == job.p {
			delete(f.jobs, h)
		}
	}
	f.mu.Unlock()
	job.fire(job.p)
}

func (f *fakeScheduler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type recordingNotifier struct {
	alerts []notify.Alert
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, a notify.Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

type markCall struct {
	id string
	at time.Time
}

type recordingMarker struct {
	calls []markCall
}

func (m *recordingMarker) MarkNotified(_ context.Context, id string, at time.Time) error {
	m.calls = append(m.calls, markCall{id, at})
	return nil
}

func dueIn(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func newService(sched Scheduler, n notify.Notifier, m Marker) *Service {
	return NewService(sched, n, m, Options{Now: func() time.Time { return now }})
}

func TestScheduleWindow(t *testing.T) {
	tests := []struct {
		name string
		task model.Task
		want bool
	}{
		{"due in 90m", model.Task{ID: "a", Title: "a", DueDate: dueIn(90 * time.Minute)}, true},
		{"due in 30m", model.Task{ID: "b", Title: "b", DueDate: dueIn(30 * time.Minute)}, false},
		{"due exactly in 1h", model.Task{ID: "c", Title: "c", DueDate: dueIn(time.Hour)}, false},
		{"overdue", model.Task{ID: "d", Title: "d", DueDate: dueIn(-10 * time.Minute)}, false},
		{"completed", model.Task{ID: "e", Title: "e", DueDate: dueIn(3 * time.Hour), Completed: true}, false},
		{"undated", model.Task{ID: "f", Title: "f"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := newFakeScheduler()
			svc := newService(sched, &recordingNotifier{}, &recordingMarker{})

			ok, err := svc.Schedule(tt.task)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Equal(t, now.Add(30*time.Minute), sched.only(t).at)
			} else {
				assert.Zero(t, sched.count())
			}
		})
	}
}

func TestRescheduleReplacesPrevious(t *testing.T) {
	sched := newFakeScheduler()
	svc := newService(sched, &recordingNotifier{}, &recordingMarker{})

	task := model.Task{ID: "a", Title: "a", DueDate: dueIn(2 * time.Hour)}
	_, err := svc.Schedule(task)
	require.NoError(t, err)
	_, err = svc.Schedule(task)
	require.NoError(t, err)
	assert.Empty(t, sched.cancelled, "unchanged task keeps its reminder")

	task.DueDate = dueIn(5 * time.Hour)
	_, err = svc.Schedule(task)
	require.NoError(t, err)
	assert.Len(t, sched.cancelled, 1)
	assert.Equal(t, now.Add(4*time.Hour), sched.only(t).at)

	task.Completed = true
	_, err = svc.Schedule(task)
	require.NoError(t, err)
	assert.Zero(t, sched.count())
	assert.Empty(t, svc.Pending())
}

func TestFireNotifiesThenMarks(t *testing.T) {
	sched := newFakeScheduler()
	notifier := &recordingNotifier{}
	marker := &recordingMarker{}
	svc := newService(sched, notifier, marker)

	due := dueIn(3 * time.Hour)
	_, err := svc.Schedule(model.Task{ID: "a", Title: "Dentist", DueDate: due})
	require.NoError(t, err)

	sched.fireOnly(t)

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, "a", notifier.alerts[0].TaskID)
	assert.Equal(t, "Dentist", notifier.alerts[0].Title)
	assert.True(t, due.Equal(*notifier.alerts[0].DueDate))
	assert.Equal(t, []markCall{{"a", now}}, marker.calls)
	assert.Empty(t, svc.Pending())
}

func TestLateFireOfReplacedReminderIsDropped(t *testing.T) {
	sched := newFakeScheduler()
	notifier := &recordingNotifier{}
	marker := &recordingMarker{}
	svc := newService(sched, notifier, marker)

	task := model.Task{ID: "a", Title: "draft", DueDate: dueIn(2 * time.Hour)}
	_, err := svc.Schedule(task)
	require.NoError(t, err)
	first := sched.only(t)

	// The first job is already running when the task changes.
	task.Title = "final"
	task.DueDate = dueIn(5 * time.Hour)
	_, err = svc.Schedule(task)
	require.NoError(t, err)
	first.fire(first.p)

	assert.Empty(t, notifier.alerts)
	assert.Empty(t, marker.calls)
	require.Len(t, svc.Pending(), 1)
	assert.Equal(t, "final", svc.Pending()[0].Title)
	assert.Equal(t, 1, sched.count())

	// The replacement is still tracked, so completing the task cancels it.
	task.Completed = true
	_, err = svc.Schedule(task)
	require.NoError(t, err)
	assert.Zero(t, sched.count())
	assert.Empty(t, svc.Pending())
}

func TestLateFireOfCancelledReminderIsDropped(t *testing.T) {
	sched := newFakeScheduler()
	notifier := &recordingNotifier{}
	svc := newService(sched, notifier, &recordingMarker{})

	_, err := svc.Schedule(model.Task{ID: "a", Title: "a", DueDate: dueIn(2 * time.Hour)})
	require.NoError(t, err)
	job := sched.only(t)
	svc.Cancel("a")
	job.fire(job.p)

	assert.Empty(t, notifier.alerts)
	assert.Empty(t, svc.Pending())
}

func TestFailedNotifyDoesNotMark(t *testing.T) {
	sched := newFakeScheduler()
	marker := &recordingMarker{}
	svc := newService(sched, &recordingNotifier{err: errors.New("offline")}, marker)

	_, err := svc.Schedule(model.Task{ID: "a", Title: "a", DueDate: dueIn(3 * time.Hour)})
	require.NoError(t, err)
	sched.fireOnly(t)
	assert.Empty(t, marker.calls)
}

func TestWatchFollowsStore(t *testing.T) {
	st := store.New(memstore.New(), store.WithClock(func() time.Time { return now }))
	sched := newFakeScheduler()
	notifier := &recordingNotifier{}
	svc := newService(sched, notifier, st)
	cancel := svc.Watch(st)
	defer cancel()
	ctx := context.Background()

	id, err := st.Create(ctx, model.Draft{Title: "report", DueDate: dueIn(4 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, svc.Pending(), 1)
	assert.Equal(t, id, svc.Pending()[0].TaskID)

	sched.fireOnly(t)
	got, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.LastNotificationTime)
	assert.Equal(t, now, *got.LastNotificationTime)

	_, err = svc.Schedule(got)
	require.NoError(t, err)
	require.NoError(t, st.Delete(ctx, id))
	assert.Empty(t, svc.Pending())
	assert.Zero(t, sched.count())
}

func TestSyncDropsMissingTasks(t *testing.T) {
	sched := newFakeScheduler()
	table, err := NewTable(filepath.Join(t.TempDir(), "reminders.json"))
	require.NoError(t, err)
	table.Update(Entry{TaskID: "stale", Title: "old", At: now.Add(-time.Hour)})

	svc := NewService(sched, &recordingNotifier{}, &recordingMarker{}, Options{
		Now:   func() time.Time { return now },
		Table: table,
	})
	_, err = svc.Schedule(model.Task{ID: "gone", Title: "gone", DueDate: dueIn(5 * time.Hour)})
	require.NoError(t, err)

	require.NoError(t, svc.Sync([]model.Task{
		{ID: "kept", Title: "kept", DueDate: dueIn(2 * time.Hour)},
	}))

	pending := svc.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "kept", pending[0].TaskID)

	reloaded, err := NewTable(table.Path)
	require.NoError(t, err)
	entries := reloaded.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].TaskID)
}
