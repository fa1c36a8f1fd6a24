// Package view derives the displayed task list from the stored tasks.
// Everything here is pure: inputs are never modified.
package view

import (
	"sort"
	"time"

	"github.com/harrisonrobin/pomodo/pkg/model"
)

// Filter is the user's current list selection.
type Filter struct {
	Tags          model.TagSet `json:"tags"`
	ShowCompleted bool         `json:"show_completed"`
}

// Includes reports whether t passes the filter.
func (f Filter) Includes(t model.Task) bool {
	if t.Completed && !f.ShowCompleted {
		return false
	}
	return f.Tags.Empty() || t.Tags.Intersects(f.Tags)
}

func (f Filter) ToggleTag(tag model.Tag) Filter {
	f.Tags = f.Tags.Toggle(tag)
	return f
}

func (f Filter) ToggleShowCompleted() Filter {
	f.ShowCompleted = !f.ShowCompleted
	return f
}

// Apply returns the tasks that pass f, in display order.
func Apply(tasks []model.Task, f Filter) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Includes(t) {
			out = append(out, t)
		}
	}
	Sort(out)
	return out
}

// Sort orders tasks in place: due date ascending with undated tasks last,
// then priority high to low, then newest first. Ids break remaining ties so
// the order is total.
func Sort(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return Less(tasks[i], tasks[j])
	})
}

func Less(a, b model.Task) bool {
	aDue, bDue := a.HasDueDate(), b.HasDueDate()
	switch {
	case aDue && !bDue:
		return true
	case !aDue && bDue:
		return false
	case aDue && bDue && !a.DueDate.Equal(*b.DueDate):
		return a.DueDate.Before(*b.DueDate)
	}
	if ar, br := a.Priority.Rank(), b.Priority.Rank(); ar != br {
		return ar > br
	}
	if !a.CreatedDate.Equal(b.CreatedDate) {
		return a.CreatedDate.After(b.CreatedDate)
	}
	return a.ID < b.ID
}

// StartOfDay returns local midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayRange returns [midnight+startDays, midnight+endDays) around now.
func DayRange(now time.Time, startDays, endDays int) (from, to time.Time) {
	midnight := StartOfDay(now)
	return midnight.AddDate(0, 0, startDays), midnight.AddDate(0, 0, endDays)
}

// DueWithin returns the incomplete tasks due in the day range, in display
// order. Tag and completion filters do not apply.
func DueWithin(tasks []model.Task, now time.Time, startDays, endDays int) []model.Task {
	from, to := DayRange(now, startDays, endDays)
	var out []model.Task
	for _, t := range tasks {
		if t.Completed || !t.HasDueDate() {
			continue
		}
		if t.DueDate.Before(from) || !t.DueDate.Before(to) {
			continue
		}
		out = append(out, t)
	}
	Sort(out)
	return out
}

func DueToday(tasks []model.Task, now time.Time) []model.Task {
	return DueWithin(tasks, now, 0, 1)
}

func DueThisWeek(tasks []model.Task, now time.Time) []model.Task {
	return DueWithin(tasks, now, 0, 7)
}
