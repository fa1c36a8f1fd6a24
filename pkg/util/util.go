package util

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/pomodo/pkg/colors"
	"github.com/harrisonrobin/pomodo/pkg/model"
)

// TaskIDProperty is the private extended property carrying the task id.
const TaskIDProperty = "pomodo_id"

// EventLength is how long a mirrored task occupies the calendar.
const EventLength = 30 * time.Minute

var ErrNoDueDate = errors.New("task has no due date")

var taskIDRe = regexp.MustCompile(`ID: ([a-zA-Z0-9\-]+)`)

// ConvertTaskToEvent builds the calendar event mirroring t. The event
// carries a popup reminder lead before the due date; lead <= 0 leaves the
// calendar defaults.
func ConvertTaskToEvent(t model.Task, lead time.Duration, now time.Time) (*calendar.Event, error) {
	if !t.HasDueDate() {
		return nil, fmt.Errorf("%w: %s", ErrNoDueDate, t.ID)
	}

	prefix := ""
	switch {
	case t.Completed:
		prefix = "✓"
	case t.DueDate.Before(now):
		prefix = "!"
	}
	summary := t.Title
	if prefix != "" {
		summary = prefix + " " + t.Title
	}

	start := *t.DueDate
	end := start.Add(EventLength)

	event := &calendar.Event{
		Summary:     summary,
		ColorId:     colors.ForTask(t),
		Description: describe(t),
		Start:       &calendar.EventDateTime{DateTime: start.UTC().Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.UTC().Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{TaskIDProperty: t.ID},
		},
	}
	if lead > 0 {
		event.Reminders = &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "popup", Minutes: int64(lead / time.Minute)},
			},
			ForceSendFields: []string{"UseDefault"},
		}
	}
	return event, nil
}

func describe(t model.Task) string {
	var b strings.Builder
	if !t.Tags.Empty() {
		for _, name := range t.Tags.Names() {
			fmt.Fprintf(&b, "#%s ", strings.ToLower(name))
		}
		b.WriteString("\n\n")
	}
	if t.Description != "" {
		b.WriteString(t.Description)
		b.WriteString("\n\n")
	}
	status := "pending"
	if t.Completed {
		status = "completed"
	}
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Priority: %s\n", t.Priority)
	if t.PomodoroCount > 0 {
		fmt.Fprintf(&b, "Pomodoros: %d\n", t.PomodoroCount)
	}
	fmt.Fprintf(&b, "ID: %s\n", t.ID)
	return b.String()
}

// EventNeedsUpdate returns a patch holding the fields of target that differ
// from existing, or nil when they match.
func EventNeedsUpdate(existing, target *calendar.Event) (*calendar.Event, error) {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}

	same, err := sameTimes(existing, target)
	if err != nil {
		return nil, err
	}
	if !same {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}

	if reminderMinutes(existing) != reminderMinutes(target) {
		patch.Reminders = target.Reminders
		needsUpdate = true
	}

	if needsUpdate {
		return patch, nil
	}
	return nil, nil
}

func sameTimes(a, b *calendar.Event) (bool, error) {
	if a.Start == nil || a.End == nil {
		return false, nil
	}
	pairs := [][2]string{
		{a.Start.DateTime, b.Start.DateTime},
		{a.End.DateTime, b.End.DateTime},
	}
	for _, p := range pairs {
		x, err := time.Parse(time.RFC3339, p[0])
		if err != nil {
			return false, err
		}
		y, err := time.Parse(time.RFC3339, p[1])
		if err != nil {
			return false, err
		}
		if !x.Equal(y) {
			return false, nil
		}
	}
	return true, nil
}

// reminderMinutes is the popup override in minutes, or -1 when the event
// uses calendar defaults.
func reminderMinutes(e *calendar.Event) int64 {
	if e.Reminders == nil || e.Reminders.UseDefault {
		return -1
	}
	for _, r := range e.Reminders.Overrides {
		if r.Method == "popup" {
			return r.Minutes
		}
	}
	return -1
}

// TaskIDFromEvent returns the task an event mirrors, looking at the
// extended property first and the description second.
func TaskIDFromEvent(e *calendar.Event) (string, bool) {
	if e.ExtendedProperties != nil {
		if id := e.ExtendedProperties.Private[TaskIDProperty]; id != "" {
			return id, true
		}
	}
	return GetTaskIDFromEventDescription(e.Description)
}

// GetTaskIDFromEventDescription parses the task ID from the event description.
func GetTaskIDFromEventDescription(description string) (string, bool) {
	matches := taskIDRe.FindStringSubmatch(description)
	if len(matches) > 1 {
		return matches[1], true
	}
	return "", false
}
