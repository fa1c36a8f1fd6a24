package model

import (
	"strings"
	"time"
)

// Task is a single to-do item.
type Task struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	DueDate              *time.Time `json:"due_date,omitempty"`
	Priority             Priority   `json:"priority"`
	Completed            bool       `json:"completed"`
	CreatedDate          time.Time  `json:"created_date"`
	Tags                 TagSet     `json:"tags"`
	PomodoroCount        int        `json:"pomodoro_count"`
	LastNotificationTime *time.Time `json:"last_notification_time,omitempty"`
}

// HasDueDate reports whether the task has a deadline.
func (t Task) HasDueDate() bool {
	return t.DueDate != nil && !t.DueDate.IsZero()
}

// Draft holds the fields a user supplies when creating a task.
type Draft struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	Tags        TagSet     `json:"tags"`
}

// Validate checks the draft before it is stored.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if d.Priority != "" && !d.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: "unknown priority " + string(d.Priority)}
	}
	return nil
}

// NewTask builds a task from the draft. The caller assigns the id.
func (d Draft) NewTask(id string, created time.Time) Task {
	prio := d.Priority
	if prio == "" {
		prio = PriorityMedium
	}
	return Task{
		ID:          id,
		Title:       strings.TrimSpace(d.Title),
		Description: d.Description,
		DueDate:     cloneTime(d.DueDate),
		Priority:    prio,
		CreatedDate: Stamp(created),
		Tags:        d.Tags,
	}
}

// Patch replaces the user-editable fields that are set.
// ClearDueDate removes the deadline and takes precedence over DueDate.
type Patch struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ClearDueDate bool       `json:"clear_due_date,omitempty"`
	Priority     *Priority  `json:"priority,omitempty"`
	Completed    *bool      `json:"completed,omitempty"`
	Tags         *TagSet    `json:"tags,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil && !p.ClearDueDate &&
		p.Priority == nil && p.Completed == nil && p.Tags == nil
}

// Apply returns a copy of t with the patch applied.
func (p Patch) Apply(t Task) (Task, error) {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return t, &ValidationError{Field: "title", Reason: "must not be empty"}
		}
		t.Title = title
	}
	if p.Priority != nil {
		if !p.Priority.Valid() {
			return t, &ValidationError{Field: "priority", Reason: "unknown priority " + string(*p.Priority)}
		}
		t.Priority = *p.Priority
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.ClearDueDate {
		t.DueDate = nil
	} else if p.DueDate != nil {
		t.DueDate = cloneTime(p.DueDate)
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
	return t, nil
}

// Precision is the finest time resolution every backend keeps.
const Precision = time.Millisecond

// Stamp truncates t to Precision so a stored time reads back unchanged.
func Stamp(t time.Time) time.Time {
	return t.Truncate(Precision)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	c := Stamp(*t)
	return &c
}

// Import is a task read from another tool, ready to be created.
type Import struct {
	Source    string
	Draft     Draft
	Completed bool
}
