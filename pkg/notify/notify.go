// Package notify delivers reminder alerts to the user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harrisonrobin/pomodo/pkg/logger"
)

// Alert identifies the task a reminder is about.
type Alert struct {
	TaskID  string
	Title   string
	DueDate *time.Time
}

// Text is the plain one-line rendering of the alert.
func (a Alert) Text() string {
	if a.DueDate == nil {
		return fmt.Sprintf("Reminder: %s", a.Title)
	}
	return fmt.Sprintf("Reminder: %s is due at %s", a.Title, a.DueDate.Local().Format("Mon Jan 2 15:04"))
}

type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, a Alert) error {
	l := n.Logger
	if l == nil {
		l = logger.Get()
	}
	args := []any{"task", a.TaskID, "title", a.Title}
	if a.DueDate != nil {
		args = append(args, "due", a.DueDate.Format(time.RFC3339))
	}
	l.Info("reminder", args...)
	return nil
}

// Multi sends every alert to each notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
