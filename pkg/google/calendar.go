package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/pomodo/pkg/index"
	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/util"
)

// CalendarClient is a Google Calendar API client.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
	index      *index.EventIndex
	lead       time.Duration
	now        func() time.Time
}

// NewCalendarClient creates a new Google Calendar client. Events get a popup
// reminder lead before the task is due.
func NewCalendarClient(srv *calendar.Service, calendarID string, idx *index.EventIndex, lead time.Duration) *CalendarClient {
	return &CalendarClient{srv: srv, calendarID: calendarID, index: idx, lead: lead, now: time.Now}
}

// SyncEvent creates the task's event or patches the one that exists.
func (c *CalendarClient) SyncEvent(task model.Task) (*calendar.Event, error) {
	event, err := util.ConvertTaskToEvent(task, c.lead, c.now())
	if err != nil {
		return nil, err
	}

	existing, err := c.findEvent(task.ID)
	if err != nil {
		return nil, fmt.Errorf("error searching for event: %w", err)
	}

	if existing != nil {
		patch, err := util.EventNeedsUpdate(existing, event)
		if err != nil {
			logger.Warn("could not compare task with its calendar event", "task", task.ID, "error", err)
			return nil, err
		}
		if patch == nil {
			return existing, nil
		}
		updated, err := c.PatchEvent(existing.Id, patch)
		if err == nil && c.index != nil {
			c.index.Set(task.ID, updated.Id)
		}
		return updated, err
	}

	created, err := c.srv.Events.Insert(c.calendarID, event).Do()
	if err == nil && c.index != nil {
		c.index.Set(task.ID, created.Id)
	}
	return created, err
}

// RemoveTask deletes the event mirroring taskID, if there is one.
func (c *CalendarClient) RemoveTask(taskID string) error {
	existing, err := c.findEvent(taskID)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := c.DeleteEvent(existing.Id); err != nil {
			return err
		}
	}
	if c.index != nil {
		c.index.Remove(taskID)
	}
	return nil
}

// findEvent checks the local index first and falls back to an API search.
func (c *CalendarClient) findEvent(taskID string) (*calendar.Event, error) {
	if c.index != nil {
		if eventID := c.index.Get(taskID); eventID != "" {
			ev, err := c.srv.Events.Get(c.calendarID, eventID).Do()
			if err == nil && ev.Status != "cancelled" {
				return ev, nil
			}
		}
	}
	return c.GetEventByTaskID(taskID)
}

// Prune deletes events from since onwards whose task is not in keep and
// returns how many were removed.
func (c *CalendarClient) Prune(keep map[string]bool, since time.Time) (int, error) {
	events, err := c.ListEvents(since)
	if err != nil {
		return 0, err
	}
	var errs []error
	removed := 0
	for _, ev := range events {
		id, ok := util.TaskIDFromEvent(ev)
		if !ok || keep[id] {
			continue
		}
		if err := c.DeleteEvent(ev.Id); err != nil {
			errs = append(errs, fmt.Errorf("delete event %s: %w", ev.Id, err))
			continue
		}
		if c.index != nil {
			c.index.Remove(id)
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// PatchEvent performs a partial update on an event.
func (c *CalendarClient) PatchEvent(eventID string, patch *calendar.Event) (*calendar.Event, error) {
	return c.srv.Events.Patch(c.calendarID, eventID, patch).Do()
}

// DeleteEvent deletes an event from the calendar.
func (c *CalendarClient) DeleteEvent(eventID string) error {
	return c.srv.Events.Delete(c.calendarID, eventID).Do()
}

// ListEvents fetches events from the calendar starting at timeMin.
func (c *CalendarClient) ListEvents(timeMin time.Time) ([]*calendar.Event, error) {
	var out []*calendar.Event
	call := c.srv.Events.List(c.calendarID).TimeMin(timeMin.Format(time.RFC3339))
	err := call.Pages(context.Background(), func(page *calendar.Events) error {
		out = append(out, page.Items...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve events from calendar: %w", err)
	}
	return out, nil
}

// GetEventByTaskID searches for an event tagged with the task id.
func (c *CalendarClient) GetEventByTaskID(taskID string) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", util.TaskIDProperty, taskID)).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}
