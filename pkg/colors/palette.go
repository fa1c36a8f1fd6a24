// Package colors picks Google Calendar event colors for tasks.
package colors

import "github.com/harrisonrobin/pomodo/pkg/model"

// Google Calendar event color ids.
const (
	Lavender  = "1"
	Sage      = "2"
	Grape     = "3"
	Flamingo  = "4"
	Banana    = "5"
	Tangerine = "6"
	Peacock   = "7"
	Graphite  = "8"
	Blueberry = "9"
	Basil     = "10"
	Tomato    = "11"
)

// ForTask returns the event color for t. Done tasks are grey, urgent ones
// red, the rest follow priority.
func ForTask(t model.Task) string {
	switch {
	case t.Completed:
		return Graphite
	case t.Tags.Has(model.TagUrgent):
		return Tomato
	}
	return ForPriority(t.Priority)
}

func ForPriority(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return Tangerine
	case model.PriorityLow:
		return Sage
	default:
		return Peacock
	}
}
