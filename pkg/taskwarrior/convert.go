package taskwarrior

import (
	"strings"

	"github.com/harrisonrobin/pomodo/pkg/model"
)

// Skipped reports whether t has no place in the task list.
func Skipped(t Task) bool {
	return t.Status == DELETED || t.Status == RECURRING || strings.TrimSpace(t.Description) == ""
}

// ToImport maps a Taskwarrior task onto a draft. The due date falls back to
// the scheduled date; H/M/L priorities map to HIGH/MEDIUM/LOW; tags named
// like a known tag keep it and anything else becomes OTHER.
func ToImport(t Task) model.Import {
	d := model.Draft{
		Title:    strings.TrimSpace(t.Description),
		Priority: priority(t.Priority),
		Tags:     tags(t.Tags),
	}
	switch {
	case t.Due.set():
		due := t.Due.Time
		d.DueDate = &due
	case t.Scheduled.set():
		due := t.Scheduled.Time
		d.DueDate = &due
	}

	var notes []string
	if t.Project != "" {
		notes = append(notes, "Project: "+t.Project)
	}
	for _, a := range t.Annotations {
		notes = append(notes, a.Description)
	}
	d.Description = strings.Join(notes, "\n")

	return model.Import{
		Source:    "taskwarrior:" + t.UUID,
		Draft:     d,
		Completed: t.Status == COMPLETED,
	}
}

func priority(p string) model.Priority {
	switch strings.ToUpper(p) {
	case "H":
		return model.PriorityHigh
	case "L":
		return model.PriorityLow
	default:
		return model.PriorityMedium
	}
}

func tags(names []string) model.TagSet {
	var set model.TagSet
	for _, name := range names {
		tag, err := model.ParseTag(name)
		if err != nil {
			tag = model.TagOther
		}
		set = set.With(tag)
	}
	return set
}
