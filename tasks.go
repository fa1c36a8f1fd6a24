package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/store"
	"github.com/harrisonrobin/pomodo/pkg/view"
)

var dueLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// parseDue reads a due date in local time. A bare date means 23:59 that day.
func parseDue(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	d, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q, use YYYY-MM-DD or YYYY-MM-DD HH:MM", s)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 0, 0, time.Local), nil
}

// resolveID accepts a full id or an unambiguous prefix of one.
func resolveID(ctx context.Context, st *store.Store, arg string) (string, error) {
	if _, err := st.Get(ctx, arg); err == nil {
		return arg, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	tasks, err := st.ListAll(ctx)
	if err != nil {
		return "", err
	}
	var match string
	for _, t := range tasks {
		if !strings.HasPrefix(t.ID, arg) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("id prefix %q is ambiguous", arg)
		}
		match = t.ID
	}
	if match == "" {
		return "", fmt.Errorf("%s: %w", arg, store.ErrNotFound)
	}
	return match, nil
}

func (a *app) addCmd() *cobra.Command {
	var desc, due, prio, tags string
	cmd := &cobra.Command{
		Use:   "add TITLE...",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := model.Draft{Title: strings.Join(args, " "), Description: desc}
			if due != "" {
				t, err := parseDue(due)
				if err != nil {
					return err
				}
				d.DueDate = &t
			}
			if prio != "" {
				p, err := model.ParsePriority(prio)
				if err != nil {
					return err
				}
				d.Priority = p
			}
			set, err := model.ParseTags(tags)
			if err != nil {
				return err
			}
			d.Tags = set

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			id, err := st.Create(cmd.Context(), d)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&desc, "desc", "d", "", "description")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD[ HH:MM])")
	cmd.Flags().StringVarP(&prio, "priority", "p", "", "LOW, MEDIUM or HIGH")
	cmd.Flags().StringVarP(&tags, "tag", "t", "", "comma separated tags: WORK,PERSONAL,URGENT,OTHER")
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	var title, desc, due, prio, tags string
	var noDue bool
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p model.Patch
			flags := cmd.Flags()
			if flags.Changed("title") {
				p.Title = &title
			}
			if flags.Changed("desc") {
				p.Description = &desc
			}
			if flags.Changed("due") {
				t, err := parseDue(due)
				if err != nil {
					return err
				}
				p.DueDate = &t
			}
			p.ClearDueDate = noDue
			if flags.Changed("priority") {
				pr, err := model.ParsePriority(prio)
				if err != nil {
					return err
				}
				p.Priority = &pr
			}
			if flags.Changed("tag") {
				set, err := model.ParseTags(tags)
				if err != nil {
					return err
				}
				p.Tags = &set
			}
			if p.Empty() {
				return errors.New("nothing to change")
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			id, err := resolveID(cmd.Context(), st, args[0])
			if err != nil {
				return err
			}
			return st.Update(cmd.Context(), id, p)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVarP(&desc, "desc", "d", "", "new description")
	cmd.Flags().StringVar(&due, "due", "", "new due date")
	cmd.Flags().BoolVar(&noDue, "no-due", false, "remove the due date")
	cmd.Flags().StringVarP(&prio, "priority", "p", "", "new priority")
	cmd.Flags().StringVarP(&tags, "tag", "t", "", "replace tags (empty clears)")
	return cmd
}

func (a *app) doneCmd(completed bool) *cobra.Command {
	use, short := "done ID...", "Mark tasks completed"
	if !completed {
		use, short = "undone ID...", "Mark tasks not completed"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			var errs []error
			for _, arg := range args {
				id, err := resolveID(cmd.Context(), st, arg)
				if err == nil {
					err = st.SetCompleted(cmd.Context(), id, completed)
				}
				if err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID...",
		Aliases: []string{"delete"},
		Short:   "Delete tasks",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			var errs []error
			for _, arg := range args {
				id, err := resolveID(cmd.Context(), st, arg)
				if err == nil {
					err = st.Delete(cmd.Context(), id)
				}
				if err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print one task in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			id, err := resolveID(cmd.Context(), st, args[0])
			if err != nil {
				return err
			}
			t, err := st.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			printTask(a.out, t)
			return nil
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	var tags string
	var all bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks, soonest due first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := model.ParseTags(tags)
			if err != nil {
				return err
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			tasks, err := st.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			printTable(a.out, view.Apply(tasks, view.Filter{Tags: set, ShowCompleted: all}))
			return nil
		},
	}
	cmd.Flags().StringVarP(&tags, "tag", "t", "", "only tasks with any of these tags")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include completed tasks")
	return cmd
}

func (a *app) dueCmd() *cobra.Command {
	var week bool
	var from, to int
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List incomplete tasks due today, this week or in a day range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end := 0, 1
			if week {
				end = 7
			}
			if cmd.Flags().Changed("from") {
				start = from
			}
			if cmd.Flags().Changed("to") {
				end = to
			}
			if end <= start {
				return fmt.Errorf("empty range: --to must be after --from")
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			tasks, err := st.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			printTable(a.out, view.DueWithin(tasks, a.now(), start, end))
			return nil
		},
	}
	cmd.Flags().Bool("today", true, "tasks due today (default)")
	cmd.Flags().BoolVar(&week, "week", false, "tasks due in the next seven days")
	cmd.Flags().IntVar(&from, "from", 0, "range start, in days from today's midnight")
	cmd.Flags().IntVar(&to, "to", 1, "range end (exclusive), in days from today's midnight")
	return cmd
}

func formatDue(t model.Task) string {
	if !t.HasDueDate() {
		return "-"
	}
	return t.DueDate.Local().Format("2006-01-02 15:04")
}

func printTable(w io.Writer, tasks []model.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "no tasks")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDUE\tPRIORITY\tTAGS\tPOMODOROS\tTITLE")
	for _, t := range tasks {
		title := t.Title
		if t.Completed {
			title = "✓ " + title
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			shortID(t.ID), formatDue(t), t.Priority, t.Tags, t.PomodoroCount, title)
	}
	tw.Flush()
}

func printTask(w io.Writer, t model.Task) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", t.ID)
	fmt.Fprintf(tw, "Title\t%s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(tw, "Description\t%s\n", t.Description)
	}
	fmt.Fprintf(tw, "Due\t%s\n", formatDue(t))
	fmt.Fprintf(tw, "Priority\t%s\n", t.Priority)
	fmt.Fprintf(tw, "Tags\t%s\n", t.Tags)
	fmt.Fprintf(tw, "Completed\t%t\n", t.Completed)
	fmt.Fprintf(tw, "Pomodoros\t%d\n", t.PomodoroCount)
	fmt.Fprintf(tw, "Created\t%s\n", t.CreatedDate.Local().Format(time.RFC3339))
	if t.LastNotificationTime != nil {
		fmt.Fprintf(tw, "Reminded\t%s\n", t.LastNotificationTime.Local().Format(time.RFC3339))
	}
	tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
