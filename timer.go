package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/pomodo/pkg/pomodoro"
)

func (a *app) timerCmd() *cobra.Command {
	var focus, brk time.Duration
	cmd := &cobra.Command{
		Use:   "timer ID",
		Short: "Run a focus interval and its break for a task",
		Long: "Counts down one focus interval and the break after it. A finished focus\n" +
			"interval adds a pomodoro to the task. Ctrl-C pauses and exits.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			id, err := resolveID(cmd.Context(), st, args[0])
			if err != nil {
				return err
			}
			task, err := st.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			opts := a.timerOptions()
			if focus > 0 {
				opts.Focus = focus
			}
			if brk > 0 {
				opts.Break = brk
			}
			changes := make(chan pomodoro.PhaseChange, 2)
			opts.OnPhaseChange = func(pc pomodoro.PhaseChange) { changes <- pc }

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(a.out, "Focusing on %q\n", task.Title)
			return runTimer(ctx, a.out, pomodoro.New(id, st, opts), changes, opts.Interval)
		},
	}
	cmd.Flags().DurationVar(&focus, "focus", 0, "focus length (overrides config)")
	cmd.Flags().DurationVar(&brk, "break", 0, "break length (overrides config)")
	return cmd
}

// runTimer drives tm until its break ends or ctx is cancelled, redrawing a
// status line every interval.
func runTimer(ctx context.Context, out io.Writer, tm *pomodoro.Timer, changes <-chan pomodoro.PhaseChange, interval time.Duration) error {
	defer tm.Close()
	if err := tm.Start(); err != nil {
		return err
	}

	redraw := time.NewTicker(interval)
	defer redraw.Stop()
	drawStatus(out, tm.Snapshot())

	for {
		select {
		case <-ctx.Done():
			tm.Pause()
			fmt.Fprintf(out, "\npaused with %s left\n", formatClock(tm.Remaining()))
			return nil
		case pc := <-changes:
			fmt.Fprintln(out)
			if pc.Err != nil {
				fmt.Fprintf(out, "could not record pomodoro: %v\n", pc.Err)
			}
			if pc.To == pomodoro.Break {
				fmt.Fprintln(out, "Focus done, take a break.")
				continue
			}
			fmt.Fprintln(out, "Break over.")
			return nil
		case <-redraw.C:
			drawStatus(out, tm.Snapshot())
		}
	}
}

func drawStatus(out io.Writer, s pomodoro.Snapshot) {
	const width = 20
	filled := int(float64(width) * (1 - s.Progress))
	bar := strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
	fmt.Fprintf(out, "\r%-6s [%s] %s", s.Phase, bar, formatClock(s.Remaining))
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
