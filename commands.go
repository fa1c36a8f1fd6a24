package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/pomodo/pkg/api"
	"github.com/harrisonrobin/pomodo/pkg/auth"
	"github.com/harrisonrobin/pomodo/pkg/config"
	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/reminder"
)

// remindersCmd lists the ledger a running `serve` keeps of pending reminders.
func (a *app) remindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reminders",
		Short: "List reminders waiting to fire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DataPath(remindersFile)
			if err != nil {
				return err
			}
			table, err := reminder.NewTable(path)
			if err != nil {
				return err
			}
			entries := table.List()
			if len(entries) == 0 {
				fmt.Fprintln(a.out, "no pending reminders")
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tAT\tDUE\tTITLE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", shortID(e.TaskID),
					e.At.Local().Format("2006-01-02 15:04"), e.Due.Local().Format("2006-01-02 15:04"), e.Title)
			}
			return tw.Flush()
		},
	}
}

func (a *app) authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize pomodo with Google Calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.ResetToken(); err != nil {
				return err
			}
			if _, err := auth.GetCalendarService(cmd.Context()); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			path, _ := auth.TokenPath()
			fmt.Fprintf(a.out, "Authentication successful, token saved to %s\n", path)
			return nil
		},
	}
}

func (a *app) tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Server.JWTSecret == "" {
				return errors.New("no server secret configured, set POMODO_JWT_SECRET")
			}
			tok, err := api.IssueToken([]byte(a.cfg.Server.JWTSecret), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(a.cfg)
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := config.GetConfigPath()
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set-calendar NAME",
			Short: "Set the default Google Calendar and enable the mirror",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.updateFile(func(c *config.Config) {
					c.Calendar.Name = args[0]
					c.Calendar.Enabled = true
				})
			},
		},
		&cobra.Command{
			Use:   "set-storage DRIVER [PATH|DSN]",
			Short: "Set the storage backend",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.updateFile(func(c *config.Config) {
					c.Storage.Driver = args[0]
					if len(args) < 2 {
						return
					}
					if args[0] == "postgres" {
						c.Storage.DSN = args[1]
					} else {
						c.Storage.Path = args[1]
					}
				})
			},
		},
	)
	return cmd
}

// updateFile edits the file contents only, so environment overrides are
// never written back.
func (a *app) updateFile(fn func(*config.Config)) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	fn(cfg)
	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved %s\n", path)
	return nil
}

func (a *app) calendarCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Bring Google Calendar in line with the task store",
	}
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror every task now and delete events of removed tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			tasks, err := st.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			client, idx, err := a.calendarClient(cmd.Context())
			if err != nil {
				return err
			}

			keep := make(map[string]bool)
			var errs []error
			synced := 0
			for _, t := range tasks {
				if !t.HasDueDate() {
					errs = append(errs, client.RemoveTask(t.ID))
					continue
				}
				keep[t.ID] = true
				if _, err := client.SyncEvent(t); err != nil {
					errs = append(errs, fmt.Errorf("sync %s: %w", t.ID, err))
					continue
				}
				synced++
			}
			removed, err := client.Prune(keep, a.now().AddDate(0, 0, -days))
			errs = append(errs, err)
			if idx != nil {
				if n := idx.Retain(keep); n > 0 {
					logger.Debug("dropped stale event mappings", "count", n)
				}
				errs = append(errs, idx.Save())
			}
			fmt.Fprintf(a.out, "synced %d event(s), removed %d\n", synced, removed)
			return errors.Join(errs...)
		},
	}
	syncCmd.Flags().IntVar(&days, "since", 30, "prune orphaned events starting up to this many days ago")
	cmd.AddCommand(syncCmd)
	return cmd
}
