package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/pomodo/pkg/api"
	"github.com/harrisonrobin/pomodo/pkg/config"
	"github.com/harrisonrobin/pomodo/pkg/google"
	"github.com/harrisonrobin/pomodo/pkg/index"
	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/notify"
	"github.com/harrisonrobin/pomodo/pkg/reminder"
	"github.com/harrisonrobin/pomodo/pkg/store"
)

const remindersFile = "reminders.json"

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, reminders and the calendar mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	if a.cfg.Reminder.Enabled {
		stop, err := a.startReminders(ctx, st)
		if err != nil {
			return err
		}
		defer stop()
	}
	if a.cfg.Calendar.Enabled {
		mirror, err := a.startMirror(ctx, st)
		if err != nil {
			// The API is still useful without the calendar.
			logger.Error("calendar mirror disabled", "error", err)
		} else {
			defer mirror.Close()
		}
	}

	apiServer := api.New(st, api.Options{
		Timer:     a.timerOptions(),
		JWTSecret: a.cfg.Server.JWTSecret,
	})
	defer apiServer.Close()

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		logger.Info("shutting down server")
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}

func (a *app) notifier() notify.Notifier {
	notifiers := notify.Multi{notify.LogNotifier{Logger: logger.Get()}}
	if a.cfg.Telegram.Token == "" {
		return notifiers
	}
	tg, err := notify.NewTelegram(a.cfg.Telegram.Token, a.cfg.Telegram.ChatID)
	if err != nil {
		logger.Error("telegram notifications disabled", "error", err)
		return notifiers
	}
	return append(notifiers, tg)
}

// startReminders schedules reminders for every stored task and keeps them
// in step with later changes.
func (a *app) startReminders(ctx context.Context, st *store.Store) (stop func(), err error) {
	path, err := config.DataPath(remindersFile)
	if err != nil {
		return nil, err
	}
	table, err := reminder.NewTable(path)
	if err != nil {
		return nil, fmt.Errorf("open reminder table: %w", err)
	}

	sched := reminder.NewCronScheduler()
	svc := reminder.NewService(sched, a.notifier(), st, reminder.Options{
		Lead:  a.cfg.Reminder.Lead.Std(),
		Table: table,
	})
	unwatch := svc.Watch(st)

	tasks, err := st.ListAll(ctx)
	if err != nil {
		unwatch()
		sched.Stop(ctx)
		return nil, err
	}
	if err := svc.Sync(tasks); err != nil {
		logger.Warn("some reminders could not be scheduled", "error", err)
	}
	logger.Info("reminders running", "pending", len(svc.Pending()), "lead", a.cfg.Reminder.Lead.Std())

	return func() {
		unwatch()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}, nil
}

func (a *app) calendarClient(ctx context.Context) (*google.CalendarClient, *index.EventIndex, error) {
	idx, err := index.NewEventIndex()
	if err != nil {
		logger.Warn("event index unavailable, falling back to API lookups", "error", err)
		idx = nil
	}
	client, err := google.NewClient(ctx, a.cfg.Calendar.Name, idx, a.cfg.Reminder.Lead.Std())
	if err != nil {
		return nil, nil, err
	}
	return client, idx, nil
}

func (a *app) startMirror(ctx context.Context, st *store.Store) (*google.Mirror, error) {
	client, idx, err := a.calendarClient(ctx)
	if err != nil {
		return nil, err
	}
	m := google.NewMirror(client, idx)
	m.Start(st)
	logger.Info("calendar mirror running", "calendar", a.cfg.Calendar.Name)
	return m, nil
}
