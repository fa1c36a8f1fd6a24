package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/pomodo/pkg/config"
	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/pomodoro"
	"github.com/harrisonrobin/pomodo/pkg/store"
	"github.com/harrisonrobin/pomodo/pkg/store/filestore"
	"github.com/harrisonrobin/pomodo/pkg/store/memstore"
	"github.com/harrisonrobin/pomodo/pkg/store/pgstore"
	"github.com/harrisonrobin/pomodo/pkg/store/redisstore"
	"github.com/harrisonrobin/pomodo/pkg/store/sqlitestore"
)

// app is the state shared by every command of one invocation.
type app struct {
	cfg   *config.Config
	store *store.Store
	out   io.Writer
	now   func() time.Time

	// overrides from persistent flags
	driver   string
	calendar string
	verbose  bool
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, now: time.Now}

	root := &cobra.Command{
		Use:           "pomodo",
		Short:         "pomodo - tasks, reminders and a focus timer",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&a.driver, "storage", "", "storage driver: memory, file, sqlite, postgres, redis (overrides config)")
	root.PersistentFlags().StringVar(&a.calendar, "calendar", "", "Google Calendar name (overrides config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.addCmd(), a.editCmd(), a.doneCmd(true), a.doneCmd(false), a.rmCmd(),
		a.showCmd(), a.listCmd(), a.dueCmd(),
		a.timerCmd(), a.importCmd(), a.remindersCmd(), a.serveCmd(),
		a.authCmd(), a.tokenCmd(), a.configCmd(), a.calendarCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.driver != "" {
		cfg.Storage.Driver = a.driver
	}
	if a.calendar != "" {
		cfg.Calendar.Name = a.calendar
	}
	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	logger.Init(level, cfg.Log.JSON)
	a.cfg = cfg
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// openStore connects the configured backend on first use.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	b, err := openBackend(ctx, a.cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.store = store.New(b)
	logger.Debug("storage opened", "driver", a.cfg.Storage.Driver)
	return a.store, nil
}

func openBackend(ctx context.Context, sc config.StorageConfig) (store.Backend, error) {
	switch sc.Driver {
	case "memory":
		return memstore.New(), nil
	case "file":
		path, err := localPath(sc.Path, "tasks.json")
		if err != nil {
			return nil, err
		}
		return filestore.Open(path)
	case "sqlite", "":
		path, err := localPath(sc.Path, "tasks.db")
		if err != nil {
			return nil, err
		}
		return sqlitestore.Open(path)
	case "postgres":
		if sc.DSN == "" {
			return nil, fmt.Errorf("postgres storage needs a dsn (POMODO_PG_DSN)")
		}
		return pgstore.Connect(ctx, sc.DSN)
	case "redis":
		addr := sc.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		return redisstore.Connect(addr, sc.RedisPassword, sc.RedisDB)
	}
	return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
}

// localPath returns path, or name inside the config dir when path is empty.
// The parent directory is created.
func localPath(path, name string) (string, error) {
	if path == "" {
		p, err := config.DataPath(name)
		if err != nil {
			return "", err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return path, nil
}

func (a *app) timerOptions() pomodoro.Options {
	return pomodoro.Options{
		Focus:    a.cfg.Timer.Focus.Std(),
		Break:    a.cfg.Timer.Break.Std(),
		Interval: a.cfg.Timer.Interval.Std(),
	}
}
