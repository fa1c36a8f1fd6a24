// Package sqlitestore persists tasks in a SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/store"
)

const columns = `id, title, description, due_date, priority, completed, created_date, tags, pomodoro_count, last_notification_time`

type Backend struct {
	db *sql.DB
}

func Open(dbPath string) (*Backend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps writes ordered and lets :memory: databases work.
	db.SetMaxOpenConns(1)

	b := &Backend{db: db}
	if err := b.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := b.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := b.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (b *Backend) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			due_date INTEGER,
			priority TEXT NOT NULL DEFAULT 'MEDIUM',
			completed INTEGER NOT NULL DEFAULT 0,
			created_date INTEGER NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			pomodoro_count INTEGER NOT NULL DEFAULT 0,
			last_notification_time INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date, completed)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *Backend) Insert(ctx context.Context, t model.Task) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO tasks (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, millis(t.DueDate), string(t.Priority), t.Completed,
		t.CreatedDate.UnixMilli(), t.Tags.String(), t.PomodoroCount, millis(t.LastNotificationTime))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (b *Backend) Replace(ctx context.Context, t model.Task) error {
	res, err := b.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, due_date = ?, priority = ?, completed = ?,
			tags = ?, pomodoro_count = ?, last_notification_time = ?
		WHERE id = ?`,
		t.Title, t.Description, millis(t.DueDate), string(t.Priority), t.Completed,
		t.Tags.String(), t.PomodoroCount, millis(t.LastNotificationTime), t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectOne(res)
}

func (b *Backend) Remove(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectOne(res)
}

func (b *Backend) Fetch(ctx context.Context, id string) (model.Task, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+columns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, store.ErrNotFound
	}
	return t, err
}

func (b *Backend) Scan(ctx context.Context) ([]model.Task, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT `+columns+` FROM tasks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (model.Task, error) {
	var (
		t          model.Task
		due, notif sql.NullInt64
		created    int64
		prio, tags string
	)
	if err := s.Scan(&t.ID, &t.Title, &t.Description, &due, &prio, &t.Completed,
		&created, &tags, &t.PomodoroCount, &notif); err != nil {
		return model.Task{}, err
	}
	set, err := model.ParseTags(tags)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.Priority = model.Priority(prio)
	t.Tags = set
	t.CreatedDate = time.UnixMilli(created)
	t.DueDate = fromMillis(due)
	t.LastNotificationTime = fromMillis(notif)
	return t, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func millis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
