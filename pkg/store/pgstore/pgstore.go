// Package pgstore persists tasks in PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/store"
)

const columns = `id, title, description, due_date, priority, completed, created_date, tags, pomodoro_count, last_notification_time`

const schema = `CREATE TABLE IF NOT EXISTS tasks (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_date TIMESTAMPTZ,
	priority TEXT NOT NULL DEFAULT 'MEDIUM',
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_date TIMESTAMPTZ NOT NULL,
	tags TEXT NOT NULL DEFAULT '',
	pomodoro_count INTEGER NOT NULL DEFAULT 0,
	last_notification_time TIMESTAMPTZ
)`

type Backend struct {
	db *pgxpool.Pool
}

// Connect opens a pool, checks it and creates the tasks table if needed.
func Connect(ctx context.Context, dsn string) (*Backend, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	logger.Info("database connected", "driver", "postgres")
	return &Backend{db: db}, nil
}

func (b *Backend) Close() error {
	b.db.Close()
	return nil
}

func (b *Backend) Insert(ctx context.Context, t model.Task) error {
	_, err := b.db.Exec(ctx,
		`INSERT INTO tasks (`+columns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.Title, t.Description, t.DueDate, string(t.Priority), t.Completed,
		t.CreatedDate, t.Tags.String(), t.PomodoroCount, t.LastNotificationTime)
	return err
}

func (b *Backend) Replace(ctx context.Context, t model.Task) error {
	tag, err := b.db.Exec(ctx, `
		UPDATE tasks SET title = $1, description = $2, due_date = $3, priority = $4, completed = $5,
			tags = $6, pomodoro_count = $7, last_notification_time = $8
		WHERE id = $9`,
		t.Title, t.Description, t.DueDate, string(t.Priority), t.Completed,
		t.Tags.String(), t.PomodoroCount, t.LastNotificationTime, t.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context, id string) error {
	tag, err := b.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (b *Backend) Fetch(ctx context.Context, id string) (model.Task, error) {
	row := b.db.QueryRow(ctx, `SELECT `+columns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Task{}, store.ErrNotFound
	}
	return t, err
}

func (b *Backend) Scan(ctx context.Context) ([]model.Task, error) {
	rows, err := b.db.Query(ctx, `SELECT `+columns+` FROM tasks ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func scanTask(row pgx.Row) (model.Task, error) {
	var (
		t          model.Task
		due, notif *time.Time
		prio, tags string
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &due, &prio, &t.Completed,
		&t.CreatedDate, &tags, &t.PomodoroCount, &notif); err != nil {
		return model.Task{}, err
	}
	set, err := model.ParseTags(tags)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.Priority = model.Priority(prio)
	t.Tags = set
	t.DueDate = due
	t.LastNotificationTime = notif
	return t, nil
}
