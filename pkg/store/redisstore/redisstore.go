// Package redisstore persists tasks in Redis: one JSON value per task and a
// sorted set that keeps insertion order.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/store"
)

const defaultPrefix = "pomodo"

type Backend struct {
	rdb    *redis.Client
	prefix string
}

// Connect dials addr and verifies the connection with a ping.
func Connect(addr, password string, db int) (*Backend, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return New(rdb, defaultPrefix), nil
}

// New wraps an existing client. Keys are namespaced under prefix.
func New(rdb *redis.Client, prefix string) *Backend {
	return &Backend{rdb: rdb, prefix: prefix}
}

func (b *Backend) taskKey(id string) string { return b.prefix + ":task:" + id }
func (b *Backend) indexKey() string        { return b.prefix + ":tasks" }
func (b *Backend) seqKey() string          { return b.prefix + ":seq" }

func (b *Backend) Close() error {
	return b.rdb.Close()
}

func (b *Backend) Insert(ctx context.Context, t model.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	seq, err := b.rdb.Incr(ctx, b.seqKey()).Result()
	if err != nil {
		return err
	}
	ok, err := b.rdb.SetNX(ctx, b.taskKey(t.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("duplicate task id %s", t.ID)
	}
	if err := b.rdb.ZAdd(ctx, b.indexKey(), redis.Z{Score: float64(seq), Member: t.ID}).Err(); err != nil {
		// Leave no orphan value behind when the index write fails.
		b.rdb.Del(ctx, b.taskKey(t.ID))
		return err
	}
	return nil
}

func (b *Backend) Replace(ctx context.Context, t model.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	ok, err := b.rdb.SetXX(ctx, b.taskKey(t.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, b.taskKey(id))
		pipe.ZRem(ctx, b.indexKey(), id)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (b *Backend) Fetch(ctx context.Context, id string) (model.Task, error) {
	data, err := b.rdb.Get(ctx, b.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Task{}, store.ErrNotFound
	}
	if err != nil {
		return model.Task{}, err
	}
	var t model.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return model.Task{}, fmt.Errorf("decode task %s: %w", id, err)
	}
	return t, nil
}

func (b *Backend) Scan(ctx context.Context) ([]model.Task, error) {
	ids, err := b.rdb.ZRange(ctx, b.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.taskKey(id)
	}
	vals, err := b.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.Task, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// Index entry without a value; skip it.
			continue
		}
		var t model.Task
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("decode task %s: %w", ids[i], err)
		}
		out = append(out, t)
	}
	return out, nil
}
