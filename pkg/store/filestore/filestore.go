// Package filestore keeps tasks in a single JSON document on disk.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/store"
)

type Backend struct {
	Path string

	mu    sync.RWMutex
	tasks []model.Task
	index map[string]int
}

// Open loads the document at path, or starts empty if it does not exist.
func Open(path string) (*Backend, error) {
	b := &Backend{
		Path:  path,
		index: make(map[string]int),
	}
	if _, err := os.Stat(path); err == nil {
		if err := b.load(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Backend) load() error {
	f, err := os.Open(b.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	var tasks []model.Task
	if err := json.NewDecoder(f).Decode(&tasks); err != nil {
		return fmt.Errorf("failed to decode %s: %w", b.Path, err)
	}
	b.tasks = tasks
	b.reindex()
	return nil
}

func (b *Backend) reindex() {
	b.index = make(map[string]int, len(b.tasks))
	for i, t := range b.tasks {
		b.index[t.ID] = i
	}
}

// save writes the document through a temp file so a failed write never
// leaves a truncated file behind. Callers hold b.mu.
func (b *Backend) save(tasks []model.Task) error {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tasks-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tasks); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.Path)
}

// commit persists next and only then swaps it in.
func (b *Backend) commit(next []model.Task) error {
	if err := b.save(next); err != nil {
		return err
	}
	b.tasks = next
	b.reindex()
	return nil
}

func (b *Backend) Insert(_ context.Context, t model.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.index[t.ID]; exists {
		return fmt.Errorf("duplicate task id %s", t.ID)
	}
	next := append(b.snapshot(), t)
	return b.commit(next)
}

func (b *Backend) Replace(_ context.Context, t model.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, exists := b.index[t.ID]
	if !exists {
		return store.ErrNotFound
	}
	next := b.snapshot()
	next[i] = t
	return b.commit(next)
}

func (b *Backend) Remove(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i, exists := b.index[id]
	if !exists {
		return store.ErrNotFound
	}
	next := b.snapshot()
	next = append(next[:i], next[i+1:]...)
	return b.commit(next)
}

func (b *Backend) Fetch(_ context.Context, id string) (model.Task, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i, ok := b.index[id]
	if !ok {
		return model.Task{}, store.ErrNotFound
	}
	return b.tasks[i], nil
}

func (b *Backend) Scan(_ context.Context) ([]model.Task, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot(), nil
}

func (b *Backend) snapshot() []model.Task {
	out := make([]model.Task, len(b.tasks))
	copy(out, b.tasks)
	return out
}

func (b *Backend) Close() error { return nil }
