// Package memstore keeps tasks in process memory, in insertion order.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/store"
)

type Backend struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]model.Task
}

func New() *Backend {
	return &Backend{tasks: make(map[string]model.Task)}
}

func (b *Backend) Insert(_ context.Context, t model.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.tasks[t.ID]; exists {
		return fmt.Errorf("duplicate task id %s", t.ID)
	}
	b.tasks[t.ID] = t
	b.order = append(b.order, t.ID)
	return nil
}

func (b *Backend) Replace(_ context.Context, t model.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.tasks[t.ID]; !exists {
		return store.ErrNotFound
	}
	b.tasks[t.ID] = t
	return nil
}

func (b *Backend) Remove(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.tasks[id]; !exists {
		return store.ErrNotFound
	}
	delete(b.tasks, id)
	for i, oid := range b.order {
		if oid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

func (b *Backend) Fetch(_ context.Context, id string) (model.Task, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tasks[id]
	if !ok {
		return model.Task{}, store.ErrNotFound
	}
	return t, nil
}

func (b *Backend) Scan(_ context.Context) ([]model.Task, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Task, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.tasks[id])
	}
	return out, nil
}

func (b *Backend) Close() error { return nil }
