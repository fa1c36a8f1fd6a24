// Package index remembers which Google Calendar event mirrors which task, so
// the calendar client can patch an event without searching the calendar.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/harrisonrobin/pomodo/pkg/config"
)

const indexFile = "events.json"

// EventIndex maps task ids to event ids. It is safe for concurrent use and
// only touches the disk on Save, and only when something changed.
type EventIndex struct {
	Mappings map[string]string `json:"mappings"`
	Path     string            `json:"-"`
	mu       sync.RWMutex
	dirty    bool
}

// NewEventIndex opens the index in the pomodo config directory.
func NewEventIndex() (*EventIndex, error) {
	path, err := config.DataPath(indexFile)
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Open loads the index at path. A missing file is an empty index.
func Open(path string) (*EventIndex, error) {
	idx := &EventIndex{
		Mappings: make(map[string]string),
		Path:     path,
	}
	if _, err := os.Stat(path); err == nil {
		if err := idx.Load(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Load replaces the in-memory mappings with the file contents.
func (idx *EventIndex) Load() error {
	data, err := os.ReadFile(idx.Path)
	if err != nil {
		return err
	}
	m := make(map[string]string)
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode event index %s: %w", idx.Path, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.Mappings = m
	idx.dirty = false
	return nil
}

// Save writes the index if it changed since the last Load or Save. The file
// is replaced by rename so a reader never sees half of it.
func (idx *EventIndex) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return nil
	}

	dir := filepath.Dir(idx.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	data, err := json.Marshal(idx.Mappings)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, indexFile+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), idx.Path); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

// Get returns the event mirroring the task, or "".
func (idx *EventIndex) Get(taskID string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.Mappings[taskID]
}

func (idx *EventIndex) Set(taskID, eventID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.Mappings[taskID] != eventID {
		idx.Mappings[taskID] = eventID
		idx.dirty = true
	}
}

func (idx *EventIndex) Remove(taskID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.Mappings[taskID]; exists {
		delete(idx.Mappings, taskID)
		idx.dirty = true
	}
}

// Retain drops the mappings of tasks not in keep and reports how many went.
// Events outside a prune window leave such mappings behind.
func (idx *EventIndex) Retain(keep map[string]bool) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n := 0
	for taskID := range idx.Mappings {
		if !keep[taskID] {
			delete(idx.Mappings, taskID)
			n++
		}
	}
	if n > 0 {
		idx.dirty = true
	}
	return n
}

// Len is the number of mapped tasks.
func (idx *EventIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.Mappings)
}
