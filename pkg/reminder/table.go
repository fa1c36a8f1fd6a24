package reminder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Entry is one pending reminder as recorded in the ledger.
type Entry struct {
	TaskID string    `json:"task_id"`
	Title  string    `json:"title"`
	Due    time.Time `json:"due"`
	At     time.Time `json:"at"`
}

// Table is the on-disk ledger of pending reminders. A running daemon keeps
// it current so other processes can list what is scheduled.
type Table struct {
	Entries map[string]Entry `json:"entries"`
	Path    string           `json:"-"`

	mu    sync.Mutex
	dirty bool
}

// NewTable opens the ledger at path, loading it when the file exists.
func NewTable(path string) (*Table, error) {
	t := &Table{
		Path:    path,
		Entries: make(map[string]Entry),
	}
	if _, err := os.Stat(path); err == nil {
		if err := t.Load(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) Load() error {
	f, err := os.Open(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := json.NewDecoder(f).Decode(t); err != nil {
		return err
	}
	if t.Entries == nil {
		t.Entries = make(map[string]Entry)
	}
	return nil
}

func (t *Table) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(t.Path), 0700); err != nil {
		return err
	}

	f, err := os.Create(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(t)
	if err == nil {
		t.dirty = false
	}
	return err
}

// Update records e, replacing any entry for the same task.
func (t *Table) Update(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.Entries[e.TaskID]; ok && old.Title == e.Title && old.Due.Equal(e.Due) && old.At.Equal(e.At) {
		return
	}
	t.Entries[e.TaskID] = e
	t.dirty = true
}

func (t *Table) Remove(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.Entries[taskID]; ok {
		delete(t.Entries, taskID)
		t.dirty = true
	}
}

// Sweep removes and returns the entries whose fire time is before now.
func (t *Table) Sweep(now time.Time) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var swept []Entry
	for id, e := range t.Entries {
		if e.At.Before(now) {
			swept = append(swept, e)
			delete(t.Entries, id)
			t.dirty = true
		}
	}
	sortEntries(swept)
	return swept
}

// List returns the entries ordered by fire time.
func (t *Table) List() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.Entries))
	for _, e := range t.Entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].At.Equal(es[j].At) {
			return es[i].At.Before(es[j].At)
		}
		return es[i].TaskID < es[j].TaskID
	})
}
