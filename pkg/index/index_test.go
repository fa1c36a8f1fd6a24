package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventIndexPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "events.json")
	idx, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, idx.Save())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "clean index is not written")

	idx.Set("task-1", "evt-1")
	idx.Set("task-2", "evt-2")
	idx.Remove("task-2")
	require.NoError(t, idx.Save())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", reopened.Get("task-1"))
	assert.Empty(t, reopened.Get("task-2"))
	assert.Equal(t, 1, reopened.Len())
}

func TestNewEventIndexUsesConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("POMODO_HOME", dir)

	idx, err := NewEventIndex()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "events.json"), idx.Path)
}

func TestRetainDropsUnknownTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	idx, err := Open(path)
	require.NoError(t, err)
	idx.Set("keep", "evt-1")
	idx.Set("gone", "evt-2")
	require.NoError(t, idx.Save())

	assert.Zero(t, idx.Retain(map[string]bool{"keep": true, "gone": true}))
	assert.Equal(t, 1, idx.Retain(map[string]bool{"keep": true}))
	require.NoError(t, idx.Save())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", reopened.Get("keep"))
	assert.Equal(t, 1, reopened.Len())
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err := Open(path)
	assert.ErrorContains(t, err, "decode event index")
}
