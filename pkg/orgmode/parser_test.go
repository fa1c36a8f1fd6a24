package orgmode

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/pomodo/pkg/model"
)

const sample = `#+TITLE: inbox
* Projects
** TODO [#A] Ship release notes :work:urgent:
   DEADLINE: <2024-05-03 Fri 17:00>
   :PROPERTIES:
   :ID:       7c1f6a2e-0000-4000-8000-000000000001
   :END:
   Draft in the wiki first.
   Then email the list.
** DONE Renew passport :personal:
   CLOSED: [2024-04-20 Sat 10:12] SCHEDULED: <2024-04-19 Fri>
** TODO [#C] Tidy desk
* Notes
Not a task.
* TODO Plan trip :travel:
  SCHEDULED: <2024-06-01 Sat 09:30> DEADLINE: <2024-06-10 Mon>
`

func TestParse(t *testing.T) {
	imports, err := Parse(strings.NewReader(sample), "inbox.org")
	require.NoError(t, err)
	require.Len(t, imports, 4)

	release := imports[0]
	assert.Equal(t, "Ship release notes", release.Draft.Title)
	assert.Equal(t, model.PriorityHigh, release.Draft.Priority)
	assert.Equal(t, model.NewTagSet(model.TagWork, model.TagUrgent), release.Draft.Tags)
	require.NotNil(t, release.Draft.DueDate)
	assert.True(t, time.Date(2024, 5, 3, 17, 0, 0, 0, time.Local).Equal(*release.Draft.DueDate))
	assert.Equal(t, "Draft in the wiki first.\nThen email the list.", release.Draft.Description)
	assert.Equal(t, "org:7c1f6a2e-0000-4000-8000-000000000001", release.Source)
	assert.False(t, release.Completed)

	passport := imports[1]
	assert.True(t, passport.Completed)
	assert.Equal(t, model.PriorityMedium, passport.Draft.Priority)
	require.NotNil(t, passport.Draft.DueDate)
	assert.True(t, time.Date(2024, 4, 19, 23, 59, 0, 0, time.Local).Equal(*passport.Draft.DueDate))
	assert.Empty(t, passport.Draft.Description)

	desk := imports[2]
	assert.Equal(t, model.PriorityLow, desk.Draft.Priority)
	assert.Nil(t, desk.Draft.DueDate)
	assert.Equal(t, "org:inbox.org:12", desk.Source)

	trip := imports[3]
	assert.Equal(t, model.NewTagSet(model.TagOther), trip.Draft.Tags)
	require.NotNil(t, trip.Draft.DueDate)
	assert.Equal(t, 10, trip.Draft.DueDate.Day(), "deadline wins over scheduled")

	for _, imp := range imports {
		assert.NoError(t, imp.Draft.Validate())
	}
}

func TestParseFilesAndFilter(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.org")
	b := filepath.Join(dir, "b.org")
	require.NoError(t, os.WriteFile(a, []byte("* TODO one :work:\n"), 0600))
	require.NoError(t, os.WriteFile(b, []byte("* TODO two :personal:\n* TODO three :work:\n"), 0600))

	imports, err := ParseFiles([]string{a, b})
	require.NoError(t, err)
	require.Len(t, imports, 3)

	work := FilterTasks(imports, model.TagWork)
	require.Len(t, work, 2)
	assert.Equal(t, "one", work[0].Draft.Title)
	assert.Equal(t, "three", work[1].Draft.Title)

	_, err = ParseFiles([]string{filepath.Join(dir, "missing.org")})
	assert.Error(t, err)
}
