// Package storetest holds the behaviour every store.Backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/store"
)

// Run exercises a fresh backend from newBackend for each subtest.
func Run(t *testing.T, newBackend func(t *testing.T) store.Backend) {
	created := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	due := time.Date(2024, 5, 3, 17, 0, 0, 0, time.UTC)

	sample := func(id string) model.Task {
		return model.Task{
			ID:          id,
			Title:       "task " + id,
			Description: "desc",
			DueDate:     &due,
			Priority:    model.PriorityHigh,
			CreatedDate: created,
			Tags:        model.NewTagSet(model.TagWork, model.TagUrgent),
		}
	}

	t.Run("InsertFetch", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Insert(ctx, sample("a")))

		got, err := b.Fetch(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "task a", got.Title)
		assert.Equal(t, model.PriorityHigh, got.Priority)
		assert.Equal(t, model.NewTagSet(model.TagWork, model.TagUrgent), got.Tags)
		require.NotNil(t, got.DueDate)
		assert.True(t, due.Equal(*got.DueDate))
		assert.True(t, created.Equal(got.CreatedDate))
		assert.Nil(t, got.LastNotificationTime)
	})

	t.Run("DuplicateInsert", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Insert(ctx, sample("a")))
		assert.Error(t, b.Insert(ctx, sample("a")))
	})

	t.Run("ReplaceAndMissing", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Insert(ctx, sample("a")))

		upd := sample("a")
		upd.Title = "renamed"
		upd.Completed = true
		upd.DueDate = nil
		upd.PomodoroCount = 3
		require.NoError(t, b.Replace(ctx, upd))

		got, err := b.Fetch(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Title)
		assert.True(t, got.Completed)
		assert.Nil(t, got.DueDate)
		assert.Equal(t, 3, got.PomodoroCount)

		assert.True(t, errors.Is(b.Replace(ctx, sample("zzz")), store.ErrNotFound))
		_, err = b.Fetch(ctx, "zzz")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("RemoveAndScanOrder", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, b.Insert(ctx, sample(id)))
		}
		require.NoError(t, b.Remove(ctx, "b"))
		assert.True(t, errors.Is(b.Remove(ctx, "b"), store.ErrNotFound))

		all, err := b.Scan(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "a", all[0].ID)
		assert.Equal(t, "c", all[1].ID)
	})
}
