package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/pomodoro"
	"github.com/harrisonrobin/pomodo/pkg/store"
	"github.com/harrisonrobin/pomodo/pkg/store/memstore"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// stillTicker never fires; timers only move when a test says so.
type stillTicker struct{ ch chan time.Time }

func (s stillTicker) C() <-chan time.Time { return s.ch }
func (s stillTicker) Stop()               {}

func newTestServer(t *testing.T, secret string) (*Server, *store.Store) {
	t.Helper()
	st := store.New(memstore.New(), store.WithClock(func() time.Time { return now }))
	srv := New(st, Options{
		JWTSecret: secret,
		Now:       func() time.Time { return now },
		Timer: pomodoro.Options{
			Focus:     2 * time.Second,
			Break:     time.Second,
			Interval:  time.Second,
			NewTicker: func(time.Duration) pomodoro.Ticker { return stillTicker{make(chan time.Time)} },
		},
	})
	t.Cleanup(func() { srv.Close() })
	return srv, st
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestTaskCRUD(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	w := do(t, h, http.MethodPost, "/api/tasks", map[string]any{
		"title": "Write report",
		"tags":  []string{"WORK"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[model.Task](t, w)
	assert.False(t, created.Completed)
	assert.Equal(t, model.PriorityMedium, created.Priority)
	assert.True(t, created.Tags.Has(model.TagWork))

	w = do(t, h, http.MethodPatch, "/api/tasks/"+created.ID, map[string]any{"priority": "HIGH"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.PriorityHigh, decode[model.Task](t, w).Priority)

	w = do(t, h, http.MethodPost, "/api/tasks/"+created.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["completed"])

	w = do(t, h, http.MethodGet, "/api/tasks/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[model.Task](t, w).Completed)

	w = do(t, h, http.MethodDelete, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/tasks", map[string]any{"title": "  "}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/tasks", map[string]any{"title": "x", "priority": "ASAP"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/tasks?tag=HOBBY", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPatch, "/api/tasks/nope", map[string]any{"title": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/tasks/nope/toggle", nil).Code)

	assert.Equal(t, http.StatusServiceUnavailable, statusOf(fmt.Errorf("list: %w", store.ErrStorageUnavailable)))
	assert.Equal(t, http.StatusConflict, statusOf(pomodoro.ErrClosed))
	assert.Equal(t, http.StatusInternalServerError, statusOf(fmt.Errorf("boom")))
}

func TestListFiltersAndSorts(t *testing.T) {
	srv, st := newTestServer(t, "")
	ctx := context.Background()
	later := now.Add(48 * time.Hour)
	sooner := now.Add(2 * time.Hour)

	_, err := st.Create(ctx, model.Draft{Title: "later", DueDate: &later, Tags: model.NewTagSet(model.TagWork)})
	require.NoError(t, err)
	_, err = st.Create(ctx, model.Draft{Title: "sooner", DueDate: &sooner, Tags: model.NewTagSet(model.TagPersonal)})
	require.NoError(t, err)
	doneID, err := st.Create(ctx, model.Draft{Title: "done", Tags: model.NewTagSet(model.TagWork)})
	require.NoError(t, err)
	require.NoError(t, st.SetCompleted(ctx, doneID, true))

	titles := func(path string) []string {
		w := do(t, srv.Handler(), http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var out []string
		for _, task := range decode[[]model.Task](t, w) {
			out = append(out, task.Title)
		}
		return out
	}

	assert.Equal(t, []string{"sooner", "later"}, titles("/api/tasks"))
	assert.Equal(t, []string{"later"}, titles("/api/tasks?tag=WORK"))
	assert.Equal(t, []string{"later", "done"}, titles("/api/tasks?tag=WORK&all=true"))
	assert.Equal(t, []string{"sooner"}, titles("/api/due"))
	assert.Equal(t, []string{"sooner", "later"}, titles("/api/due?range=week"))
	assert.Equal(t, []string{"later"}, titles("/api/due?from=2&to=3"))
	assert.Equal(t, http.StatusBadRequest, do(t, srv.Handler(), http.MethodGet, "/api/due?range=year", nil).Code)
}

func TestTimerLifecycle(t *testing.T) {
	srv, st := newTestServer(t, "")
	h := srv.Handler()
	id, err := st.Create(context.Background(), model.Draft{Title: "Deep work"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/timer", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/timer/start", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/timer", map[string]string{"task_id": "nope"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/timer", map[string]string{}).Code)

	w := do(t, h, http.MethodPost, "/api/timer", map[string]string{"task_id": id})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snap := decode[map[string]any](t, w)
	assert.Equal(t, "idle", snap["state"])
	assert.Equal(t, 2.0, snap["remaining_seconds"])

	w = do(t, h, http.MethodPost, "/api/timer/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "focusing", decode[map[string]any](t, w)["state"])

	first, err := srv.timers.current()
	require.NoError(t, err)
	first.Advance(2)
	task, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, task.PomodoroCount)

	w = do(t, h, http.MethodPost, "/api/timer/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "break_paused", decode[map[string]any](t, w)["state"])

	w = do(t, h, http.MethodPost, "/api/timer/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode[map[string]any](t, w)["progress"])

	// Opening a second timer closes the first.
	w = do(t, h, http.MethodPost, "/api/timer", map[string]string{"task_id": id})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.ErrorIs(t, first.Start(), pomodoro.ErrClosed)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/timer", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/timer", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/timer", nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	h := srv.Handler()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil).Code)

	w := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `pomodo_http_requests_total{method="GET",route="/healthz",status="200"}`)
}
