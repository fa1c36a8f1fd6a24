package pomodoro

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func newCountingStore() *countingStore {
	return &countingStore{counts: make(map[string]int)}
}

func (c *countingStore) IncrementPomodoro(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.counts[id]++
	return nil
}

func (c *countingStore) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[id]
}

// manualTicker only fires when the test sends on ch.
type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

func manual() (*manualTicker, func(time.Duration) Ticker) {
	m := &manualTicker{ch: make(chan time.Time)}
	return m, func(time.Duration) Ticker { return m }
}

func scaled(onChange func(PhaseChange), tk func(time.Duration) Ticker) Options {
	return Options{
		Focus:         2 * time.Second,
		Break:         3 * time.Second,
		Interval:      time.Second,
		OnPhaseChange: onChange,
		NewTicker:     tk,
	}
}

func TestDefaults(t *testing.T) {
	tm := New("task", newCountingStore(), Options{})
	assert.Equal(t, Idle, tm.State())
	assert.Equal(t, Focus, tm.Phase())
	assert.Equal(t, 25*time.Minute, tm.Remaining())
	assert.Equal(t, 1500, tm.RemainingTicks())
	assert.Equal(t, 1.0, tm.Progress())
}

func TestFocusExhaustionStartsBreak(t *testing.T) {
	counter := newCountingStore()
	var changes []PhaseChange
	_, tk := manual()
	tm := New("T", counter, scaled(func(c PhaseChange) { changes = append(changes, c) }, tk))
	defer tm.Close()

	require.NoError(t, tm.Start())
	assert.Equal(t, Focusing, tm.State())

	tm.Advance(1)
	assert.Equal(t, 1, tm.RemainingTicks())
	assert.Equal(t, 0.5, tm.Progress())
	tm.Advance(1)

	assert.Equal(t, OnBreak, tm.State())
	assert.Equal(t, Break, tm.Phase())
	assert.Equal(t, 3, tm.RemainingTicks())
	assert.Equal(t, 1, counter.count("T"))
	require.Len(t, changes, 1)
	assert.Equal(t, PhaseChange{TaskID: "T", From: Focus, To: Break, State: OnBreak}, changes[0])
}

func TestPauseThenReset(t *testing.T) {
	counter := newCountingStore()
	_, tk := manual()
	tm := New("T", counter, scaled(nil, tk))
	defer tm.Close()

	require.NoError(t, tm.Start())
	tm.Advance(1)
	tm.Pause()
	assert.Equal(t, FocusPaused, tm.State())
	assert.Equal(t, 1, tm.RemainingTicks())

	tm.Advance(5)
	assert.Equal(t, 1, tm.RemainingTicks(), "paused timer must not count down")

	tm.Reset()
	assert.Equal(t, 2, tm.RemainingTicks())
	assert.Equal(t, FocusPaused, tm.State())
	assert.Zero(t, counter.count("T"))
}

func TestResetDuringBreak(t *testing.T) {
	_, tk := manual()
	tm := New("T", newCountingStore(), scaled(nil, tk))
	defer tm.Close()

	require.NoError(t, tm.Start())
	tm.Advance(2)
	tm.Advance(1)
	tm.Reset()
	assert.Equal(t, BreakPaused, tm.State())
	assert.Equal(t, 3, tm.RemainingTicks())

	require.NoError(t, tm.Start())
	assert.Equal(t, OnBreak, tm.State())
}

func TestBreakExhaustionStops(t *testing.T) {
	counter := newCountingStore()
	var changes []PhaseChange
	ticker, tk := manual()
	tm := New("T", counter, scaled(func(c PhaseChange) { changes = append(changes, c) }, tk))
	defer tm.Close()

	require.NoError(t, tm.Start())
	tm.Advance(2)
	tm.Advance(3)

	assert.Equal(t, Idle, tm.State())
	assert.Equal(t, Focus, tm.Phase())
	assert.Equal(t, 2, tm.RemainingTicks())
	assert.True(t, ticker.stopped.Load(), "tick source must be stopped")
	require.Len(t, changes, 2)
	assert.Equal(t, Idle, changes[1].State)
	assert.Equal(t, 1, counter.count("T"))

	tm.Advance(1)
	assert.Equal(t, 2, tm.RemainingTicks())
}

func TestMissedTicksClampToZero(t *testing.T) {
	counter := newCountingStore()
	changes := make(chan PhaseChange, 4)
	ticker, tk := manual()
	tm := New("T", counter, scaled(func(c PhaseChange) { changes <- c }, tk))
	defer tm.Close()

	require.NoError(t, tm.Start())
	// A tick arriving an hour late applies thousands of ticks at once.
	ticker.ch <- time.Now().Add(time.Hour)

	select {
	case c := <-changes:
		assert.Equal(t, Break, c.To)
	case <-time.After(time.Second):
		t.Fatal("no phase change after late tick")
	}
	assert.Equal(t, OnBreak, tm.State())
	assert.Equal(t, 3, tm.RemainingTicks())
	assert.Equal(t, 1, counter.count("T"))
	assert.Empty(t, changes)
}

func TestCounterFailureIsReported(t *testing.T) {
	counter := newCountingStore()
	counter.err = errors.New("storage unavailable")
	var changes []PhaseChange
	_, tk := manual()
	tm := New("T", counter, scaled(func(c PhaseChange) { changes = append(changes, c) }, tk))
	defer tm.Close()

	require.NoError(t, tm.Start())
	tm.Advance(2)
	require.Len(t, changes, 1)
	assert.Error(t, changes[0].Err)
	assert.Equal(t, OnBreak, tm.State())
}

func TestNoTickAfterPause(t *testing.T) {
	var phaseChanges atomic.Int32
	tm := New("T", newCountingStore(), Options{
		Focus:         time.Hour,
		Interval:      time.Millisecond,
		OnPhaseChange: func(PhaseChange) { phaseChanges.Add(1) },
	})

	require.NoError(t, tm.Start())
	require.Eventually(t, func() bool { return tm.RemainingTicks() < 3600000 }, time.Second, time.Millisecond)
	tm.Pause()
	paused := tm.RemainingTicks()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, paused, tm.RemainingTicks())
	assert.Equal(t, FocusPaused, tm.State())
	assert.Zero(t, phaseChanges.Load())
}

func TestProgressNeverIncreasesWhileRunning(t *testing.T) {
	_, tk := manual()
	tm := New("T", newCountingStore(), Options{
		Focus:     10 * time.Second,
		Interval:  time.Second,
		NewTicker: tk,
	})
	defer tm.Close()

	require.NoError(t, tm.Start())
	prev := tm.Progress()
	for i := 0; i < 9; i++ {
		tm.Advance(1)
		p := tm.Progress()
		assert.LessOrEqual(t, p, prev)
		assert.GreaterOrEqual(t, p, 0.0)
		prev = p
	}
}

func TestClose(t *testing.T) {
	ticker, tk := manual()
	tm := New("T", newCountingStore(), scaled(nil, tk))

	require.NoError(t, tm.Start())
	require.NoError(t, tm.Close())
	assert.True(t, ticker.stopped.Load())
	assert.Equal(t, FocusPaused, tm.State())
	assert.True(t, errors.Is(tm.Start(), ErrClosed))
	assert.NoError(t, tm.Close())
}

func TestSnapshot(t *testing.T) {
	_, tk := manual()
	tm := New("T", newCountingStore(), scaled(nil, tk))
	defer tm.Close()

	require.NoError(t, tm.Start())
	tm.Advance(1)
	snap := tm.Snapshot()
	assert.Equal(t, "T", snap.TaskID)
	assert.Equal(t, Focusing, snap.State)
	assert.Equal(t, time.Second, snap.Remaining)
	assert.Equal(t, 1.0, snap.Seconds)
	assert.Equal(t, 0.5, snap.Progress)
}
