// Package pomodoro implements the focus/break countdown bound to one task.
package pomodoro

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/metrics"
)

var ErrClosed = errors.New("timer closed")

type State int

const (
	Idle State = iota
	Focusing
	FocusPaused
	OnBreak
	BreakPaused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Focusing:
		return "focusing"
	case FocusPaused:
		return "focus_paused"
	case OnBreak:
		return "on_break"
	case BreakPaused:
		return "break_paused"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Running reports whether the state counts down.
func (s State) Running() bool {
	return s == Focusing || s == OnBreak
}

type Phase int

const (
	Focus Phase = iota
	Break
)

func (p Phase) String() string {
	if p == Break {
		return "break"
	}
	return "focus"
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Counter records finished focus intervals. *store.Store satisfies it.
type Counter interface {
	IncrementPomodoro(ctx context.Context, id string) error
}

// PhaseChange is emitted once per exhausted interval. Err carries a failed
// pomodoro count update; the timer itself carries on.
type PhaseChange struct {
	TaskID string `json:"task_id"`
	From   Phase  `json:"from"`
	To     Phase  `json:"to"`
	State  State  `json:"state"`
	Err    error  `json:"-"`
}

// Ticker is the tick source. time.Ticker is adapted by default.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct{ *time.Ticker }

func (t stdTicker) C() <-chan time.Time { return t.Ticker.C }

func newStdTicker(d time.Duration) Ticker {
	return stdTicker{time.NewTicker(d)}
}

type Options struct {
	Focus    time.Duration
	Break    time.Duration
	Interval time.Duration

	// OnPhaseChange runs on the tick goroutine. It must not call Pause,
	// Reset or Close.
	OnPhaseChange func(PhaseChange)

	NewTicker func(time.Duration) Ticker
}

func (o Options) withDefaults() Options {
	if o.Focus <= 0 {
		o.Focus = 25 * time.Minute
	}
	if o.Break <= 0 {
		o.Break = 5 * time.Minute
	}
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.NewTicker == nil {
		o.NewTicker = newStdTicker
	}
	return o
}

func ticks(d, interval time.Duration) int {
	n := int(d / interval)
	if n < 1 {
		n = 1
	}
	return n
}

// Timer counts down focus and break intervals for one task. Remaining time
// is kept in whole ticks.
type Timer struct {
	taskID     string
	counter    Counter
	opts       Options
	focusTicks int
	breakTicks int

	mu        sync.Mutex
	state     State
	phase     Phase
	remaining int
	closed    bool
	stop      chan struct{}
	done      chan struct{}
}

// New returns an idle timer holding a full focus interval for taskID.
func New(taskID string, counter Counter, opts Options) *Timer {
	opts = opts.withDefaults()
	t := &Timer{
		taskID:     taskID,
		counter:    counter,
		opts:       opts,
		focusTicks: ticks(opts.Focus, opts.Interval),
		breakTicks: ticks(opts.Break, opts.Interval),
		state:      Idle,
		phase:      Focus,
	}
	t.remaining = t.focusTicks
	return t
}

func (t *Timer) TaskID() string { return t.taskID }

// Start resumes counting down in the current phase.
func (t *Timer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	switch t.state {
	case Focusing, OnBreak:
		return nil
	case Idle, FocusPaused:
		t.state = Focusing
	case BreakPaused:
		t.state = OnBreak
	}

	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.opts.NewTicker(t.opts.Interval), t.stop, t.done)
	logger.Debug("timer started", "task", t.taskID, "phase", t.phase, "remaining", t.remaining)
	return nil
}

// Pause stops the countdown. No tick is applied once Pause returns.
func (t *Timer) Pause() {
	t.mu.Lock()
	switch t.state {
	case Focusing:
		t.state = FocusPaused
	case OnBreak:
		t.state = BreakPaused
	}
	done := t.halt()
	t.mu.Unlock()
	wait(done)
}

// Reset restores the full duration of the current phase and leaves the
// timer paused in that phase.
func (t *Timer) Reset() {
	t.mu.Lock()
	done := t.halt()
	t.remaining = t.phaseTicks()
	if t.phase == Break {
		t.state = BreakPaused
	} else {
		t.state = FocusPaused
	}
	t.mu.Unlock()
	wait(done)
}

// Close pauses the timer for good.
func (t *Timer) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.Pause()
	return nil
}

// Advance applies n elapsed ticks. Exhausting a phase consumes the surplus:
// remaining never goes below zero and each exhaustion fires once.
func (t *Timer) Advance(n int) {
	t.advance(n, nil)
}

func (t *Timer) advance(n int, loop chan struct{}) {
	t.mu.Lock()
	if loop != nil && loop != t.stop {
		t.mu.Unlock()
		return
	}
	if n <= 0 || !t.state.Running() {
		t.mu.Unlock()
		return
	}

	t.remaining -= n
	if t.remaining > 0 {
		t.mu.Unlock()
		return
	}

	change := PhaseChange{TaskID: t.taskID, From: t.phase}
	var done chan struct{}
	if t.phase == Focus {
		t.phase = Break
		t.remaining = t.breakTicks
		t.state = OnBreak
	} else {
		t.phase = Focus
		t.remaining = t.focusTicks
		t.state = Idle
		done = t.halt()
	}
	change.To = t.phase
	change.State = t.state
	t.mu.Unlock()

	if loop == nil {
		wait(done)
	}
	t.exhausted(change)
}

func (t *Timer) exhausted(change PhaseChange) {
	if change.From == Focus {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		change.Err = t.counter.IncrementPomodoro(ctx, t.taskID)
		cancel()
		if change.Err != nil {
			logger.Error("failed to record pomodoro", "task", t.taskID, "error", change.Err)
		} else {
			metrics.PomodorosCompleted.Inc()
		}
	}
	logger.Info("timer phase finished", "task", t.taskID, "from", change.From, "to", change.To)
	if t.opts.OnPhaseChange != nil {
		t.opts.OnPhaseChange(change)
	}
}

// halt stops the tick goroutine, if any, and returns its done channel.
// Must be called with t.mu held.
func (t *Timer) halt() chan struct{} {
	if t.stop == nil {
		return nil
	}
	close(t.stop)
	done := t.done
	t.stop, t.done = nil, nil
	return done
}

func wait(done chan struct{}) {
	if done != nil {
		<-done
	}
}

func (t *Timer) run(tk Ticker, stop, done chan struct{}) {
	defer close(done)
	defer tk.Stop()

	interval := t.opts.Interval
	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-tk.C():
			n := int(now.Sub(last) / interval)
			if n < 1 {
				n = 1
			}
			last = last.Add(time.Duration(n) * interval)
			t.advance(n, stop)
		}
	}
}

func (t *Timer) phaseTicks() int {
	if t.phase == Break {
		return t.breakTicks
	}
	return t.focusTicks
}

func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Timer) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// RemainingTicks is the countdown in tick units.
func (t *Timer) RemainingTicks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Timer) Remaining() time.Duration {
	return time.Duration(t.RemainingTicks()) * t.opts.Interval
}

// Progress is the fraction of the current phase still left, in [0,1].
func (t *Timer) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.remaining) / float64(t.phaseTicks())
}

type Snapshot struct {
	TaskID    string        `json:"task_id"`
	State     State         `json:"state"`
	Phase     Phase         `json:"phase"`
	Remaining time.Duration `json:"-"`
	Seconds   float64       `json:"remaining_seconds"`
	Progress  float64       `json:"progress"`
}

func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := time.Duration(t.remaining) * t.opts.Interval
	return Snapshot{
		TaskID:    t.taskID,
		State:     t.state,
		Phase:     t.phase,
		Remaining: remaining,
		Seconds:   remaining.Seconds(),
		Progress:  float64(t.remaining) / float64(t.phaseTicks()),
	}
}
