package api

import (
	"errors"
	"sync"

	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/pomodoro"
)

var errNoTimer = errors.New("no timer open")

// timerSlot holds the server's single focus timer.
type timerSlot struct {
	counter pomodoro.Counter
	opts    pomodoro.Options
	hub     *Hub

	mu    sync.Mutex
	timer *pomodoro.Timer
}

func (s *timerSlot) open(taskID string) *pomodoro.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Close()
	}

	opts := s.opts
	opts.OnPhaseChange = s.phaseChanged
	s.timer = pomodoro.New(taskID, s.counter, opts)
	logger.Info("timer opened", "task", taskID)
	return s.timer
}

func (s *timerSlot) phaseChanged(pc pomodoro.PhaseChange) {
	if pc.Err != nil {
		logger.Warn("pomodoro count not recorded", "task", pc.TaskID, "error", pc.Err)
	}
	s.hub.Broadcast(Message{Type: MsgPhase, Data: pc})
}

func (s *timerSlot) current() (*pomodoro.Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return nil, errNoTimer
	}
	return s.timer, nil
}

func (s *timerSlot) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return errNoTimer
	}
	err := s.timer.Close()
	s.timer = nil
	return err
}
