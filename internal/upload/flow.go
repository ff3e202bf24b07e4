package upload

import (
	"errors"
	"fmt"
	"sync"
)

// State is a step of an upload attempt.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateUploading  State = "uploading"
	StateVerifying  State = "verifying"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// ErrIllegalTransition is returned when a move is not allowed from the current state.
var ErrIllegalTransition = errors.New("illegal upload state transition")

var transitions = map[State][]State{
	StateIdle:       {StateValidating},
	StateValidating: {StateUploading, StateFailed},
	StateUploading:  {StateVerifying, StateFailed},
	StateVerifying:  {StateComplete, StateFailed},
	StateComplete:   {StateIdle},
	StateFailed:     {StateIdle},
}

// Flow tracks one upload attempt at a time. It is safe for concurrent use so progress can
// be reported from the transfer goroutine while a UI reads it.
type Flow struct {
	mu       sync.RWMutex
	state    State
	progress int
	err      error
}

// NewFlow returns an idle Flow.
func NewFlow() *Flow {
	return &Flow{state: StateIdle}
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Progress returns the upload progress as a whole percentage.
func (f *Flow) Progress() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.progress
}

// Err returns the failure that moved the flow to StateFailed, if any.
func (f *Flow) Err() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.err
}

// To moves the flow to next.
func (f *Flow) To(next State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moveLocked(next)
}

// Fail moves the flow to StateFailed and records err.
func (f *Flow) Fail(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if moveErr := f.moveLocked(StateFailed); moveErr != nil {
		return moveErr
	}
	f.err = err
	return nil
}

// Reset returns a finished flow to idle.
func (f *Flow) Reset() error {
	return f.To(StateIdle)
}

// SetProgress records transfer progress. Values are clamped to 0..100 and only accepted
// while uploading.
func (f *Flow) SetProgress(percent int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateUploading {
		return
	}
	f.progress = min(100, max(0, percent))
}

func (f *Flow) moveLocked(next State) error {
	for _, allowed := range transitions[f.state] {
		if allowed == next {
			switch next {
			case StateIdle, StateValidating:
				f.progress = 0
				f.err = nil
			case StateVerifying:
				f.progress = 100
			}
			f.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, f.state, next)
}
