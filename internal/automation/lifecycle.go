package automation

import (
	"fmt"
	"sync"

	"casework/internal/store"
)

// Lifecycle tracks one automation run through
// Pending -> Downloading (optional) -> Running -> Succeeded | Failed.
type Lifecycle struct {
	mu       sync.Mutex
	state    store.TaskState
	onChange func(from, to store.TaskState)
}

// NewLifecycle starts in Pending. onChange is called after every accepted
// transition.
func NewLifecycle(onChange func(from, to store.TaskState)) *Lifecycle {
	return &Lifecycle{state: store.TaskPending, onChange: onChange}
}

// State returns the current state.
func (l *Lifecycle) State() store.TaskState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Advance moves to the next state, rejecting transitions the machine does
// not allow.
func (l *Lifecycle) Advance(to store.TaskState) error {
	l.mu.Lock()
	from := l.state
	if !allowedTransition(from, to) {
		l.mu.Unlock()
		return fmt.Errorf("disallowed automation transition: %s -> %s", from, to)
	}
	l.state = to
	l.mu.Unlock()
	if l.onChange != nil {
		l.onChange(from, to)
	}
	return nil
}

// fail moves to Failed unless the run already reached a terminal state.
func (l *Lifecycle) fail() {
	if !l.State().IsTerminal() {
		_ = l.Advance(store.TaskFailed)
	}
}

func allowedTransition(from, to store.TaskState) bool {
	switch from {
	case store.TaskPending:
		return to == store.TaskDownloading || to == store.TaskRunning || to == store.TaskFailed
	case store.TaskDownloading:
		return to == store.TaskRunning || to == store.TaskFailed
	case store.TaskRunning:
		return to == store.TaskSucceeded || to == store.TaskFailed
	default:
		return false
	}
}
