package memstack

import (
	"sync"
)

// Local maintains a pool of stacks so each worker goroutine can borrow a
// dedicated stack for the duration of a task. It replaces a thread-local
// singleton arena with explicit per-worker instances: no stack is ever
// shared, which keeps the no-locking contract intact.
//
// Borrow and Return are safe for concurrent use; a borrowed stack is not.
type Local struct {
	opts []Option
	pool sync.Pool
}

// NewLocal creates a stack pool. Every stack it hands out is configured with
// the given options.
func NewLocal(opts ...Option) *Local {
	return &Local{opts: opts}
}

// Borrow returns a stack for exclusive use by the calling goroutine.
// Pass it back with Return when the task is done.
func (l *Local) Borrow() (*Stack, error) {
	if v := l.pool.Get(); v != nil {
		return v.(*Stack), nil
	}
	return New(l.opts...)
}

// Return resets the stack and makes it available to other workers. The
// stack must have no open scopes. Closed stacks are dropped.
func (l *Local) Return(s *Stack) {
	if s == nil || s.closed {
		return
	}
	if err := s.Reset(); err != nil {
		return
	}
	l.pool.Put(s)
}

// Do runs fn with a borrowed stack, returning it when fn completes.
// The stack must not escape fn.
func (l *Local) Do(fn func(s *Stack) error) error {
	s, err := l.Borrow()
	if err != nil {
		return err
	}
	defer l.Return(s)
	return fn(s)
}
