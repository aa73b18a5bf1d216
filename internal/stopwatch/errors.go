package stopwatch

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated  = errors.New("stopwatch: not authenticated")
	ErrPersistence       = errors.New("stopwatch: persistence failure")
	ErrStaleSession      = errors.New("stopwatch: stale active session")
	ErrInvalidTransition = errors.New("stopwatch: invalid transition")
	ErrSessionNotFound   = errors.New("stopwatch: active session not found")
)

// PersistenceError wraps a gateway failure. The machine keeps its pre-call
// state whenever one is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("stopwatch: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func persistenceErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

func transitionErr(action string, from State) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, action, from)
}
