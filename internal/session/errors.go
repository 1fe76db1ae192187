package session

import (
	"errors"
	"fmt"
)

// ErrNoActiveSession is returned by Stop when nothing is recording.
var ErrNoActiveSession = errors.New("no active session")

// ConflictError is returned when a new session is requested while another
// one is still running. Only one session may be active at a time.
type ConflictError struct {
	State State
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("a session is already active (state %s)", e.State)
}
