package session

import (
	"errors"
	"fmt"
)

// ErrCreateSession wraps any failure to allocate a new session. No local
// fallback session is ever made up in its place.
var ErrCreateSession = errors.New("could not create session")

// ErrNotFound is returned for a session that does not exist or belongs to
// another owner.
var ErrNotFound = errors.New("not found")

// ReadError reports a failed session or message read. The manager keeps its
// previous in-memory state when one occurs, so callers may simply retry.
type ReadError struct {
	SessionID string
	Err       error
}

func (e *ReadError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("session read failed: %v", e.Err)
	}
	return fmt.Sprintf("loading session %s: %v", e.SessionID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable read failure.
func IsTransient(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}
