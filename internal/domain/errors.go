package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad marks a failed snapshot refresh.
	ErrLoad = errors.New("loading sessions failed")
	// ErrWrite marks a failed create, update or delete.
	ErrWrite = errors.New("writing session failed")
	// ErrMalformedRecord marks a stored document that is not a session
	// object. Missing fields inside an object are defaulted instead.
	ErrMalformedRecord = errors.New("malformed session record")
	// ErrNotFound means a referenced document does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrNotAuthenticated means no user session is present.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// WriteError describes a failed write against the document store.
type WriteError struct {
	Op  string // create, update or delete
	ID  string
	Err error
}

func (e *WriteError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s session: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s session %s: %v", e.Op, e.ID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrWrite) match any WriteError.
func (e *WriteError) Is(target error) bool { return target == ErrWrite }
