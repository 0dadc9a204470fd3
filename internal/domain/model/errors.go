package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds shared by the core and its stores. These allow
// errors.Is/As from callers regardless of the store implementation.
var (
	// ErrNotFound reports a missing entry, counter or line.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyActive reports a join while the subject already waits or is
	// being served on the same line.
	ErrAlreadyActive = errors.New("subject already active on line")
	// ErrInvalidTransition reports a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrCounterBusy reports a claim on a counter that is already serving.
	ErrCounterBusy = errors.New("counter busy")
	// ErrClaimConflict reports that the selected entry was claimed by a
	// competing caller between selection and commit.
	ErrClaimConflict = errors.New("concurrent claim conflict")
	// ErrLineEmpty reports that no waiting entry could be claimed.
	ErrLineEmpty = errors.New("line empty")
	// ErrDuplicate reports an attempt to register an id twice.
	ErrDuplicate = errors.New("already exists")
)

// AlreadyActiveError carries the id of the entry that blocks a join.
type AlreadyActiveError struct {
	ExistingID string
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("%s: existing entry %s", ErrAlreadyActive, e.ExistingID)
}

// Unwrap lets errors.Is match ErrAlreadyActive.
func (e *AlreadyActiveError) Unwrap() error { return ErrAlreadyActive }

// NotFoundError names what was missing.
func NotFoundError(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
