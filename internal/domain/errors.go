package domain

import "errors"

var (
	// ErrValidation marks permanent input errors that must never be retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks lookups that matched no row.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks conditional updates that lost to a concurrent state change.
	ErrConflict = errors.New("conflict")

	// ErrStoreUnavailable marks infrastructure failures that abort a whole
	// batch run instead of being attributed to an individual reminder.
	ErrStoreUnavailable = errors.New("store unavailable")
)
