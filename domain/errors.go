package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that no task matched the requested id.
	ErrNotFound = errors.New("task not found")

	// ErrStorageUnavailable reports that the backing store could not
	// complete an operation in time.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError rejects a mutation before any storage call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
