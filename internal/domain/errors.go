package domain

import "errors"

// Sentinel errors for the two failure families callers discriminate on.
// Wrap with fmt.Errorf("...: %w", ErrValidation) and test with errors.Is.
var (
	// ErrValidation marks rejected inputs: inverted intervals, closing an
	// event before it started, setting a closed event as current.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState marks operations attempted in the wrong lifecycle
	// state: closing an already-closed event, reading history before it
	// has been loaded, setting history twice.
	ErrInvalidState = errors.New("invalid state")
)
