package modulestore

import "errors"

var (
	// ErrModuleNotFound is returned when a module ID is not in the store.
	ErrModuleNotFound = errors.New("modulestore: module not found")

	// ErrInvalidEvent is returned when a module event payload cannot be decoded.
	ErrInvalidEvent = errors.New("modulestore: invalid event payload")
)
