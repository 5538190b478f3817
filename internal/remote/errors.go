package remote

import "errors"

var (
	// ErrInvalidOptions is returned when required connector options are missing.
	ErrInvalidOptions = errors.New("remote: invalid connector options")

	// ErrRequestFailed is returned when a lifecycle request returns a failure status.
	ErrRequestFailed = errors.New("remote: request failed")
)
