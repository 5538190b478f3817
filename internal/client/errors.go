package client

import "errors"

var (
	// ErrClientNotFound is returned when no client exists for an identity.
	ErrClientNotFound = errors.New("client: not found")

	// ErrInvalidOptions is returned when required registry dependencies are missing.
	ErrInvalidOptions = errors.New("client: invalid registry options")

	// ErrRegistryStopped is returned when enqueueing work on a stopped registry.
	ErrRegistryStopped = errors.New("client: registry stopped")

	// ErrQueueFull is returned when the async job queue cannot accept more work.
	ErrQueueFull = errors.New("client: job queue full")
)
