package model

import "errors"

// Sentinel errors shared across the service and store layers. Handlers map
// these onto HTTP status codes in one place.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates the request payload failed validation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates the resource already exists or the update
	// conflicts with the current state.
	ErrConflict = errors.New("conflict")

	// ErrGeneration indicates the model provider failed to produce output
	// after all retry attempts were spent.
	ErrGeneration = errors.New("generation failed")

	// ErrRateLimited indicates the provider rejected the call with a
	// resource-exhausted status.
	ErrRateLimited = errors.New("rate limited")

	// ErrContentFiltered indicates the provider blocked the output for
	// safety reasons. Never retried.
	ErrContentFiltered = errors.New("content filtered")

	// ErrDependencyDegraded indicates an optional backend (session store,
	// memory index) is unavailable.
	ErrDependencyDegraded = errors.New("dependency degraded")
)
