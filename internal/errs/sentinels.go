// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/service layers.
var (
	// ErrNotFound indicates the requested credential does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an ID collision on insert.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates client-correctable input (missing field, bad token).
	ErrValidation = errors.New("validation failed")

	// ErrIllegalTransition indicates a connection state machine rule violation.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrBlocked indicates the activation gate rejected a new connect attempt.
	ErrBlocked = errors.New("credential blocked")

	// ErrInvariantViolation indicates the store rejected a mutation that would
	// leave a record inconsistent.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrUnauthorized indicates a missing or invalid operator token.
	ErrUnauthorized = errors.New("unauthorized")
)
