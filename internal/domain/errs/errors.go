// Package errs holds the error taxonomy shared by every use case. The HTTP
// layer maps these to status codes in one place.
package errs

import "errors"

var (
	// ErrValidation marks missing or malformed input. Not retried.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized means no usable identity was presented.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFoundOrForbidden is returned both for missing rows and rows owned
	// by someone else so callers cannot discover ids.
	ErrNotFoundOrForbidden = errors.New("not found")

	// ErrInvalidState rejects an operation the entity's current state does not allow.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict is a lost optimistic-concurrency race.
	ErrConflict = errors.New("concurrent modification")

	// ErrUnavailable marks an optional integration that was not configured.
	ErrUnavailable = errors.New("unavailable")
)
