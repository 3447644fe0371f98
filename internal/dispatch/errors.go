package dispatch

import "github.com/pkg/errors"

// Error taxonomy for the call lifecycle. Handlers translate these to HTTP
// status codes with errors.Is; everything else surfaces as an internal error.
var (
	// ErrInvalidInput marks malformed or missing required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks an unknown call or personnel id.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks an authorization rejection.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable marks a transiently unreachable store. On the write path
	// the caller must not assume the write failed; it may have landed.
	ErrUnavailable = errors.New("unavailable")
)
