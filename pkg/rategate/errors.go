package rategate

import (
	"errors"
)

var (
	// ErrInvalidMaxCount is returned by New when maxCount is not a positive number.
	ErrInvalidMaxCount = errors.New("rategate: maxCount must be greater than zero")

	// ErrInvalidResetSpan is returned by New when resetSpan is negative.
	ErrInvalidResetSpan = errors.New("rategate: resetSpan must not be negative")

	// ErrAcquireCanceled is returned when the caller's context ends before the gate admits
	// it. The returned error also wraps the context's own error, so both of these hold:
	//
	//	errors.Is(err, rategate.ErrAcquireCanceled)
	//	errors.Is(err, context.DeadlineExceeded) // or context.Canceled
	//
	// The wrapped action never runs when this error is returned.
	ErrAcquireCanceled = errors.New("rategate: acquire canceled")

	// ErrGateClosed is returned by every Run variant once Close has been called, and to
	// callers that were still waiting for admission when the gate was closed.
	ErrGateClosed = errors.New("rategate: gate is closed")
)
