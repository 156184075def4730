// Package clients is the outbound HTTP layer for the remote quote feed.
// Callers translate these errors into domain errors; see package acl.
package clients

import "errors"

var (
	// ErrCircuitOpen means the breaker refused the call without sending it.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrMaxRetriesExceeded wraps the last failure once every attempt is spent.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
