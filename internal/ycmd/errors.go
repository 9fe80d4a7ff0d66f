package ycmd

import (
	"errors"
	"strconv"
)

var (
	// ErrTimeout is the typed timeout for both the wait-for-RUNNING window
	// and an HTTP deadline. Callers treat it as "try again later".
	ErrTimeout = errors.New("ycmd: timed out")

	// ErrNotRunning is returned when a request is attempted against a
	// server that has no live backend process.
	ErrNotRunning = errors.New("ycmd: server is not running")

	// ErrStopping is returned when a request is attempted against a server
	// that is already shutting down.
	ErrStopping = errors.New("ycmd: server is shutting down")

	// ErrHMACMismatch is returned when a response fails signature
	// verification. The response body is dropped, never surfaced.
	ErrHMACMismatch = errors.New("ycmd: response hmac mismatch")
)

// StatusError is the protocol error for a non-2xx backend response. The body
// is retained because the backend reports errors as JSON payloads.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return "ycmd: unexpected response status " + strconv.Itoa(e.Code)
}
