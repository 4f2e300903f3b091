package rethinkdb

import (
	"fmt"

	"github.com/gravitational/trace"
)

// ErrorCode classifies a DbError the way the server's response-type
// tag does.
type ErrorCode int

const (
	// ErrBrokenClient means the server considered the request itself
	// malformed in a way that indicates a driver bug (CLIENT_ERROR).
	ErrBrokenClient ErrorCode = iota
	// ErrBadQuery means the query failed to compile (COMPILE_ERROR).
	ErrBadQuery
	// ErrRuntime means the query compiled but failed during
	// execution (RUNTIME_ERROR).
	ErrRuntime
	// ErrUnexpectedResponse means the response didn't match any
	// known shape: unknown type tag, missing fields, or a
	// SUCCESS_ATOM whose result array didn't have exactly one
	// element.
	ErrUnexpectedResponse
)

func (c ErrorCode) String() string {
	switch c {
	case ErrBrokenClient:
		return "ClientError"
	case ErrBadQuery:
		return "CompileError"
	case ErrRuntime:
		return "RuntimeError"
	case ErrUnexpectedResponse:
		return "UnexpectedResponse"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// ConnectionError reports a transport-lifecycle failure: DNS, dial,
// handshake mismatch, a send failure, or an EOF mid-frame. Observing
// one always means the Connection is now poisoned.
type ConnectionError struct {
	Message string
	Cause   error
}

func newConnectionError(cause error, format string, args ...interface{}) *ConnectionError {
	msg := fmt.Sprintf(format, args...)
	var wrapped error
	if cause != nil {
		wrapped = trace.Wrap(cause, "%s", msg)
	} else {
		wrapped = trace.BadParameter("%s", msg)
	}
	return &ConnectionError{Message: msg, Cause: wrapped}
}

func (e *ConnectionError) Error() string { return "ConnectionError: " + e.Message }
func (e *ConnectionError) Unwrap() error { return e.Cause }

// ReadError wraps an unexpected failure from the reader's decode path
// (malformed JSON on an otherwise well-framed response). Per spec,
// this is currently fatal to the whole connection, not just the
// affected token — see DESIGN.md for the rationale.
type ReadError struct {
	Cause error
}

func newReadError(cause error) *ReadError {
	return &ReadError{Cause: trace.Wrap(cause, "decode response payload")}
}

func (e *ReadError) Error() string { return "ReadError: " + e.Cause.Error() }
func (e *ReadError) Unwrap() error { return e.Cause }

// DbError is a server-reported failure scoped to a single token. It
// never affects other in-flight queries on the same Connection.
type DbError struct {
	Code      ErrorCode
	Term      Term
	Message   string
	Backtrace []BacktraceFrame
}

func (e *DbError) Error() string {
	return RenderDbError(e)
}
