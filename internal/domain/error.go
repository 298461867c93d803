package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrRunFailed          = errors.New("assistant run failed")
	ErrPollCancelled      = errors.New("poll cancelled")
	ErrPollInFlight       = errors.New("a poll is already in flight for this job")
	ErrInvalidExecContext = errors.New("invalid database execution context")
)

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BadResponseError is a non-2xx reply from the provider.
type BadResponseError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *BadResponseError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Body)
}

// ParseError carries the raw payload that could not be decoded.
type ParseError struct {
	Op  string
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: cannot parse response", e.Op)
	}
	return fmt.Sprintf("%s: cannot parse response: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TimeoutError is returned when the poll budget runs out while the run is
// still non-terminal.
type TimeoutError struct {
	Checks     int
	LastStatus string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("run still %q after %d status checks", e.LastStatus, e.Checks)
}

// NoResponderMessageError means the thread holds no assistant message yet.
type NoResponderMessageError struct {
	ThreadID string
}

func (e *NoResponderMessageError) Error() string {
	return fmt.Sprintf("thread %s has no assistant message", e.ThreadID)
}
