package alphagsm

import (
	"errors"
	"fmt"
)

// Common errors returned by multi-server runs
var (
	// ErrNoTargets indicates a run without any server
	ErrNoTargets = errors.New("alphagsm: no servers given")

	// ErrInvalidTarget indicates a malformed SERVER or USER/SERVER argument
	ErrInvalidTarget = errors.New("alphagsm: invalid target")

	// ErrInteractive indicates an interactive command given several servers
	ErrInteractive = errors.New("alphagsm: command needs a terminal and a single server")

	// ErrNotReady indicates a server that finished before reporting ready
	ErrNotReady = errors.New("alphagsm: server finished before it was ready")
)

// OpError represents a failed command on one server
type OpError struct {
	// Op is the command that failed
	Op Command
	// Server is the target the command ran on
	Server string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *OpError) Error() string {
	return fmt.Sprintf("alphagsm %s %q: %v", e.Op, e.Server, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpError) Unwrap() error {
	return e.Err
}

// ExitError reports a per-server child that exited unsuccessfully
type ExitError struct {
	// Server is the target the child ran for
	Server string
	// Code is the exit status, or minus the signal number
	Code int
}

// Error returns a formatted error message
func (e *ExitError) Error() string {
	if e.Code < 0 {
		return fmt.Sprintf("%s killed by signal %d", e.Server, -e.Code)
	}
	return fmt.Sprintf("%s exited with status %d", e.Server, e.Code)
}

// MultiError aggregates errors from several servers
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred", len(m.Errors))
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}
