package server

import "fmt"

// DuplicateServerError reports a Register call for a name that already exists
// when replacement was not requested.
type DuplicateServerError struct {
	Server string
}

// Error implements the error interface.
func (e *DuplicateServerError) Error() string {
	return fmt.Sprintf("server %q is already registered", e.Server)
}

// UnknownServerError reports an operation against an unregistered server name.
type UnknownServerError struct {
	Server string
}

// Error implements the error interface.
func (e *UnknownServerError) Error() string {
	return fmt.Sprintf("no server registered with name %q", e.Server)
}

// UnknownToolError reports an invocation of a tool absent from the target
// server's registry.
type UnknownToolError struct {
	Server string
	Tool   string
}

// Error implements the error interface.
func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("server %q has no tool %q", e.Server, e.Tool)
}

// ConnectionError reports a failed connection attempt, carrying the
// underlying cause.
type ConnectionError struct {
	Server string
	Err    error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to server %q: %v", e.Server, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ConnectionError) Unwrap() error { return e.Err }
