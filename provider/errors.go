package provider

import "fmt"

// ErrorKind classifies provider transport failures for retry decisions.
type ErrorKind int

const (
	// ErrorKindOther is an unclassified provider failure.
	ErrorKindOther ErrorKind = iota
	// ErrorKindRateLimited means the caller may retry with backoff.
	ErrorKindRateLimited
	// ErrorKindAuthError is fatal for the provider session, never retried.
	ErrorKindAuthError
	// ErrorKindTransient is a retryable infrastructure failure.
	ErrorKindTransient
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindRateLimited:
		return "rate_limited"
	case ErrorKindAuthError:
		return "auth_error"
	case ErrorKindTransient:
		return "transient"
	default:
		return "other"
	}
}

// Error wraps a provider transport failure with its retry classification.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("provider %s error (%s): %v", e.Provider, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry the request (with backoff).
func (e *Error) Retryable() bool {
	return e.Kind == ErrorKindRateLimited || e.Kind == ErrorKindTransient
}

// ClassifyStatus maps an HTTP status code from a provider SDK to an ErrorKind.
func ClassifyStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return ErrorKindRateLimited
	case status == 401 || status == 403:
		return ErrorKindAuthError
	case status == 408 || status >= 500:
		return ErrorKindTransient
	default:
		return ErrorKindOther
	}
}
