// Package transport implements the concrete channels used to exchange
// protocol messages with backend tool servers. Two variants exist: a
// subprocess pipe transport (stdio) framing one JSON message per line, and an
// HTTP transport posting each request to a configured endpoint. Both satisfy
// the same capability set so the connection manager stays transport agnostic.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/mcpbridge/logging"
	"github.com/hupe1980/mcpbridge/protocol"
)

// DefaultCallTimeout bounds a single send-and-await exchange when the caller
// context carries no earlier deadline.
const DefaultCallTimeout = 30 * time.Second

// Transport is one concrete channel to one backend tool server.
//
// Implementations must be safe for concurrent use; requests issued
// sequentially on one transport are delivered in submission order.
type Transport interface {
	// Connect establishes the channel. Idempotent when already connected.
	Connect(ctx context.Context) error

	// Close releases the channel's resources. Safe to call when not connected.
	Close() error

	// IsConnected reports whether the channel is usable.
	IsConnected() bool

	// Send delivers a request and awaits its response, honoring the per-call
	// timeout and the caller's context.
	Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// Options configure transport construction.
type Options struct {
	// CallTimeout bounds each Send exchange. Defaults to DefaultCallTimeout.
	CallTimeout time.Duration

	// Logger receives transport lifecycle and framing diagnostics.
	Logger logging.Logger
}

func defaultOptions() Options {
	return Options{
		CallTimeout: DefaultCallTimeout,
		Logger:      logging.NoOpLogger{},
	}
}

// Error reports a transport-level failure: broken pipe, process exit,
// request timeout, or an HTTP-level fault.
type Error struct {
	Op      string // "connect", "send", "receive"
	Timeout bool   // true when the failure was a per-call timeout
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transport %s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }
