// Package task implements the asynchronous task lifecycle manager: every
// unit of work triggered by an inbound event runs as an independently
// cancellable, independently observable task with an explicit state machine.
//
// State machine: Running (initial) -> Completed | Failed | Cancelled. Each
// terminal state is final. Cancellation is cooperative: the task's context is
// cancelled and the work is expected to stop at its next suspension point;
// a result arriving after cancellation is discarded, not delivered.
package task

import (
	"fmt"
	"time"
)

// Status describes the lifecycle position of a task.
type Status int

const (
	// StatusRunning is the initial state of an accepted task.
	StatusRunning Status = iota
	// StatusCompleted marks a task whose work returned a result.
	StatusCompleted
	// StatusFailed marks a task whose work returned an error or panicked.
	StatusFailed
	// StatusCancelled marks a task cancelled by request.
	StatusCancelled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool { return s != StatusRunning }

// Task is a point-in-time snapshot of one unit of work. Snapshots are copied
// out by value so readers never observe a partial update.
type Task struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Result    any       `json:"result,omitempty"`
	Err       string    `json:"error,omitempty"`
}

// CancelOutcome distinguishes the two non-error results of a Cancel call.
type CancelOutcome int

const (
	// OutcomeCancelled means the task was Running and is now Cancelled.
	OutcomeCancelled CancelOutcome = iota
	// OutcomeNotCancellable means the task was already terminal; the call
	// was a no-op reported as a distinct outcome, not an error.
	OutcomeNotCancellable
)

// String returns the outcome name.
func (o CancelOutcome) String() string {
	if o == OutcomeNotCancellable {
		return "not_cancellable"
	}
	return "cancelled"
}

// NotFoundError reports an operation against an unknown task ID.
type NotFoundError struct {
	TaskID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no task with id %q", e.TaskID)
}
