// Package router dispatches inbound platform events to registered handlers.
// Events carry a routing key derived from their shape: a command name for
// command events, an action ID for interactive events, the event type for
// everything else. Multiple handlers may be registered per key; dispatch
// runs them in registration order and isolates each handler's failure.
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/mcpbridge/logging"
)

// Event type names with dedicated routing-key extraction.
const (
	EventTypeCommand      = "command"
	EventTypeBlockActions = "block_actions"
	EventTypeInteractive  = "interactive"
)

// Event is a normalized inbound event.
type Event struct {
	// Type classifies the event, for example "message" or "command".
	Type string `json:"type"`

	// Command is the command name for command events.
	Command string `json:"command,omitempty"`

	// ActionID identifies the triggered control for interactive events.
	ActionID string `json:"action_id,omitempty"`

	// BotID is set when the event was produced by a bot identity.
	BotID string `json:"bot_id,omitempty"`

	// Body carries the raw event payload.
	Body map[string]any `json:"body,omitempty"`
}

// RoutingKey derives the dispatch key for the event. Command events route by
// command name and interactive events by action ID; all other events route
// by type. An event missing its key data is malformed.
func (e Event) RoutingKey() (string, error) {
	switch e.Type {
	case EventTypeCommand:
		if e.Command == "" {
			return "", &MalformedEventError{Reason: "command event without command name"}
		}

		return e.Command, nil
	case EventTypeBlockActions, EventTypeInteractive:
		if e.ActionID == "" {
			return "", &MalformedEventError{Reason: fmt.Sprintf("%s event without action id", e.Type)}
		}

		return e.ActionID, nil
	default:
		if e.Type == "" {
			return "", &MalformedEventError{Reason: "event without type"}
		}

		return e.Type, nil
	}
}

// MalformedEventError reports an event whose routing key cannot be derived.
type MalformedEventError struct {
	Reason string
}

// Error implements the error interface.
func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event: %s", e.Reason)
}

// Handler processes one event occurrence.
type Handler func(ctx context.Context, ev Event) (any, error)

// Result is the outcome of a single handler invocation.
type Result struct {
	// Key is the routing key the handler was registered under.
	Key string

	// Index is the handler's registration position for that key.
	Index int

	// Value is the handler's return value on success.
	Value any

	// Err is the handler's failure, including recovered panics.
	Err error
}

// Dispatch is the aggregate outcome of routing one event.
type Dispatch struct {
	// Key is the event's routing key.
	Key string

	// Unhandled is true when no handler was registered for the key.
	Unhandled bool

	// Results holds per-handler outcomes in registration order.
	Results []Result
}

// Options configures a Router.
type Options struct {
	// Filter, when set, is consulted before routing; events it rejects are
	// dropped with an Unhandled dispatch. Used to skip bot-authored
	// messages so the client never answers itself.
	Filter func(ev Event) bool

	Logger logging.Logger
}

// Router maps routing keys to handler chains. Safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	filter   func(ev Event) bool
	logger   logging.Logger
}

// New creates a router.
func New(optFns ...func(o *Options)) *Router {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Router{
		handlers: make(map[string][]Handler),
		filter:   opts.Filter,
		logger:   opts.Logger,
	}
}

// WithFilter sets the pre-routing event filter.
func WithFilter(filter func(ev Event) bool) func(o *Options) {
	return func(o *Options) { o.Filter = filter }
}

// WithLogger sets the router logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// IgnoreBotMessages is a filter that drops events carrying a bot identity.
func IgnoreBotMessages(ev Event) bool {
	return ev.BotID == ""
}

// Register appends a handler for the given routing key. Handlers registered
// under the same key run in registration order.
func (r *Router) Register(key string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[key] = append(r.handlers[key], h)
}

// Keys returns the registered routing keys.
func (r *Router) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.handlers))
	for key := range r.handlers {
		keys = append(keys, key)
	}

	return keys
}

// Dispatch routes an event to every handler registered for its key. Each
// handler's error or recovered panic is captured in its Result entry without
// stopping the remaining handlers. An event with no registered handlers
// yields an Unhandled dispatch, not an error.
func (r *Router) Dispatch(ctx context.Context, ev Event) (*Dispatch, error) {
	key, err := ev.RoutingKey()
	if err != nil {
		return nil, err
	}

	if r.filter != nil && !r.filter(ev) {
		r.logger.Debug("event dropped by filter", "key", key)

		return &Dispatch{Key: key, Unhandled: true}, nil
	}

	r.mu.RLock()
	chain := r.handlers[key]
	r.mu.RUnlock()

	if len(chain) == 0 {
		r.logger.Debug("no handler for event", "key", key)

		return &Dispatch{Key: key, Unhandled: true}, nil
	}

	dispatch := &Dispatch{
		Key:     key,
		Results: make([]Result, 0, len(chain)),
	}

	for i, h := range chain {
		value, err := r.invoke(ctx, h, ev)
		if err != nil {
			r.logger.Warn("event handler failed", "key", key, "index", i, "error", err)
		}

		dispatch.Results = append(dispatch.Results, Result{
			Key:   key,
			Index: i,
			Value: value,
			Err:   err,
		})
	}

	return dispatch, nil
}

// invoke runs a handler with panic containment.
func (r *Router) invoke(ctx context.Context, h Handler, ev Event) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()

	return h(ctx, ev)
}
