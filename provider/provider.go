// Package provider defines the provider-agnostic abstractions for driving
// AI completions with tool calling.
//
// Core goals:
//   - Abstract multiple completion APIs behind one Agent interface
//   - Normalize tool / function call representation across vendors
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockAgent)
//
// Concrete variants (anthropic, openai) register themselves under a provider
// name; Create builds the variant for a name and reports unrecognized names
// as UnsupportedProviderError. Translation between the unified tool schema
// and each vendor's native function-calling representation is lossless for
// tool name, parameter schema and argument values; vendor extensions beyond
// that are dropped, not fabricated.
package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/mcpbridge/logging"
)

// Tool declaratively exposes a callable backend tool to the model. The
// InputSchema is a JSON Schema object (draft agnostic, minimal subset
// expected).
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall represents a function call request surfaced by a provider.
// Unified across vendors so downstream logic does not need per-provider
// branching.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult carries the outcome of a tool invocation back to the provider
// on the follow-up completion.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// Message is one turn of the provider-agnostic conversation state.
type Message struct {
	Role        string       `json:"role"` // "system", "user", "assistant", "tool"
	Text        string       `json:"text,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`   // assistant turns requesting tools
	ToolResults []ToolResult `json:"tool_results,omitempty"` // tool turns answering calls
}

// Request captures the normalized completion input.
type Request struct {
	Instructions string    `json:"instructions,omitempty"`
	Messages     []Message `json:"messages"`
	Tools        []Tool    `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the provider's answer to one completion request: final text,
// zero or more tool call requests, or both.
type Response struct {
	Text         string      `json:"text,omitempty"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// HasToolCalls reports whether the provider requested tool invocations.
func (r *Response) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// AssistantMessage converts the response into an assistant conversation turn
// for the follow-up completion after tool execution.
func (r *Response) AssistantMessage() Message {
	return Message{Role: "assistant", Text: r.Text, ToolCalls: r.ToolCalls}
}

// Info contains metadata about a provider agent implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Agent is the minimal interface required to drive completions against one
// provider. Variants are interchangeable at runtime; switching providers
// mid-session means constructing a new Agent bound to the same conversation
// state.
type Agent interface {
	// Complete sends the conversation plus the unified tool schema and
	// returns one response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the agent implementation.
	Info() Info
}

// Options configure agent construction across all variants.
type Options struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	APIKey      string
	Logger      logging.Logger
}

func defaultOptions() Options {
	return Options{
		MaxTokens:   4096,
		Temperature: 0.7,
		Logger:      logging.NoOpLogger{},
	}
}

// Factory builds an Agent variant from resolved options.
type Factory func(opts Options) (Agent, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// RegisterVariant makes an agent variant available under a provider name.
// Variant packages call this from init; importing a variant package is what
// enables its name.
func RegisterVariant(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[strings.ToLower(name)] = factory
}

// Variants returns the registered provider names, sorted.
func Variants() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create constructs the agent variant registered under the given provider
// name. Fails with UnsupportedProviderError for an unrecognized name.
func Create(name string, optFns ...func(o *Options)) (Agent, error) {
	factoriesMu.RLock()
	factory, ok := factories[strings.ToLower(name)]
	factoriesMu.RUnlock()

	if !ok {
		return nil, &UnsupportedProviderError{Provider: name, Known: Variants()}
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return factory(opts)
}

// UnsupportedProviderError reports a Create call for an unregistered name.
type UnsupportedProviderError struct {
	Provider string
	Known    []string
}

// Error implements the error interface.
func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider: %q (known: %s)", e.Provider, strings.Join(e.Known, ", "))
}
