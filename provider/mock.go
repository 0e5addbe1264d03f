package provider

import (
	"context"
	"fmt"
	"sync"
)

func init() {
	RegisterVariant("mock", func(opts Options) (Agent, error) {
		name := opts.Model
		if name == "" {
			name = "mock-model"
		}
		return NewMockAgent(name), nil
	})
}

// MockAgent is a lightweight in-memory Agent useful for tests and examples.
// Responses are scripted per input prompt; tool call scripts fire once and
// then fall through to text, which makes multi-round tool loops easy to
// exercise deterministically.
type MockAgent struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	toolCalls map[string][]ToolCall
	requests  []Request
}

// NewMockAgent constructs a MockAgent with tool support enabled.
func NewMockAgent(name string) *MockAgent {
	return &MockAgent{
		info: Info{
			Name:          name,
			Provider:      "mock",
			SupportsTools: true,
		},
		responses: make(map[string]string),
		toolCalls: make(map[string][]ToolCall),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockAgent) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// AddToolCalls registers tool calls to emit (once) when the given prompt is
// the last user text.
func (m *MockAgent) AddToolCalls(prompt string, calls ...ToolCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls[prompt] = calls
}

// Requests returns every request seen, for assertions.
func (m *MockAgent) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Complete implements Agent with scripted responses.
func (m *MockAgent) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	prompt := lastUserText(req.Messages)

	if calls, ok := m.toolCalls[prompt]; ok {
		delete(m.toolCalls, prompt)
		return &Response{ToolCalls: calls, FinishReason: "tool_calls"}, nil
	}

	text, ok := m.responses[prompt]
	if !ok {
		text = fmt.Sprintf("Mock response to: %s", prompt)
	}
	return &Response{Text: text, FinishReason: "stop"}, nil
}

// Info implements the Agent interface.
func (m *MockAgent) Info() Info { return m.info }

func lastUserText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Text
		}
	}
	return ""
}
