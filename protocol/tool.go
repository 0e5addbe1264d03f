package protocol

import "fmt"

// ToolDescriptor describes one tool reported by a server during discovery.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// DecodeToolList extracts tool descriptors from a discovery response's data.
// An absent or empty tools entry yields an empty slice, not an error; a tools
// entry of the wrong shape is a protocol error.
func DecodeToolList(data map[string]any) ([]ToolDescriptor, error) {
	raw, ok := data["tools"]
	if !ok || raw == nil {
		return []ToolDescriptor{}, nil
	}

	entries, ok := raw.([]any)
	if !ok {
		return nil, &ProtocolError{Message: fmt.Sprintf("tools must be a list, got %T", raw)}
	}

	tools := make([]ToolDescriptor, 0, len(entries))
	for i, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, &ProtocolError{Message: fmt.Sprintf("tool entry %d must be an object, got %T", i, entry)}
		}
		name, _ := m["name"].(string)
		if name == "" {
			return nil, &ProtocolError{Message: fmt.Sprintf("tool entry %d is missing a name", i)}
		}
		desc, _ := m["description"].(string)
		schema, _ := m["input_schema"].(map[string]any)
		tools = append(tools, ToolDescriptor{Name: name, Description: desc, InputSchema: schema})
	}
	return tools, nil
}

// EncodeToolList builds the discovery response data for a tool set. Used by
// test servers and by anything implementing the server side of the contract.
func EncodeToolList(tools []ToolDescriptor) map[string]any {
	entries := make([]any, 0, len(tools))
	for _, t := range tools {
		entry := map[string]any{"name": t.Name}
		if t.Description != "" {
			entry["description"] = t.Description
		}
		if t.InputSchema != nil {
			entry["input_schema"] = t.InputSchema
		}
		entries = append(entries, entry)
	}
	return map[string]any{"tools": entries}
}
