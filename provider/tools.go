package provider

import "github.com/hupe1980/mcpbridge/protocol"

// ToolsFromDescriptors converts discovered backend tool descriptors into the
// unified tool schema handed to providers. Name, description and parameter
// schema are carried through unchanged.
func ToolsFromDescriptors(descriptors []protocol.ToolDescriptor) []Tool {
	tools := make([]Tool, 0, len(descriptors))
	for _, d := range descriptors {
		schema := d.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: schema,
		})
	}
	return tools
}
