// Package anthropic provides a provider.Agent backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/mcpbridge/logging"
	"github.com/hupe1980/mcpbridge/provider"
)

func init() {
	provider.RegisterVariant("anthropic", func(opts provider.Options) (provider.Agent, error) {
		return New(func(o *Options) {
			if opts.Model != "" {
				o.Model = anthropic.Model(opts.Model)
			}
			if opts.MaxTokens > 0 {
				o.MaxTokens = opts.MaxTokens
			}
			o.Temperature = opts.Temperature
			o.APIKey = opts.APIKey
			if opts.Logger != nil {
				o.Logger = opts.Logger
			}
		}), nil
	})
}

// Options configure the Anthropic agent (model id, max tokens, temperature,
// API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	Logger      logging.Logger
}

// Agent wraps the Anthropic Messages API behind the generic provider.Agent
// interface.
type Agent struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic agent using the official client.
func New(optFns ...func(o *Options)) *Agent {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Agent{
		client: &client,
		opts:   opts,
	}
}

// NewFromClient creates a new Anthropic agent from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Agent{
		client: client,
		opts:   opts,
	}
}

// Complete adapts one Messages API call (with tool calling) into a
// provider.Response.
func (a *Agent) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       a.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   a.opts.MaxTokens,
		Temperature: anthropic.Float(a.opts.Temperature),
	}

	if systemBlocks := buildSystemBlocks(req); len(systemBlocks) > 0 {
		params.System = systemBlocks
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	out := &provider.Response{FinishReason: "stop"}
	if resp.StopReason != "" {
		out.FinishReason = string(resp.StopReason)
	}
	if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		out.Usage = &provider.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		}
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := map[string]any{}
			if toolBlock.Input != nil {
				raw, err := json.Marshal(toolBlock.Input)
				if err == nil {
					_ = json.Unmarshal(raw, &args)
				}
			}
			out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
		}
	}

	a.opts.Logger.Debug("anthropic completion", "model", string(a.opts.Model), "finish_reason", out.FinishReason, "tool_calls", len(out.ToolCalls))

	return out, nil
}

// buildMessages converts normalized messages to the Anthropic message format.
// System turns are handled separately; tool result turns become user messages
// carrying tool_result blocks, as the Messages API expects.
func buildMessages(messages []provider.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			continue
		case "assistant":
			var content []anthropic.ContentBlockParamUnion
			if msg.Text != "" {
				content = append(content, anthropic.NewTextBlock(msg.Text))
			}
			for _, call := range msg.ToolCalls {
				content = append(content, anthropic.NewToolUseBlock(call.ID, call.Arguments, call.Name))
			}
			if len(content) > 0 {
				out = append(out, anthropic.NewAssistantMessage(content...))
			}
		case "tool":
			var content []anthropic.ContentBlockParamUnion
			for _, result := range msg.ToolResults {
				content = append(content, anthropic.NewToolResultBlock(result.CallID, result.Content, result.IsError))
			}
			if len(content) > 0 {
				out = append(out, anthropic.NewUserMessage(content...))
			}
		default: // user and unknown roles
			if msg.Text != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))
			}
		}
	}

	return out
}

// buildSystemBlocks merges the request instructions and any system messages.
func buildSystemBlocks(req provider.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam

	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, msg := range req.Messages {
		if msg.Role == "system" && msg.Text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Text})
		}
	}

	return blocks
}

// buildTools converts the unified tool schema to the Anthropic tool format.
func buildTools(tools []provider.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if tool.InputSchema != nil {
			if properties, exists := tool.InputSchema["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := tool.InputSchema["required"]; exists {
				inputSchema.Required = requiredStrings(required)
			}
		}

		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
	}

	return out
}

func requiredStrings(required any) []string {
	switch v := required.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// classify maps SDK failures to the provider error taxonomy.
func classify(err error) error {
	kind := provider.ErrorKindOther

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		kind = provider.ClassifyStatus(apiErr.StatusCode)
	} else if errors.Is(err, context.DeadlineExceeded) {
		kind = provider.ErrorKindTransient
	}

	return &provider.Error{
		Kind:     kind,
		Provider: "anthropic",
		Err:      fmt.Errorf("anthropic api error: %w", err),
	}
}

// Info returns metadata describing this Anthropic agent implementation.
func (a *Agent) Info() provider.Info {
	return provider.Info{
		Name:          string(a.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
