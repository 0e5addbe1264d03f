// Package openai provides a provider.Agent backed by the OpenAI Chat
// Completions API. It adapts the normalized Request/Response structures into
// the SDK's message format and back.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/mcpbridge/logging"
	"github.com/hupe1980/mcpbridge/provider"
)

func init() {
	provider.RegisterVariant("openai", func(opts provider.Options) (provider.Agent, error) {
		return New(func(o *Options) {
			if opts.Model != "" {
				o.Model = opts.Model
			}
			if opts.MaxTokens > 0 {
				o.MaxCompletionTokens = opts.MaxTokens
			}
			o.Temperature = opts.Temperature
			o.APIKey = opts.APIKey
			if opts.Logger != nil {
				o.Logger = opts.Logger
			}
		}), nil
	})
}

// Options configure the OpenAI agent. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	Logger              logging.Logger
}

// Agent wraps the OpenAI Chat Completions API behind the generic
// provider.Agent interface.
type Agent struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI agent using the official client.
func New(optFns ...func(o *Options)) *Agent {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := openai.NewClient(clientOpts...)
	return &Agent{client: &client, opts: opts}
}

// NewFromClient creates a new OpenAI agent from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{client: client, opts: opts}
}

// Complete adapts one Chat Completions call (with tool calling) into a
// provider.Response.
func (a *Agent) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	params := a.buildParams(req)

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &provider.Error{
			Kind:     provider.ErrorKindOther,
			Provider: "openai",
			Err:      errors.New("no choices returned"),
		}
	}

	choice := resp.Choices[0]
	out := &provider.Response{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	if resp.Usage.TotalTokens > 0 {
		out.Usage = &provider.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
	}

	for _, call := range choice.Message.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(call.Function.Arguments), &args)
		}
		out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}

	a.opts.Logger.Debug("openai completion", "model", a.opts.Model, "finish_reason", out.FinishReason, "tool_calls", len(out.ToolCalls))

	return out, nil
}

// buildParams assembles the request parameters including tool definitions.
func (a *Agent) buildParams(req provider.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               a.opts.Model,
		Temperature:         openai.Float(a.opts.Temperature),
		MaxCompletionTokens: openai.Int(a.opts.MaxCompletionTokens),
	}

	if len(req.Tools) == 0 {
		return params
	}

	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tool := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  tool.InputSchema,
			},
		}
	}
	params.Tools = tools

	return params
}

// buildMessages converts normalized messages into chat messages. Assistant
// turns carrying tool calls become assistant messages with tool_calls; tool
// result turns become tool messages keyed by call ID.
func buildMessages(req provider.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion

	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Text))
		case "assistant":
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Text))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
			for i, call := range msg.ToolCalls {
				args, err := json.Marshal(call.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   call.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: string(args),
					},
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case "tool":
			for _, result := range msg.ToolResults {
				messages = append(messages, openai.ToolMessage(result.Content, result.CallID))
			}
		default: // user and unknown roles
			if msg.Text != "" {
				messages = append(messages, openai.UserMessage(msg.Text))
			}
		}
	}

	return messages
}

// classify maps SDK failures to the provider error taxonomy.
func classify(err error) error {
	kind := provider.ErrorKindOther

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind = provider.ClassifyStatus(apiErr.StatusCode)
	} else if errors.Is(err, context.DeadlineExceeded) {
		kind = provider.ErrorKindTransient
	}

	return &provider.Error{
		Kind:     kind,
		Provider: "openai",
		Err:      fmt.Errorf("openai api error: %w", err),
	}
}

// Info returns metadata describing this OpenAI agent implementation.
func (a *Agent) Info() provider.Info {
	return provider.Info{
		Name:          a.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
