// Package bridge wires the server manager, a provider agent, the task
// executor, and the event router into one client that turns a natural
// language query into a completed answer, running tool calls against
// connected servers along the way.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/mcpbridge/internal/util"
	"github.com/hupe1980/mcpbridge/logging"
	"github.com/hupe1980/mcpbridge/provider"
	"github.com/hupe1980/mcpbridge/router"
	"github.com/hupe1980/mcpbridge/server"
	"github.com/hupe1980/mcpbridge/task"
	"github.com/hupe1980/mcpbridge/transport"
)

// toolIndicators are query substrings that suggest the user wants an action
// performed rather than a plain answer.
var toolIndicators = []string{
	"use", "run", "execute", "call", "fetch", "search",
	"look up", "lookup", "calculate", "compute", "list", "get",
}

// Options configures a Client.
type Options struct {
	// Instructions is the system prompt sent with every completion.
	Instructions string

	// MaxToolRounds caps the complete/invoke cycles per query.
	MaxToolRounds int

	Executor *task.Executor
	Router   *router.Router
	Logger   logging.Logger
}

// Client orchestrates queries across the connected servers and the provider
// agent.
type Client struct {
	manager  *server.Manager
	agent    provider.Agent
	executor *task.Executor
	router   *router.Router
	opts     Options
}

// New creates a client around an existing server manager and provider agent.
// The default router answers "message" events by formulating a query from the
// event body and running it asynchronously.
func New(manager *server.Manager, agent provider.Agent, optFns ...func(o *Options)) *Client {
	opts := Options{
		MaxToolRounds: 10,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Executor == nil {
		opts.Executor = task.NewExecutor(task.WithLogger(opts.Logger))
	}

	if opts.Router == nil {
		opts.Router = router.New(
			router.WithFilter(router.IgnoreBotMessages),
			router.WithLogger(opts.Logger),
		)
	}

	c := &Client{
		manager:  manager,
		agent:    agent,
		executor: opts.Executor,
		router:   opts.Router,
		opts:     opts,
	}

	c.router.Register("message", c.handleMessage)

	return c
}

// WithInstructions sets the system prompt.
func WithInstructions(instructions string) func(o *Options) {
	return func(o *Options) { o.Instructions = instructions }
}

// WithMaxToolRounds caps the tool loop.
func WithMaxToolRounds(n int) func(o *Options) {
	return func(o *Options) { o.MaxToolRounds = n }
}

// WithExecutor sets the task executor.
func WithExecutor(e *task.Executor) func(o *Options) {
	return func(o *Options) { o.Executor = e }
}

// WithRouter sets the event router.
func WithRouter(r *router.Router) func(o *Options) {
	return func(o *Options) { o.Router = r }
}

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// Executor exposes the task executor for status and cancellation.
func (c *Client) Executor() *task.Executor { return c.executor }

// Router exposes the event router for additional handler registration.
func (c *Client) Router() *router.Router { return c.router }

// ProcessQuery answers a query. With an explicit server name the query runs
// against that server's tools; with an empty name a server is picked by
// keyword match, and queries that do not look like tool use are completed
// without tools at all.
func (c *Client) ProcessQuery(ctx context.Context, query, serverName string) (string, error) {
	if serverName == "" {
		serverName = c.selectServer(query)
	} else if _, err := c.manager.StateOf(serverName); err != nil {
		return "", err
	}

	if serverName == "" {
		c.opts.Logger.Debug("completing without tools", "query", query)

		return c.complete(ctx, query, nil, "")
	}

	if state, err := c.manager.StateOf(serverName); err == nil && state != server.StateReady {
		if err := c.manager.Connect(ctx, serverName); err != nil {
			return "", err
		}
	}

	descriptors, err := c.manager.Tools(serverName)
	if err != nil {
		return "", err
	}

	return c.complete(ctx, query, provider.ToolsFromDescriptors(descriptors), serverName)
}

// ProcessQueryAsync runs ProcessQuery as a background task and returns the
// task ID immediately.
func (c *Client) ProcessQueryAsync(ctx context.Context, query, serverName string) string {
	return c.executor.Execute(ctx, func(taskCtx context.Context) (any, error) {
		return c.ProcessQuery(taskCtx, query, serverName)
	})
}

// HandleEvent routes an inbound event through the router.
func (c *Client) HandleEvent(ctx context.Context, ev router.Event) (*router.Dispatch, error) {
	return c.router.Dispatch(ctx, ev)
}

// handleMessage is the default "message" handler: it extracts the query text
// and an optional server hint from the body and starts an async query.
func (c *Client) handleMessage(ctx context.Context, ev router.Event) (any, error) {
	text, _ := ev.Body["text"].(string)
	if strings.TrimSpace(text) == "" {
		return nil, &router.MalformedEventError{Reason: "message event without text"}
	}

	serverName, _ := ev.Body["server"].(string)

	return c.ProcessQueryAsync(ctx, text, serverName), nil
}

// complete drives the completion loop. With tools, provider tool calls are
// invoked on the chosen server and fed back until the provider answers in
// plain text or the round cap is hit.
func (c *Client) complete(ctx context.Context, query string, tools []provider.Tool, serverName string) (string, error) {
	messages := []provider.Message{{Role: "user", Text: query}}

	rounds := c.opts.MaxToolRounds
	if rounds <= 0 {
		rounds = 1
	}

	for round := 0; round < rounds; round++ {
		resp, err := c.agent.Complete(ctx, provider.Request{
			Instructions: c.opts.Instructions,
			Messages:     messages,
			Tools:        tools,
		})
		if err != nil {
			return "", err
		}

		if !resp.HasToolCalls() {
			return resp.Text, nil
		}

		messages = append(messages, resp.AssistantMessage())

		toolTurn := provider.Message{Role: "tool"}

		for _, call := range resp.ToolCalls {
			c.opts.Logger.Info("invoking tool", "server", serverName, "tool", call.Name)

			toolTurn.ToolResults = append(toolTurn.ToolResults, c.invokeTool(ctx, serverName, call))
		}

		messages = append(messages, toolTurn)
	}

	return "", &ToolLoopError{Rounds: rounds}
}

// invokeTool runs one tool call and folds failures into an error-flagged
// result so the provider can react to them in conversation.
func (c *Client) invokeTool(ctx context.Context, serverName string, call provider.ToolCall) provider.ToolResult {
	data, err := c.manager.Invoke(ctx, serverName, call.Name, call.Arguments)
	if err != nil {
		c.opts.Logger.Warn("tool call failed", "server", serverName, "tool", call.Name, "error", err)

		return provider.ToolResult{
			CallID:  call.ID,
			Content: FormatError(err),
			IsError: true,
		}
	}

	content, err := json.Marshal(data)
	if err != nil {
		return provider.ToolResult{
			CallID:  call.ID,
			Content: fmt.Sprintf("unencodable tool result: %v", err),
			IsError: true,
		}
	}

	return provider.ToolResult{CallID: call.ID, Content: string(content)}
}

// selectServer picks the connected server whose keywords best match the
// query. Queries with no keyword hit and no tool indicator get no server at
// all; otherwise the first connected server is the fallback.
func (c *Client) selectServer(query string) string {
	lowered := strings.ToLower(query)

	var (
		best      string
		bestScore int
		fallback  string
	)

	for name, keywords := range c.manager.Keywords() {
		state, err := c.manager.StateOf(name)
		if err != nil || state != server.StateReady {
			continue
		}

		if fallback == "" {
			fallback = name
		}

		score := 0

		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				score++
			}
		}

		if score > bestScore {
			best, bestScore = name, score
		}
	}

	if best != "" {
		return best
	}

	if fallback != "" && c.RequiresTools(query) {
		return fallback
	}

	return ""
}

// RequiresTools reports whether the query looks like it needs a tool rather
// than a plain completion.
func (c *Client) RequiresTools(query string) bool {
	lowered := strings.ToLower(query)

	for _, indicator := range toolIndicators {
		if strings.Contains(lowered, indicator) {
			return true
		}
	}

	for _, keywords := range c.manager.Keywords() {
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				return true
			}
		}
	}

	return false
}

// ToolLoopError reports a query abandoned after too many tool rounds.
type ToolLoopError struct {
	Rounds int
}

// Error implements the error interface.
func (e *ToolLoopError) Error() string {
	return fmt.Sprintf("query abandoned after %d tool rounds", e.Rounds)
}

// FormatError renders any bridge-level failure as one message suitable for
// an end user. The typed error should be logged by the caller.
func FormatError(err error) string {
	var (
		unknownServerErr *server.UnknownServerError
		unknownToolErr   *server.UnknownToolError
		connErr          *server.ConnectionError
		validationErr    *util.ValidationError
		transportErr     *transport.Error
		providerErr      *provider.Error
		loopErr          *ToolLoopError
	)

	switch {
	case errors.As(err, &unknownServerErr):
		return fmt.Sprintf("I don't know a server named %q.", unknownServerErr.Server)
	case errors.As(err, &unknownToolErr):
		return fmt.Sprintf("Server %q has no tool named %q.", unknownToolErr.Server, unknownToolErr.Tool)
	case errors.As(err, &connErr):
		return fmt.Sprintf("I couldn't reach server %q. Is it running?", connErr.Server)
	case errors.As(err, &validationErr):
		return fmt.Sprintf("The tool arguments were invalid: %s.", validationErr.Message)
	case errors.As(err, &transportErr) && transportErr.Timeout:
		return "The server took too long to answer. Please try again."
	case errors.As(err, &providerErr):
		switch providerErr.Kind {
		case provider.ErrorKindRateLimited:
			return "The model API is rate limiting requests. Please wait a moment and retry."
		case provider.ErrorKindAuthError:
			return "Authentication with the model API failed. Check the configured API key."
		case provider.ErrorKindTransient:
			return "The model API had a temporary problem. Please try again."
		default:
			return "The model API returned an error."
		}
	case errors.As(err, &loopErr):
		return "I couldn't finish the request; the tool conversation didn't converge."
	default:
		return fmt.Sprintf("Something went wrong: %v", err)
	}
}
