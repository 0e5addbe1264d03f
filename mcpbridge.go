// Package mcpbridge provides a high-level façade over the server manager,
// provider agents, and the orchestrating client, enabling rapid construction
// of tool-augmented chat applications. Most applications interact with this
// package by:
//  1. Creating a Bridge via New() from a loaded configuration
//  2. Connecting the configured servers (Connect)
//  3. Running queries (ProcessQuery / ProcessQueryAsync) or feeding events
//     (HandleEvent)
//
// The façade delegates orchestration to bridge.Client while keeping setup
// ergonomics concise. Provider variants must be linked in by importing their
// packages, typically provider/anthropic and provider/openai.
package mcpbridge

import (
	"context"

	"github.com/hupe1980/mcpbridge/bridge"
	"github.com/hupe1980/mcpbridge/config"
	"github.com/hupe1980/mcpbridge/logging"
	"github.com/hupe1980/mcpbridge/provider"
	"github.com/hupe1980/mcpbridge/router"
	"github.com/hupe1980/mcpbridge/server"
	"github.com/hupe1980/mcpbridge/task"
)

// Options configures the Bridge instance.
type Options struct {
	// Instructions is the system prompt sent with every completion.
	Instructions string

	// MaxToolRounds caps the complete/invoke cycles per query.
	MaxToolRounds int

	// Logger receives lifecycle and invocation logs. Defaults to NoOp.
	Logger logging.Logger
}

// Bridge bundles the connected components behind one handle.
type Bridge struct {
	manager *server.Manager
	agent   provider.Agent
	client  *bridge.Client
}

// New builds a Bridge from a loaded configuration. The provider named in the
// configuration must be registered, which happens when its package is
// imported.
func New(cfg *config.Config, optFns ...func(o *Options)) (*Bridge, error) {
	opts := Options{
		MaxToolRounds: 10,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	agent, err := provider.Create(cfg.Provider.Name, func(o *provider.Options) {
		o.Model = cfg.Provider.Model
		o.APIKey = cfg.Provider.APIKey
		o.Logger = opts.Logger

		if cfg.Provider.MaxTokens > 0 {
			o.MaxTokens = cfg.Provider.MaxTokens
		}

		if cfg.Provider.Temperature > 0 {
			o.Temperature = cfg.Provider.Temperature
		}
	})
	if err != nil {
		return nil, err
	}

	manager := server.NewManager(server.WithLogger(opts.Logger))

	for _, desc := range cfg.Descriptors() {
		if err := manager.Register(desc); err != nil {
			return nil, err
		}
	}

	client := bridge.New(manager, agent,
		bridge.WithInstructions(opts.Instructions),
		bridge.WithMaxToolRounds(opts.MaxToolRounds),
		bridge.WithLogger(opts.Logger),
	)

	return &Bridge{
		manager: manager,
		agent:   agent,
		client:  client,
	}, nil
}

// WithInstructions sets the system prompt.
func WithInstructions(instructions string) func(o *Options) {
	return func(o *Options) { o.Instructions = instructions }
}

// WithMaxToolRounds caps the tool loop.
func WithMaxToolRounds(n int) func(o *Options) {
	return func(o *Options) { o.MaxToolRounds = n }
}

// WithLogger sets the logger used by all components.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// Connect establishes every configured server connection, returning
// per-server failures without aborting the rest.
func (b *Bridge) Connect(ctx context.Context) map[string]error {
	return b.manager.ConnectAll(ctx)
}

// Close releases all server connections.
func (b *Bridge) Close() {
	b.manager.DisconnectAll()
}

// Manager exposes the server connection manager.
func (b *Bridge) Manager() *server.Manager { return b.manager }

// Agent exposes the provider agent.
func (b *Bridge) Agent() provider.Agent { return b.agent }

// Client exposes the orchestrating client.
func (b *Bridge) Client() *bridge.Client { return b.client }

// ProcessQuery answers one query, optionally pinned to a named server.
func (b *Bridge) ProcessQuery(ctx context.Context, query, serverName string) (string, error) {
	return b.client.ProcessQuery(ctx, query, serverName)
}

// ProcessQueryAsync runs a query as a background task and returns its ID.
func (b *Bridge) ProcessQueryAsync(ctx context.Context, query, serverName string) string {
	return b.client.ProcessQueryAsync(ctx, query, serverName)
}

// HandleEvent routes an inbound event through the client's router.
func (b *Bridge) HandleEvent(ctx context.Context, ev router.Event) (*router.Dispatch, error) {
	return b.client.HandleEvent(ctx, ev)
}

// TaskStatus returns a snapshot of a background query task.
func (b *Bridge) TaskStatus(id string) (task.Task, error) {
	return b.client.Executor().Status(id)
}

// CancelTask cancels a background query task.
func (b *Bridge) CancelTask(id string) (task.CancelOutcome, error) {
	return b.client.Executor().Cancel(id)
}
