// Package server implements the connection manager for backend tool servers:
// a named registry of server descriptors, one live connection per name with an
// explicit state machine, capability discovery on connect, and a unified
// "invoke named tool on named server" operation.
//
// Ownership model: the Manager exclusively owns every Connection; consumers
// read tool registries and states through the Manager's methods and never
// mutate them directly.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/mcpbridge/internal/util"
	"github.com/hupe1980/mcpbridge/logging"
	"github.com/hupe1980/mcpbridge/protocol"
	"github.com/hupe1980/mcpbridge/transport"
)

// TransportKind selects the channel variant used to reach a server.
type TransportKind string

const (
	// TransportStdio reaches the server via a spawned subprocess.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP reaches the server via HTTP requests to a configured URL.
	TransportHTTP TransportKind = "http"
)

// Descriptor holds the immutable connection parameters for one server,
// loaded from configuration at startup.
type Descriptor struct {
	Name      string
	Transport TransportKind
	Command   string
	Args      []string
	Env       map[string]string
	URL       string
	Keywords  []string

	// Timeout overrides the manager's call timeout for this server when set.
	Timeout time.Duration
}

// State describes the lifecycle of a server connection.
type State int

const (
	// StateDisconnected is the initial state and the result of explicit teardown.
	StateDisconnected State = iota
	// StateConnecting marks an in-progress connection attempt.
	StateConnecting
	// StateReady marks a connected server with a populated tool registry.
	StateReady
	// StateFailed marks a connection that errored; the next invocation retries.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TransportFactory builds a transport for a descriptor. Overridable for tests.
type TransportFactory func(desc Descriptor, optFns ...func(o *transport.Options)) (transport.Transport, error)

// DefaultTransportFactory maps descriptor transport kinds to the concrete
// transport implementations.
func DefaultTransportFactory(desc Descriptor, optFns ...func(o *transport.Options)) (transport.Transport, error) {
	switch desc.Transport {
	case TransportStdio:
		return transport.NewStdio(desc.Command, desc.Args, desc.Env, optFns...), nil
	case TransportHTTP:
		return transport.NewHTTP(desc.URL, optFns...), nil
	default:
		return nil, fmt.Errorf("unsupported transport kind: %q", desc.Transport)
	}
}

// connection is the runtime entity for one registered server. Its mutex
// serializes connect/invoke per connection, which also guarantees that
// invocations issued sequentially against the same server hit the wire in
// submission order.
type connection struct {
	mu        sync.Mutex
	desc      Descriptor
	state     State
	transport transport.Transport
	tools     []protocol.ToolDescriptor
	keywords  []string
}

// Options configure a Manager.
type Options struct {
	// Logger receives connection lifecycle and invocation logs.
	Logger logging.Logger

	// TransportFactory builds transports from descriptors. Defaults to
	// DefaultTransportFactory; tests substitute in-process fakes here.
	TransportFactory TransportFactory

	// CallTimeout bounds each transport exchange.
	CallTimeout time.Duration
}

// Manager owns the server registry and all live connections.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*connection
	opts        Options
}

// NewManager creates an empty connection manager.
func NewManager(optFns ...func(o *Options)) *Manager {
	opts := Options{
		Logger:           logging.NoOpLogger{},
		TransportFactory: DefaultTransportFactory,
		CallTimeout:      transport.DefaultCallTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{
		connections: make(map[string]*connection),
		opts:        opts,
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// WithTransportFactory substitutes the transport construction, primarily for tests.
func WithTransportFactory(factory TransportFactory) func(o *Options) {
	return func(o *Options) { o.TransportFactory = factory }
}

// WithCallTimeout bounds each transport exchange.
func WithCallTimeout(d time.Duration) func(o *Options) {
	return func(o *Options) { o.CallTimeout = d }
}

// Register adds a server descriptor. Fails with DuplicateServerError when the
// name is already registered.
func (m *Manager) Register(desc Descriptor) error {
	return m.register(desc, false)
}

// RegisterReplace adds a server descriptor, tearing down and replacing any
// existing registration under the same name.
func (m *Manager) RegisterReplace(desc Descriptor) error {
	return m.register(desc, true)
}

func (m *Manager) register(desc Descriptor, replace bool) error {
	if desc.Name == "" {
		return fmt.Errorf("server descriptor has no name")
	}

	m.mu.Lock()
	existing, ok := m.connections[desc.Name]
	if ok && !replace {
		m.mu.Unlock()
		return &DuplicateServerError{Server: desc.Name}
	}
	conn := &connection{desc: desc, state: StateDisconnected, keywords: mergeKeywords(nil, desc.Keywords)}
	m.connections[desc.Name] = conn
	m.mu.Unlock()

	if existing != nil {
		m.teardown(existing)
	}

	m.opts.Logger.Info("registered server", "server", desc.Name, "transport", string(desc.Transport))

	return nil
}

// Connect establishes the transport for a server and performs capability
// discovery, populating its tool registry. Idempotent when already Ready. On
// failure the connection transitions to Failed and a ConnectionError carrying
// the cause is returned.
func (m *Manager) Connect(ctx context.Context, name string) error {
	conn, err := m.connection(name)
	if err != nil {
		return err
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	return m.connectLocked(ctx, conn)
}

// connectLocked drives the Disconnected -> Connecting -> Ready transition.
// Callers hold conn.mu.
func (m *Manager) connectLocked(ctx context.Context, conn *connection) error {
	if conn.state == StateReady {
		return nil
	}

	conn.state = StateConnecting
	m.opts.Logger.Info("connecting to server", "server", conn.desc.Name)

	tr := conn.transport
	if tr == nil {
		built, err := m.opts.TransportFactory(conn.desc, func(o *transport.Options) {
			o.CallTimeout = m.opts.CallTimeout
			if conn.desc.Timeout > 0 {
				o.CallTimeout = conn.desc.Timeout
			}
			o.Logger = m.opts.Logger
		})
		if err != nil {
			conn.state = StateFailed
			return &ConnectionError{Server: conn.desc.Name, Err: err}
		}
		tr = built
	}

	if err := tr.Connect(ctx); err != nil {
		conn.state = StateFailed
		return &ConnectionError{Server: conn.desc.Name, Err: err}
	}

	// Capability discovery handshake. A server reporting zero tools is valid
	// and yields an empty but present registry.
	resp, err := tr.Send(ctx, protocol.NewListToolsRequest(conn.desc.Name))
	if err != nil {
		_ = tr.Close()
		conn.state = StateFailed
		return &ConnectionError{Server: conn.desc.Name, Err: err}
	}
	if err := resp.Err(); err != nil {
		_ = tr.Close()
		conn.state = StateFailed
		return &ConnectionError{Server: conn.desc.Name, Err: err}
	}

	tools, err := protocol.DecodeToolList(resp.Data)
	if err != nil {
		_ = tr.Close()
		conn.state = StateFailed
		return &ConnectionError{Server: conn.desc.Name, Err: err}
	}

	conn.transport = tr
	conn.tools = tools
	conn.keywords = mergeKeywords(generateKeywords(conn.desc.Name, tools), conn.desc.Keywords)
	conn.state = StateReady

	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	m.opts.Logger.Info("connected to server", "server", conn.desc.Name, "tools", names)

	return nil
}

// ConnectAll connects every registered server, collecting per-server failures
// without aborting the remaining attempts. The returned map holds the error
// for each server that failed; an empty map means every connection succeeded.
func (m *Manager) ConnectAll(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	for _, name := range m.Names() {
		if err := m.Connect(ctx, name); err != nil {
			m.opts.Logger.Error("connection failed", "server", name, "error", err)
			failures[name] = err
		}
	}
	return failures
}

// Invoke calls a named tool on a named server and returns the structured
// result payload. An implicit connect is attempted when the connection is not
// Ready. Transport-level failures mark the connection Failed; retrying is the
// caller's decision.
func (m *Manager) Invoke(ctx context.Context, name, tool string, args map[string]any) (map[string]any, error) {
	conn, err := m.connection(name)
	if err != nil {
		return nil, err
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.state != StateReady {
		if err := m.connectLocked(ctx, conn); err != nil {
			return nil, err
		}
	}

	descriptor, ok := findTool(conn.tools, tool)
	if !ok {
		return nil, &UnknownToolError{Server: name, Tool: tool}
	}

	if descriptor.InputSchema != nil {
		if err := util.ValidateParameters(args, descriptor.InputSchema); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := conn.transport.Send(ctx, protocol.NewCallToolRequest(name, tool, args))
	if err != nil {
		conn.state = StateFailed
		m.opts.Logger.Error("tool invocation failed", "server", name, "tool", tool, "error", err)
		return nil, err
	}
	if err := resp.Err(); err != nil {
		// The server answered; the connection itself is still healthy.
		m.opts.Logger.Warn("tool returned error", "server", name, "tool", tool, "error", err)
		return nil, err
	}

	m.opts.Logger.Info("tool invocation succeeded", "server", name, "tool", tool, "duration_ms", time.Since(start).Milliseconds())

	return resp.Data, nil
}

// Tools returns the discovered tool registry for one server.
func (m *Manager) Tools(name string) ([]protocol.ToolDescriptor, error) {
	conn, err := m.connection(name)
	if err != nil {
		return nil, err
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	tools := make([]protocol.ToolDescriptor, len(conn.tools))
	copy(tools, conn.tools)
	return tools, nil
}

// AllTools returns the tool registries of every registered server, keyed by
// server name. Servers that have not completed discovery map to empty slices.
func (m *Manager) AllTools() map[string][]protocol.ToolDescriptor {
	all := make(map[string][]protocol.ToolDescriptor)
	for _, name := range m.Names() {
		tools, err := m.Tools(name)
		if err != nil {
			continue
		}
		all[name] = tools
	}
	return all
}

// Keywords returns the routing keywords per server (generated from discovery
// merged with configured ones).
func (m *Manager) Keywords() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]string, len(m.connections))
	for name, conn := range m.connections {
		conn.mu.Lock()
		kw := make([]string, len(conn.keywords))
		copy(kw, conn.keywords)
		conn.mu.Unlock()
		out[name] = kw
	}
	return out
}

// Names returns the registered server names. Order is not guaranteed;
// callers needing determinism sort the result.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.connections))
	for name := range m.connections {
		names = append(names, name)
	}
	return names
}

// StateOf reports the connection state for a server.
func (m *Manager) StateOf(name string) (State, error) {
	conn, err := m.connection(name)
	if err != nil {
		return StateDisconnected, err
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.state, nil
}

// Disconnect releases the transport for one server. Safe to call on an
// already-disconnected server.
func (m *Manager) Disconnect(name string) error {
	conn, err := m.connection(name)
	if err != nil {
		return err
	}
	m.teardown(conn)
	return nil
}

// DisconnectAll releases every live transport.
func (m *Manager) DisconnectAll() {
	m.mu.RLock()
	conns := make([]*connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		m.teardown(conn)
	}
}

func (m *Manager) teardown(conn *connection) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.transport != nil {
		if err := conn.transport.Close(); err != nil {
			m.opts.Logger.Warn("closing transport", "server", conn.desc.Name, "error", err)
		}
		conn.transport = nil
	}
	conn.state = StateDisconnected
	conn.tools = nil
}

func (m *Manager) connection(name string) (*connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.connections[name]
	if !ok {
		return nil, &UnknownServerError{Server: name}
	}
	return conn, nil
}

func findTool(tools []protocol.ToolDescriptor, name string) (protocol.ToolDescriptor, bool) {
	for _, tool := range tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return protocol.ToolDescriptor{}, false
}
