// Command mcpbridge connects configured tool servers to a model provider and
// runs an interactive query loop on the terminal.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/hupe1980/mcpbridge/bridge"
	"github.com/hupe1980/mcpbridge/config"
	"github.com/hupe1980/mcpbridge/logging"
	"github.com/hupe1980/mcpbridge/provider"
	_ "github.com/hupe1980/mcpbridge/provider/anthropic"
	_ "github.com/hupe1980/mcpbridge/provider/openai"
	"github.com/hupe1980/mcpbridge/server"
)

func main() {
	var (
		configPath   = flag.String("config", "mcpbridge.yaml", "path to the configuration file")
		providerName = flag.String("provider", "", "model provider, overrides the config")
		model        = flag.String("model", "", "model name, overrides the config")
		serverName   = flag.String("server", "", "answer every query with this server's tools")
		logLevel     = flag.String("log-level", "", "log level, overrides the config")
	)

	flag.Parse()

	if err := run(*configPath, *providerName, *model, *serverName, *logLevel); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, providerName, model, serverName, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if providerName == "" {
		providerName = cfg.Provider.Name
	}

	if model == "" {
		model = cfg.Provider.Model
	}

	if logLevel == "" {
		logLevel = cfg.Logging.Level
	}

	logger := logging.New(&logging.Config{
		Level:  logging.ParseLevel(logLevel),
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	agent, err := provider.Create(providerName, func(o *provider.Options) {
		o.Model = model
		o.APIKey = cfg.Provider.APIKey
		o.Logger = logger

		if cfg.Provider.MaxTokens > 0 {
			o.MaxTokens = cfg.Provider.MaxTokens
		}

		if cfg.Provider.Temperature > 0 {
			o.Temperature = cfg.Provider.Temperature
		}
	})
	if err != nil {
		return err
	}

	manager := server.NewManager(server.WithLogger(logger))

	for _, desc := range cfg.Descriptors() {
		if err := manager.Register(desc); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failures := manager.ConnectAll(ctx)
	for name, connErr := range failures {
		color.New(color.FgYellow).Printf("warning: server %q failed to connect: %v\n", name, connErr)
	}

	defer manager.DisconnectAll()

	client := bridge.New(manager, agent, bridge.WithLogger(logger))

	printSummary(manager, agent)

	return chatLoop(ctx, client, manager, serverName)
}

// printSummary shows the provider and every connected server with its tools.
func printSummary(manager *server.Manager, agent provider.Agent) {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	info := agent.Info()
	cyan.Printf("provider: %s (%s)\n", info.Provider, info.Name)

	names := manager.Names()
	sort.Strings(names)

	for _, name := range names {
		state, err := manager.StateOf(name)
		if err != nil {
			continue
		}

		if state != server.StateReady {
			gray.Printf("  %s (%s)\n", name, state)

			continue
		}

		tools, _ := manager.Tools(name)

		toolNames := make([]string, len(tools))
		for i, tool := range tools {
			toolNames[i] = tool.Name
		}

		green.Printf("  %s", name)
		gray.Printf(" [%s]\n", strings.Join(toolNames, ", "))
	}

	fmt.Println()
	gray.Println("type a query, \"servers\" to list servers, \"name: query\" to target one, \"quit\" to exit")
}

// chatLoop reads queries from stdin until quit or EOF. A "name: query"
// prefix targets a specific server; the -server flag pins one for the whole
// session.
func chatLoop(ctx context.Context, client *bridge.Client, manager *server.Manager, pinned string) error {
	scanner := bufio.NewScanner(os.Stdin)
	prompt := color.New(color.FgCyan)

	for {
		prompt.Print("> ")

		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "quit", "exit":
			return nil
		case "servers":
			for _, name := range manager.Names() {
				state, _ := manager.StateOf(name)
				fmt.Printf("  %s (%s)\n", name, state)
			}

			continue
		}

		target := pinned
		query := line

		if name, rest, ok := splitServerPrefix(line); ok {
			if _, err := manager.StateOf(name); err == nil {
				target, query = name, rest
			}
		}

		answer, err := client.ProcessQuery(ctx, query, target)
		if err != nil {
			color.New(color.FgRed).Println(bridge.FormatError(err))

			continue
		}

		fmt.Println(answer)
	}
}

// splitServerPrefix parses a "name: query" line. The prefix must be a single
// word so ordinary sentences with colons pass through untouched.
func splitServerPrefix(line string) (name, query string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}

	name = strings.TrimSpace(line[:idx])
	if strings.ContainsAny(name, " \t") {
		return "", "", false
	}

	query = strings.TrimSpace(line[idx+1:])
	if query == "" {
		return "", "", false
	}

	return name, query, true
}
