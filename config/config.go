// Package config loads the YAML configuration file describing the provider,
// the servers to bridge, and logging. Values may reference environment
// variables with ${VAR} syntax; expansion happens before unmarshalling so
// secrets never live in the file itself.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/mcpbridge/server"
)

// Config is the root configuration document.
type Config struct {
	Provider ProviderConfig          `yaml:"provider"`
	Servers  map[string]ServerConfig `yaml:"servers"`
	Logging  LoggingConfig           `yaml:"logging"`
}

// ProviderConfig selects and parameterizes the model provider.
type ProviderConfig struct {
	Name        string  `yaml:"name"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int64   `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// ServerConfig describes one server entry.
type ServerConfig struct {
	Transport string            `yaml:"transport"`
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	Env       map[string]string `yaml:"env"`
	URL       string            `yaml:"url"`
	Keywords  []string          `yaml:"keywords"`

	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Error reports an invalid configuration. Configuration problems are fatal
// at load time; nothing downstream sees a half-valid config.
type Error struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// Load reads, expands, parses, and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(raw)
}

// Parse loads a configuration from raw YAML bytes. Environment references
// are expanded first; unset variables expand to the empty string and trip
// validation only where the field is required.
func Parse(raw []byte) (*Config, error) {
	expanded := os.Expand(string(raw), os.Getenv)

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func (c *Config) parseDurations() error {
	for name, sc := range c.Servers {
		if sc.TimeoutRaw == "" {
			continue
		}

		d, err := time.ParseDuration(sc.TimeoutRaw)
		if err != nil {
			return &Error{
				Field:   fmt.Sprintf("servers.%s.timeout", name),
				Message: fmt.Sprintf("invalid duration %q", sc.TimeoutRaw),
			}
		}

		sc.Timeout = d
		c.Servers[name] = sc
	}

	return nil
}

func (c *Config) validate() error {
	if c.Provider.Name == "" {
		return &Error{Field: "provider.name", Message: "provider name is required"}
	}

	for name, sc := range c.Servers {
		switch server.TransportKind(sc.Transport) {
		case server.TransportStdio:
			if sc.Command == "" {
				return &Error{
					Field:   fmt.Sprintf("servers.%s.command", name),
					Message: "stdio server requires a command",
				}
			}
		case server.TransportHTTP:
			if sc.URL == "" {
				return &Error{
					Field:   fmt.Sprintf("servers.%s.url", name),
					Message: "http server requires a url",
				}
			}
		default:
			return &Error{
				Field:   fmt.Sprintf("servers.%s.transport", name),
				Message: fmt.Sprintf("unknown transport %q", sc.Transport),
			}
		}

	}

	return nil
}

// Descriptors converts the server entries into manager descriptors.
func (c *Config) Descriptors() []server.Descriptor {
	descs := make([]server.Descriptor, 0, len(c.Servers))

	for name, sc := range c.Servers {
		descs = append(descs, server.Descriptor{
			Name:      name,
			Transport: server.TransportKind(sc.Transport),
			Command:   sc.Command,
			Args:      sc.Args,
			Env:       sc.Env,
			URL:       sc.URL,
			Keywords:  sc.Keywords,
			Timeout:   sc.Timeout,
		})
	}

	return descs
}
