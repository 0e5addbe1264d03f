package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mcpbridge/server"
)

func TestParse(t *testing.T) {
	t.Run("full document", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "sk-secret")

		cfg, err := Parse([]byte(`
provider:
  name: anthropic
  model: claude-3-5-sonnet-20241022
  api_key: ${TEST_API_KEY}
servers:
  calc:
    transport: stdio
    command: ./calc-server
    args: ["--verbose"]
    env:
      CALC_MODE: strict
    keywords: ["math"]
    timeout: 45s
  weather:
    transport: http
    url: https://weather.example.com/rpc
logging:
  level: debug
  format: json
`))
		require.NoError(t, err)

		assert.Equal(t, "anthropic", cfg.Provider.Name)
		assert.Equal(t, "sk-secret", cfg.Provider.APIKey)
		assert.Equal(t, "debug", cfg.Logging.Level)

		calc := cfg.Servers["calc"]
		assert.Equal(t, "./calc-server", calc.Command)
		assert.Equal(t, []string{"--verbose"}, calc.Args)
		assert.Equal(t, "strict", calc.Env["CALC_MODE"])
		assert.Equal(t, 45*time.Second, calc.Timeout)
	})

	t.Run("unset variable expands empty", func(t *testing.T) {
		cfg, err := Parse([]byte(`
provider:
  name: openai
  api_key: ${DEFINITELY_NOT_SET_12345}
`))
		require.NoError(t, err)
		assert.Empty(t, cfg.Provider.APIKey)
	})

	t.Run("missing provider name", func(t *testing.T) {
		_, err := Parse([]byte(`
servers: {}
`))

		var cfgErr *Error

		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "provider.name", cfgErr.Field)
	})

	t.Run("unknown transport", func(t *testing.T) {
		_, err := Parse([]byte(`
provider:
  name: anthropic
servers:
  bad:
    transport: carrier-pigeon
`))

		var cfgErr *Error

		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "servers.bad.transport", cfgErr.Field)
	})

	t.Run("stdio without command", func(t *testing.T) {
		_, err := Parse([]byte(`
provider:
  name: anthropic
servers:
  calc:
    transport: stdio
`))

		var cfgErr *Error

		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "servers.calc.command", cfgErr.Field)
	})

	t.Run("http without url", func(t *testing.T) {
		_, err := Parse([]byte(`
provider:
  name: anthropic
servers:
  weather:
    transport: http
`))

		var cfgErr *Error

		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "servers.weather.url", cfgErr.Field)
	})

	t.Run("invalid timeout duration", func(t *testing.T) {
		_, err := Parse([]byte(`
provider:
  name: anthropic
servers:
  calc:
    transport: stdio
    command: ./calc-server
    timeout: soon
`))

		var cfgErr *Error

		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "servers.calc.timeout", cfgErr.Field)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Parse([]byte(`provider: [`))
		require.Error(t, err)
	})
}

func TestConfig_Descriptors(t *testing.T) {
	cfg, err := Parse([]byte(`
provider:
  name: anthropic
servers:
  calc:
    transport: stdio
    command: ./calc-server
    keywords: ["math"]
  weather:
    transport: http
    url: https://weather.example.com/rpc
`))
	require.NoError(t, err)

	descs := cfg.Descriptors()
	require.Len(t, descs, 2)

	byName := make(map[string]server.Descriptor, len(descs))
	for _, d := range descs {
		byName[d.Name] = d
	}

	assert.Equal(t, server.TransportStdio, byName["calc"].Transport)
	assert.Equal(t, "./calc-server", byName["calc"].Command)
	assert.Equal(t, []string{"math"}, byName["calc"].Keywords)

	assert.Equal(t, server.TransportHTTP, byName["weather"].Transport)
	assert.Equal(t, "https://weather.example.com/rpc", byName["weather"].URL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}
