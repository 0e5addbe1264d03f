package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/mcpbridge/protocol"
)

// helperTransport spawns the test binary itself as a line-framed protocol
// server (see TestHelperProcess).
func helperTransport(optFns ...func(o *Options)) *Stdio {
	return NewStdio(os.Args[0], []string{"-test.run=TestHelperProcess", "--"}, map[string]string{
		"GO_WANT_HELPER_PROCESS": "1",
	}, optFns...)
}

func TestStdioRoundTrip(t *testing.T) {
	tr := helperTransport()
	require.NoError(t, tr.Connect(context.Background()))
	defer func() { _ = tr.Close() }()

	assert.True(t, tr.IsConnected())

	resp, err := tr.Send(context.Background(), protocol.NewListToolsRequest("calc"))
	require.NoError(t, err)
	require.NoError(t, resp.Err())

	tools, err := protocol.DecodeToolList(resp.Data)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "add", tools[0].Name)

	resp, err = tr.Send(context.Background(), protocol.NewCallToolRequest("calc", "add", map[string]any{"a": 2, "b": 3}))
	require.NoError(t, err)
	require.NoError(t, resp.Err())
	assert.Equal(t, float64(5), resp.Data["result"])
}

func TestStdioConnectIdempotent(t *testing.T) {
	tr := helperTransport()
	require.NoError(t, tr.Connect(context.Background()))
	defer func() { _ = tr.Close() }()

	require.NoError(t, tr.Connect(context.Background()))
	assert.True(t, tr.IsConnected())
}

func TestStdioRemoteError(t *testing.T) {
	tr := helperTransport()
	require.NoError(t, tr.Connect(context.Background()))
	defer func() { _ = tr.Close() }()

	resp, err := tr.Send(context.Background(), protocol.NewCallToolRequest("calc", "divide", map[string]any{}))
	require.NoError(t, err)

	var remote *protocol.RemoteError
	require.ErrorAs(t, resp.Err(), &remote)
	assert.Contains(t, remote.Error(), "unknown tool")
}

func TestStdioTimeout(t *testing.T) {
	tr := helperTransport(func(o *Options) {
		o.CallTimeout = 100 * time.Millisecond
	})
	require.NoError(t, tr.Connect(context.Background()))
	defer func() { _ = tr.Close() }()

	start := time.Now()
	_, err := tr.Send(context.Background(), protocol.NewCallToolRequest("calc", "hang", map[string]any{}))
	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.True(t, tErr.Timeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestStdioSendAfterClose(t *testing.T) {
	tr := helperTransport()
	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Close())

	assert.False(t, tr.IsConnected())

	_, err := tr.Send(context.Background(), protocol.NewListToolsRequest("calc"))
	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.False(t, tErr.Timeout)
}

func TestStdioCloseWithoutConnect(t *testing.T) {
	tr := helperTransport()
	assert.NoError(t, tr.Close())
}

// TestHelperProcess is not a real test. When re-executed by helperTransport it
// acts as a backend tool server: it reads line-framed protocol requests from
// stdin and answers a one-tool calc service where add(a,b)=a+b. Requests for
// the "hang" tool are swallowed to exercise timeouts.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	out := bufio.NewWriter(os.Stdout)

	for scanner.Scan() {
		var req protocol.Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}

		var resp *protocol.Response
		switch req.Operation {
		case protocol.OperationListTools:
			resp = protocol.NewSuccessResponse(req.ID, protocol.EncodeToolList([]protocol.ToolDescriptor{{
				Name:        "add",
				Description: "Add two numbers",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"a": map[string]any{"type": "number"},
						"b": map[string]any{"type": "number"},
					},
					"required": []any{"a", "b"},
				},
			}}))
		case protocol.OperationCallTool:
			name, _ := req.Params["name"].(string)
			if name == "hang" {
				continue
			}
			if name != "add" {
				resp = protocol.NewErrorResponse(req.ID, &protocol.ErrorInfo{
					Message: fmt.Sprintf("unknown tool: %s", name),
					Type:    "OperationError",
				})
				break
			}
			args, _ := req.Params["arguments"].(map[string]any)
			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)
			resp = protocol.NewSuccessResponse(req.ID, map[string]any{"result": a + b})
		default:
			resp = protocol.NewErrorResponse(req.ID, &protocol.ErrorInfo{
				Message: fmt.Sprintf("unknown operation: %s", req.Operation),
				Type:    "ProtocolError",
			})
		}

		data, _ := json.Marshal(resp)
		_, _ = out.Write(append(data, '\n'))
		_ = out.Flush()
	}

	os.Exit(0)
}
