package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/hupe1980/mcpbridge/protocol"
)

// HTTP exchanges protocol messages with a backend server over HTTP. Each Send
// posts one request envelope to the configured endpoint and decodes a single
// response envelope from the body.
type HTTP struct {
	url    string
	client *http.Client
	opts   Options

	mu        sync.Mutex
	connected bool
}

// NewHTTP creates a network transport for the given endpoint URL.
func NewHTTP(url string, optFns ...func(o *Options)) *HTTP {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &HTTP{
		url:    url,
		client: &http.Client{},
		opts:   opts,
	}
}

// Connect marks the transport usable. HTTP needs no persistent channel, so
// this only validates that an endpoint is configured.
func (t *HTTP) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.url == "" {
		return &Error{Op: "connect", Err: errors.New("no endpoint url configured")}
	}
	t.connected = true
	t.opts.Logger.Debug("http transport ready", "url", t.url)
	return nil
}

// Send posts the request to the endpoint and decodes the response envelope.
func (t *HTTP) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if !t.IsConnected() {
		return nil, &Error{Op: "send", Err: errors.New("not connected")}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	data, err := protocol.MarshalRequest(req)
	if err != nil {
		return nil, &Error{Op: "send", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.CallTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Op: "send", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Op: "receive", Timeout: true, Err: ctx.Err()}
		}
		return nil, &Error{Op: "send", Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{Op: "receive", Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &Error{Op: "receive", Err: fmt.Errorf("http %d: %s", httpResp.StatusCode, truncate(body, 240))}
	}

	resp, err := protocol.UnmarshalResponse(body)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// IsConnected reports whether Connect has been called.
func (t *HTTP) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Close marks the transport unusable. HTTP holds no persistent resources.
func (t *HTTP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
