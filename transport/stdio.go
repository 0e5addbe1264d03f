package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/hupe1980/mcpbridge/protocol"
)

// Stdio exchanges protocol messages with a spawned subprocess, framing one
// JSON message per line on the child's standard streams. Responses are
// correlated to in-flight requests by envelope ID; responses for unknown IDs
// (typically late answers to timed-out calls) are discarded.
type Stdio struct {
	command string
	args    []string
	env     map[string]string
	opts    Options

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	pending   map[string]chan *protocol.Response
	connected bool
	readDone  chan struct{}
}

// NewStdio creates a subprocess pipe transport for the given command. The
// process is not spawned until Connect.
func NewStdio(command string, args []string, env map[string]string, optFns ...func(o *Options)) *Stdio {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Stdio{
		command: command,
		args:    args,
		env:     env,
		opts:    opts,
		pending: map[string]chan *protocol.Response{},
	}
}

// Connect spawns the subprocess and starts the response reader. Idempotent
// when already connected.
func (t *Stdio) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	cmd := exec.Command(t.command, t.args...)
	cmd.Env = os.Environ()
	for k, v := range t.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &Error{Op: "connect", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &Error{Op: "connect", Err: err}
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return &Error{Op: "connect", Err: fmt.Errorf("starting %s: %w", t.command, err)}
	}

	t.cmd = cmd
	t.stdin = stdin
	t.connected = true
	t.readDone = make(chan struct{})

	go t.readLoop(stdout, t.readDone)

	t.opts.Logger.Debug("stdio transport connected", "command", t.command)

	return nil
}

// readLoop reads line-framed responses from the child's stdout and routes
// them to the pending call matching their ID. Ends when the pipe closes.
func (t *Stdio) readLoop(stdout io.Reader, done chan struct{}) {
	defer close(done)

	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			t.routeLine(line)
		}
		if err != nil {
			break
		}
	}

	// Pipe closed: the process exited or was torn down. Fail every call
	// still waiting for an answer.
	t.mu.Lock()
	t.connected = false
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.mu.Unlock()
}

func (t *Stdio) routeLine(line []byte) {
	resp, err := protocol.UnmarshalResponse(line)
	if err != nil {
		t.opts.Logger.Warn("discarding unparseable response line", "command", t.command, "error", err)
		return
	}

	t.mu.Lock()
	ch, ok := t.pending[resp.ID]
	if ok {
		delete(t.pending, resp.ID)
	}
	t.mu.Unlock()

	if !ok {
		t.opts.Logger.Debug("discarding response for unknown request id", "id", resp.ID)
		return
	}

	ch <- resp
	close(ch)
}

// Send writes the request to the child's stdin and awaits the matching
// response. A per-call timeout applies unless the caller context expires
// first.
func (t *Stdio) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	data, err := protocol.MarshalRequest(req)
	if err != nil {
		return nil, &Error{Op: "send", Err: err}
	}

	ch := make(chan *protocol.Response, 1)

	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, &Error{Op: "send", Err: errors.New("not connected")}
	}
	t.pending[req.ID] = ch
	// Writing under the lock keeps submission order on the wire.
	_, writeErr := t.stdin.Write(append(data, '\n'))
	if writeErr != nil {
		delete(t.pending, req.ID)
		t.mu.Unlock()
		return nil, &Error{Op: "send", Err: writeErr}
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.opts.CallTimeout)
	defer cancel()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, &Error{Op: "receive", Err: errors.New("connection closed while awaiting response")}
		}
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
		return nil, &Error{Op: "receive", Timeout: true, Err: ctx.Err()}
	}
}

// IsConnected reports whether the subprocess is running and its pipes usable.
func (t *Stdio) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Close terminates the subprocess and releases its pipes. Safe to call when
// not connected.
func (t *Stdio) Close() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	stdin := t.stdin
	cmd := t.cmd
	done := t.readDone
	t.mu.Unlock()

	// Closing stdin lets a well-behaved server exit on its own.
	_ = stdin.Close()

	waitErr := cmd.Wait()
	if done != nil {
		<-done
	}

	t.opts.Logger.Debug("stdio transport closed", "command", t.command)

	if waitErr != nil && !isExpectedExit(waitErr) {
		return &Error{Op: "connect", Err: waitErr}
	}
	return nil
}

func isExpectedExit(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
