// Package protocol defines the wire contract spoken between mcpbridge and
// backend tool servers: a typed request/response envelope with protocol and
// version tagging, plus the discovery and invocation operations every server
// must answer.
//
// Core goals:
//   - Keep the envelope transport independent (the same messages travel over
//     subprocess pipes and HTTP)
//   - Make malformed traffic detectable before it reaches business logic
//   - Normalize tool metadata (ToolDescriptor) across servers
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	// Name identifies the protocol in every message envelope.
	Name = "mcp"
	// Version is the protocol revision this client speaks.
	Version = "1.0"

	// StatusSuccess marks a response carrying data.
	StatusSuccess = "success"
	// StatusError marks a response carrying error information.
	StatusError = "error"

	// OperationListTools is the capability discovery handshake.
	OperationListTools = "tools/list"
	// OperationCallTool invokes a named tool with arguments.
	OperationCallTool = "tools/call"
)

// Request is the message sent to a backend server.
type Request struct {
	Protocol  string         `json:"protocol"`
	Version   string         `json:"version"`
	ID        string         `json:"id"`
	Service   string         `json:"service"`
	Operation string         `json:"operation"`
	Params    map[string]any `json:"params"`
}

// NewRequest builds a request envelope with protocol tagging and a fresh ID.
func NewRequest(service, operation string, params map[string]any) *Request {
	if params == nil {
		params = map[string]any{}
	}
	return &Request{
		Protocol:  Name,
		Version:   Version,
		ID:        uuid.NewString(),
		Service:   service,
		Operation: operation,
		Params:    params,
	}
}

// NewListToolsRequest builds the discovery handshake request for a server.
func NewListToolsRequest(service string) *Request {
	return NewRequest(service, OperationListTools, map[string]any{})
}

// NewCallToolRequest builds a tool invocation request.
func NewCallToolRequest(service, tool string, arguments map[string]any) *Request {
	if arguments == nil {
		arguments = map[string]any{}
	}
	return NewRequest(service, OperationCallTool, map[string]any{
		"name":      tool,
		"arguments": arguments,
	})
}

// Validate checks the request envelope for structural correctness.
func (r *Request) Validate() error {
	if r.Protocol != Name {
		return &ProtocolError{Message: fmt.Sprintf("invalid protocol: %q", r.Protocol)}
	}
	if r.Version != Version {
		return &ProtocolError{Message: fmt.Sprintf("unsupported version: %q", r.Version)}
	}
	if r.Service == "" {
		return &ProtocolError{Message: "missing required field: service"}
	}
	if r.Operation == "" {
		return &ProtocolError{Message: "missing required field: operation"}
	}
	if r.Params == nil {
		return &ProtocolError{Message: "params are required for operation"}
	}
	return nil
}

// Response is the message a backend server answers with. Exactly one of Data
// (success) or Error (error) is populated.
type Response struct {
	Protocol string         `json:"protocol"`
	Version  string         `json:"version"`
	ID       string         `json:"id,omitempty"`
	Status   string         `json:"status"`
	Data     map[string]any `json:"data,omitempty"`
	Error    *ErrorInfo     `json:"error,omitempty"`
}

// ErrorInfo is the structured error descriptor carried by error responses.
type ErrorInfo struct {
	Message   string         `json:"message"`
	Type      string         `json:"type,omitempty"`
	Service   string         `json:"service,omitempty"`
	Operation string         `json:"operation,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewSuccessResponse builds a success envelope answering the given request ID.
func NewSuccessResponse(requestID string, data map[string]any) *Response {
	if data == nil {
		data = map[string]any{}
	}
	return &Response{
		Protocol: Name,
		Version:  Version,
		ID:       requestID,
		Status:   StatusSuccess,
		Data:     data,
	}
}

// NewErrorResponse builds an error envelope answering the given request ID.
func NewErrorResponse(requestID string, errInfo *ErrorInfo) *Response {
	return &Response{
		Protocol: Name,
		Version:  Version,
		ID:       requestID,
		Status:   StatusError,
		Error:    errInfo,
	}
}

// Validate checks the response envelope for structural correctness.
func (r *Response) Validate() error {
	if r.Protocol != Name {
		return &ProtocolError{Message: fmt.Sprintf("invalid protocol: %q", r.Protocol)}
	}
	if r.Version != Version {
		return &ProtocolError{Message: fmt.Sprintf("unsupported version: %q", r.Version)}
	}
	switch r.Status {
	case StatusSuccess:
		if r.Data == nil {
			return &ProtocolError{Message: "data is required for success status"}
		}
	case StatusError:
		if r.Error == nil {
			return &ProtocolError{Message: "error information is required for error status"}
		}
	default:
		return &ProtocolError{Message: fmt.Sprintf("invalid status: %q", r.Status)}
	}
	return nil
}

// Err converts an error response into a Go error. Returns nil for success
// responses.
func (r *Response) Err() error {
	if r.Status != StatusError {
		return nil
	}
	if r.Error == nil {
		return &ProtocolError{Message: "error response without error information"}
	}
	return &RemoteError{Info: *r.Error}
}

// MarshalRequest serializes a request to its wire form.
func MarshalRequest(r *Request) ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalResponse parses and validates a wire response.
func UnmarshalResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("invalid message format: %v", err)}
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProtocolError reports a structurally invalid protocol message.
type ProtocolError struct {
	Message string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Message)
}

// RemoteError carries the error descriptor a backend server answered with.
type RemoteError struct {
	Info ErrorInfo
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Info.Type != "" {
		return fmt.Sprintf("remote error [%s]: %s", e.Info.Type, e.Info.Message)
	}
	return fmt.Sprintf("remote error: %s", e.Info.Message)
}
