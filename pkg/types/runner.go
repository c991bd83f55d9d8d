package types

import "encoding/json"

// Frame is the envelope for every runner wire-protocol message. The
// concrete payload lives in Data, discriminated by Type.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Runner wire-protocol frame type names.
const (
	FrameHello                     = "hello"
	FrameResolveEnvironmentRequest = "resolve_environment_request"
	FrameResolveEnvironmentResponse = "resolve_environment_response"
	FrameRegisterSession            = "register_session"
	FrameToolRequest                = "tool_request"
	FrameToolResponse               = "tool_response"
)

// Hello is the first frame sent in either direction on a runner link.
type Hello struct {
	RunnerName string `json:"runnerName"`
	Version    string `json:"version"`
}

// ResolveEnvironmentRequest asks a runner to resolve a named
// environment to a concrete working directory.
type ResolveEnvironmentRequest struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Name      string `json:"name"`
}

// ResolveEnvironmentResponse answers a ResolveEnvironmentRequest.
type ResolveEnvironmentResponse struct {
	ID          string       `json:"id"`
	Environment *Environment `json:"environment,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// RegisterSession binds a session to an environment on the runner
// side, issued once after a session's environment is resolved.
type RegisterSession struct {
	SessionID   string      `json:"sessionID"`
	Environment Environment `json:"environment"`
}

// ToolRequest dispatches one tool call over a runner link.
type ToolRequest struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"sessionID"`
	ToolCallID string          `json:"toolCallID"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

// ToolResponse answers a ToolRequest.
type ToolResponse struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"sessionID"`
	ToolCallID   string          `json:"toolCallID"`
	Result       json.RawMessage `json:"result,omitempty"`
	IsError      bool            `json:"isError"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// Encode wraps a typed frame payload into a Frame envelope.
func Encode(frameType string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: frameType, Data: data}, nil
}
