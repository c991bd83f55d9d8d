package types

import (
	"encoding/json"
	"fmt"
)

// Entry is one row of a session's transcript: a tuple of
// (entry_id, session_id, parent_entry_id?, created_at, payload).
// EntryID is a per-session strictly increasing integer, the cursor.
type Entry struct {
	EntryID       int64   `json:"entryID"`
	SessionID     string  `json:"sessionID"`
	ParentEntryID *int64  `json:"parentEntryID,omitempty"`
	CreatedAt     int64   `json:"createdAt"`
	Payload       Payload `json:"payload"`
}

// Payload is the tagged union of everything that can be appended to a
// transcript. Each variant below implements PayloadType().
type Payload interface {
	PayloadType() string
}

const (
	PayloadUserMessage     = "message.user"
	PayloadAssistantMsg    = "message.assistant"
	PayloadToolResult      = "message.tool_result"
	PayloadCustomMessage   = "message.custom"
	PayloadToolExecution   = "tool_execution"
	PayloadCompaction      = "compaction"
	PayloadHeader          = "header"
	PayloadSessionSettings = "session_settings"
	PayloadCustom          = "custom"
)

// UserMessage is a prompt supplied by a human (or the queue drain
// machinery acting on their behalf).
type UserMessage struct {
	User      string      `json:"user"`
	Content   ContentList `json:"content"`
	Timestamp int64       `json:"timestamp"`
}

func (UserMessage) PayloadType() string { return PayloadUserMessage }

// AssistantMessage is one LLM turn's terminal state: its emitted
// content plus the condition the turn ended under.
type AssistantMessage struct {
	Provider     string      `json:"provider"`
	Model        string      `json:"model"`
	Content      ContentList `json:"content"`
	Usage        *Usage      `json:"usage,omitempty"`
	StopReason   string      `json:"stopReason"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	Timestamp    int64       `json:"timestamp"`
}

func (AssistantMessage) PayloadType() string { return PayloadAssistantMsg }

// Usage is token accounting for one assistant turn.
type Usage struct {
	InputTokens     int `json:"inputTokens"`
	OutputTokens    int `json:"outputTokens"`
	TotalTokens     int `json:"totalTokens"`
	CacheReadTokens int `json:"cacheReadTokens,omitempty"`
}

// ToolResultMessage pairs a tool call with its outcome.
type ToolResultMessage struct {
	ToolCallID string          `json:"toolCallID"`
	ToolName   string          `json:"toolName"`
	Content    ContentList     `json:"content"`
	Details    json.RawMessage `json:"details,omitempty"`
	IsError    bool            `json:"isError"`
	Timestamp  int64           `json:"timestamp"`
}

func (ToolResultMessage) PayloadType() string { return PayloadToolResult }

// CustomMessage carries system reminders, execution-stopped markers,
// and other extensible, display-controlled notices.
type CustomMessage struct {
	CustomType string          `json:"customType"`
	Content    ContentList     `json:"content"`
	Details    json.RawMessage `json:"details,omitempty"`
	Display    bool            `json:"display"`
	Timestamp  int64           `json:"timestamp"`
}

func (CustomMessage) PayloadType() string { return PayloadCustomMessage }

// Well-known CustomMessage.CustomType values.
const (
	CustomTypeSystemReminder   = "system_reminder"
	CustomTypeExecutionStopped = "execution_stopped"
	CustomTypeAsyncCallback    = "async_callback"
)

// ToolExecutionPhase marks the start or end of a runner-side dispatch.
type ToolExecutionPhase string

const (
	ToolExecutionStart ToolExecutionPhase = "start"
	ToolExecutionEnd   ToolExecutionPhase = "end"
)

// ToolExecution pairs the runner-side lifecycle of a tool call.
type ToolExecution struct {
	Phase      ToolExecutionPhase `json:"phase"`
	ToolCallID string             `json:"toolCallID"`
	ToolName   string             `json:"toolName"`
	Arguments  json.RawMessage    `json:"arguments,omitempty"`
	Result     json.RawMessage    `json:"result,omitempty"`
	IsError    bool               `json:"isError,omitempty"`
}

func (ToolExecution) PayloadType() string { return PayloadToolExecution }

// Compaction replaces the transcript prefix [1..FirstKeptEntryID-1]
// with Summary for the purposes of context assembly.
type Compaction struct {
	TokensBefore    int    `json:"tokensBefore"`
	FirstKeptEntry  int64  `json:"firstKeptEntryID"`
	Summary         string `json:"summary"`
}

func (Compaction) PayloadType() string { return PayloadCompaction }

// Header is always entry 1 and carries the session's system prompt.
type Header struct {
	SystemPrompt string `json:"systemPrompt"`
}

func (Header) PayloadType() string { return PayloadHeader }

// SessionSettingsPayload is journaled whenever the session's
// provider/model/reasoning-effort selection changes.
type SessionSettingsPayload struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	ReasoningEffort string `json:"reasoningEffort,omitempty"`
}

func (SessionSettingsPayload) PayloadType() string { return PayloadSessionSettings }

// CustomPayload is the extensible envelope for telemetry entries such
// as llm.retry / llm.give_up that don't fit the message shapes above.
type CustomPayload struct {
	CustomType string          `json:"customType"`
	Data       json.RawMessage `json:"data"`
}

func (CustomPayload) PayloadType() string { return PayloadCustom }

// Well-known CustomPayload.CustomType values.
const (
	CustomPayloadLLMRetry  = "llm.retry"
	CustomPayloadLLMGiveUp = "llm.give_up"
)

type payloadEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalPayload encodes a Payload as a type-tagged envelope for
// storage as the entries.payload_json column.
func MarshalPayload(p Payload) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payloadEnvelope{Type: p.PayloadType(), Data: data})
}

// UnmarshalPayload decodes a type-tagged envelope back into its
// concrete Payload type.
func UnmarshalPayload(raw json.RawMessage) (Payload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case PayloadUserMessage:
		var v UserMessage
		return v, json.Unmarshal(env.Data, &v)
	case PayloadAssistantMsg:
		var v AssistantMessage
		return v, json.Unmarshal(env.Data, &v)
	case PayloadToolResult:
		var v ToolResultMessage
		return v, json.Unmarshal(env.Data, &v)
	case PayloadCustomMessage:
		var v CustomMessage
		return v, json.Unmarshal(env.Data, &v)
	case PayloadToolExecution:
		var v ToolExecution
		return v, json.Unmarshal(env.Data, &v)
	case PayloadCompaction:
		var v Compaction
		return v, json.Unmarshal(env.Data, &v)
	case PayloadHeader:
		var v Header
		return v, json.Unmarshal(env.Data, &v)
	case PayloadSessionSettings:
		var v SessionSettingsPayload
		return v, json.Unmarshal(env.Data, &v)
	case PayloadCustom:
		var v CustomPayload
		return v, json.Unmarshal(env.Data, &v)
	default:
		return nil, fmt.Errorf("unknown payload type %q", env.Type)
	}
}

// MarshalJSON implements a convenient encoding for Entry where the
// payload is embedded as a type-tagged object rather than double
// JSON-encoded, used by the HTTP API.
func (e Entry) MarshalJSON() ([]byte, error) {
	payloadJSON, err := MarshalPayload(e.Payload)
	if err != nil {
		return nil, err
	}
	type alias struct {
		EntryID       int64           `json:"entryID"`
		SessionID     string          `json:"sessionID"`
		ParentEntryID *int64          `json:"parentEntryID,omitempty"`
		CreatedAt     int64           `json:"createdAt"`
		Payload       json.RawMessage `json:"payload"`
	}
	return json.Marshal(alias{
		EntryID:       e.EntryID,
		SessionID:     e.SessionID,
		ParentEntryID: e.ParentEntryID,
		CreatedAt:     e.CreatedAt,
		Payload:       payloadJSON,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type alias struct {
		EntryID       int64           `json:"entryID"`
		SessionID     string          `json:"sessionID"`
		ParentEntryID *int64          `json:"parentEntryID,omitempty"`
		CreatedAt     int64           `json:"createdAt"`
		Payload       json.RawMessage `json:"payload"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	payload, err := UnmarshalPayload(a.Payload)
	if err != nil {
		return err
	}
	e.EntryID = a.EntryID
	e.SessionID = a.SessionID
	e.ParentEntryID = a.ParentEntryID
	e.CreatedAt = a.CreatedAt
	e.Payload = payload
	return nil
}
