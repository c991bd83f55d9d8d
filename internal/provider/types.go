package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

// nowStamp is the timestamp adapters attach to partial/final assistant
// messages.
func nowStamp() int64 { return time.Now().UnixMilli() }

// Message is one LLM-role entry assembled from the transcript by the
// session actor's context-assembly step (spec.md §4.5).
type Message struct {
	Role    string // "system" | "user" | "assistant" | "tool"
	Content types.ContentList

	// ToolCallID/ToolName are set when Role == "tool", pairing a tool
	// result back to the call that produced it.
	ToolCallID string
	ToolName   string

	// Model records which model emitted an assistant message, used by
	// the OpenAI variants to decide whether a function_call item id may
	// be replayed against the current request (reasoning item ids are
	// replayed regardless of model).
	Model string
}

// ToolSpec is a tool definition exposed to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// CacheMode selects how Anthropic prompt caching is applied.
type CacheMode string

const (
	CacheModeNone               CacheMode = ""
	CacheModeAutomatic          CacheMode = "automatic"
	CacheModeExplicitBreakpoint CacheMode = "explicit_breakpoints"
)

// StreamRequest is the provider-agnostic input to Adapter.Stream.
type StreamRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolSpec
	MaxTokens    int
	Temperature  float64
	CacheMode    CacheMode

	// SessionID, when non-empty, is threaded into Codex's
	// conversation_id/session_id headers and prompt_cache_key body
	// field. Ignored by the other variants.
	SessionID string
}

// Event is one item of an Adapter.Stream sequence (spec.md §4.3).
type Event interface{ EventKind() string }

type StartEvent struct{ Partial types.AssistantMessage }

func (StartEvent) EventKind() string { return "start" }

type TextDeltaEvent struct {
	Delta   string
	Partial types.AssistantMessage
}

func (TextDeltaEvent) EventKind() string { return "text_delta" }

type ReasoningDeltaEvent struct {
	Delta   string
	Partial types.AssistantMessage
}

func (ReasoningDeltaEvent) EventKind() string { return "reasoning_delta" }

type ToolCallEvent struct {
	Call    types.ToolCallContent
	Partial types.AssistantMessage
}

func (ToolCallEvent) EventKind() string { return "tool_call" }

type UsageEvent struct {
	Input, Output, Total, CacheRead int
}

func (UsageEvent) EventKind() string { return "usage" }

type DoneEvent struct{ Final types.AssistantMessage }

func (DoneEvent) EventKind() string { return "done" }

// RetryEvent carries a llm.retry/llm.give_up custom payload for the
// session actor to append to the transcript as-is.
type RetryEvent struct{ Payload types.CustomPayload }

func (RetryEvent) EventKind() string { return "retry" }

// Adapter is one provider's wire implementation.
type Adapter interface {
	ID() string
	Models() []Model
	Stream(ctx context.Context, req StreamRequest) (<-chan Event, error)
}

// Model describes one model a provider serves, used to build the
// registry's provider id -> model catalog map.
type Model struct {
	ID                string
	Name              string
	ProviderID        string
	ContextLength     int
	MaxOutputTokens   int
	SupportsTools     bool
	SupportsVision    bool
	SupportsReasoning bool
	InputPrice        float64
	OutputPrice       float64
}
