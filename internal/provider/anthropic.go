package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

const anthropicDefaultBaseURL = "https://api.anthropic.com"
const anthropicVersion = "2023-06-01"

// AnthropicAdapter talks to the Anthropic Messages API directly over
// SSE, bypassing the SDK's own HTTP client so cache-control placement
// stays under this package's control.
type AnthropicAdapter struct {
	apiKey     string
	baseURL    string
	maxRetries int
	client     *http.Client
	models     []Model
	emit       func(types.CustomPayload)
}

type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	// Emit receives llm.retry/llm.give_up payloads produced during a
	// Stream call; the session actor wires this to its transcript append.
	Emit func(types.CustomPayload)
}

func NewAnthropicAdapter(cfg AnthropicConfig) *AnthropicAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	emit := cfg.Emit
	if emit == nil {
		emit = func(types.CustomPayload) {}
	}
	return &AnthropicAdapter{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxRetries: maxRetries,
		client:     &http.Client{Timeout: 5 * time.Minute},
		models:     anthropicModels(),
		emit:       emit,
	}
}

func (a *AnthropicAdapter) ID() string      { return "anthropic" }
func (a *AnthropicAdapter) Models() []Model { return a.models }

// anthropicMessage is the wire shape of one entry in the request's
// messages array.
type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

// anthropicContent is a tagged union covering the block kinds this
// adapter sends and receives: text, tool_use, tool_result, thinking.
type anthropicContent struct {
	Type         string              `json:"type"`
	Text         string              `json:"text,omitempty"`
	ID           string              `json:"id,omitempty"`
	Name         string              `json:"name,omitempty"`
	Input        json.RawMessage     `json:"input,omitempty"`
	ToolUseID    string              `json:"tool_use_id,omitempty"`
	Content      string              `json:"content,omitempty"`
	Signature    string              `json:"signature,omitempty"`
	CacheControl *anthropicCacheCtrl `json:"cache_control,omitempty"`
}

type anthropicCacheCtrl struct {
	Type string `json:"type"`
}

type anthropicRequest struct {
	Model     string                 `json:"model"`
	MaxTokens int                    `json:"max_tokens"`
	System    []anthropicContent     `json:"system,omitempty"`
	Messages  []anthropicMessage     `json:"messages"`
	Tools     []anthropicToolDef     `json:"tools,omitempty"`
	Stream    bool                   `json:"stream"`
	Temperature *float64             `json:"temperature,omitempty"`
}

type anthropicToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

func (a *AnthropicAdapter) buildRequest(req StreamRequest) anthropicRequest {
	ephemeral := &anthropicCacheCtrl{Type: "ephemeral"}

	system := []anthropicContent{}
	if req.SystemPrompt != "" {
		block := anthropicContent{Type: "text", Text: req.SystemPrompt}
		if req.CacheMode == CacheModeAutomatic || req.CacheMode == CacheModeExplicitBreakpoint {
			block.CacheControl = ephemeral
		}
		system = append(system, block)
	}

	messages := make([]anthropicMessage, 0, len(req.Messages))
	lastUserIdx := -1
	for i, m := range req.Messages {
		if m.Role == "user" {
			lastUserIdx = i
		}
	}

	for i, m := range req.Messages {
		role := m.Role
		if role == "tool" {
			role = "user"
		}
		blocks := anthropicContentFromMessage(m)
		if req.CacheMode == CacheModeExplicitBreakpoint && i == lastUserIdx && len(blocks) > 0 {
			blocks[len(blocks)-1].CacheControl = ephemeral
		}
		messages = append(messages, anthropicMessage{Role: role, Content: blocks})
	}

	tools := make([]anthropicToolDef, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, anthropicToolDef{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}

	var temp *float64
	if req.Temperature > 0 {
		temp = &req.Temperature
	}

	return anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      system,
		Messages:    messages,
		Tools:       tools,
		Stream:      true,
		Temperature: temp,
	}
}

func anthropicContentFromMessage(m Message) []anthropicContent {
	var blocks []anthropicContent
	if m.Role == "tool" {
		inner := make([]anthropicContent, 0, len(m.Content))
		for _, item := range m.Content {
			if tc, ok := item.(types.TextContent); ok {
				inner = append(inner, anthropicContent{Type: "text", Text: tc.Text})
			}
		}
		text, _ := json.Marshal(inner)
		return []anthropicContent{{Type: "tool_result", ToolUseID: m.ToolCallID, Content: string(text)}}
	}

	for _, item := range m.Content {
		switch c := item.(type) {
		case types.TextContent:
			blocks = append(blocks, anthropicContent{Type: "text", Text: c.Text})
		case types.ToolCallContent:
			blocks = append(blocks, anthropicContent{Type: "tool_use", ID: c.ID, Name: c.Name, Input: c.Arguments})
		case types.ReasoningContent:
			blocks = append(blocks, anthropicContent{Type: "thinking", Text: c.Summary, Signature: c.Signature})
		}
	}
	return blocks
}

// Stream implements Adapter.
func (a *AnthropicAdapter) Stream(ctx context.Context, req StreamRequest) (<-chan Event, error) {
	out := make(chan Event, 16)

	go func() {
		defer close(out)

		err := withRetry(ctx, a.maxRetries, "anthropic.messages", a.emit, func() error {
			return a.streamOnce(ctx, req, out)
		})
		if err != nil {
			out <- DoneEvent{Final: types.AssistantMessage{
				Provider:     a.ID(),
				Model:        req.Model,
				StopReason:   "error",
				ErrorMessage: err.Error(),
				Timestamp:    nowStamp(),
			}}
		}
	}()

	return out, nil
}

func (a *AnthropicAdapter) streamOnce(ctx context.Context, req StreamRequest, out chan<- Event) error {
	body, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return wuhuerr.New(wuhuerr.Decoding, "marshal anthropic request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return wuhuerr.Wrap(wuhuerr.Transport, err, "build anthropic request")
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("accept", "text/event-stream")

	resp, err := doRequest(a.client, httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	partial := types.AssistantMessage{Provider: a.ID(), Model: req.Model, Timestamp: nowStamp()}
	out <- StartEvent{Partial: partial}

	var pendingToolInput bytes.Buffer
	var pendingToolIdx = -1
	var pendingToolID, pendingToolName string
	scanner := newSSEScanner(resp.Body)

	for {
		ev, ok := scanner.Next()
		if !ok {
			break
		}
		var frame struct {
			Type         string              `json:"type"`
			Delta        json.RawMessage     `json:"delta"`
			ContentBlock *anthropicContent   `json:"content_block"`
			Usage        *anthropicsdk.Usage `json:"usage"`
			Message      *struct {
				Usage *anthropicsdk.Usage `json:"usage"`
			} `json:"message"`
			Index int `json:"index"`
		}
		if err := json.Unmarshal(ev.Data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "content_block_start":
			if frame.ContentBlock != nil && frame.ContentBlock.Type == "tool_use" {
				pendingToolIdx = frame.Index
				pendingToolID = frame.ContentBlock.ID
				pendingToolName = frame.ContentBlock.Name
				pendingToolInput.Reset()
			}
		case "content_block_delta":
			var d struct {
				Type        string `json:"type"`
				Text        string `json:"text"`
				PartialJSON string `json:"partial_json"`
				Thinking    string `json:"thinking"`
			}
			_ = json.Unmarshal(frame.Delta, &d)
			switch d.Type {
			case "text_delta":
				partial.Content = append(partial.Content, types.TextContent{Text: d.Text})
				out <- TextDeltaEvent{Delta: d.Text, Partial: partial}
			case "thinking_delta":
				out <- ReasoningDeltaEvent{Delta: d.Thinking, Partial: partial}
			case "input_json_delta":
				if frame.Index == pendingToolIdx {
					pendingToolInput.WriteString(d.PartialJSON)
				}
			}
		case "content_block_stop":
			if frame.Index == pendingToolIdx {
				call := types.ToolCallContent{ID: pendingToolID, Name: pendingToolName, Arguments: json.RawMessage(pendingToolInput.String())}
				partial.Content = append(partial.Content, call)
				out <- ToolCallEvent{Call: call, Partial: partial}
				pendingToolIdx = -1
			}
		case "message_delta":
			if frame.Usage != nil {
				out <- UsageEvent{Input: int(frame.Usage.InputTokens), Output: int(frame.Usage.OutputTokens), CacheRead: int(frame.Usage.CacheReadInputTokens)}
			}
			var d struct {
				StopReason string `json:"stop_reason"`
			}
			_ = json.Unmarshal(frame.Delta, &d)
			if d.StopReason != "" {
				partial.StopReason = normalizeAnthropicStop(d.StopReason)
			}
		case "message_start":
			if frame.Message != nil && frame.Message.Usage != nil {
				out <- UsageEvent{Input: int(frame.Message.Usage.InputTokens), CacheRead: int(frame.Message.Usage.CacheReadInputTokens)}
			}
		case "error":
			return wuhuerr.Retryable(wuhuerr.Provider, fmt.Errorf("anthropic stream error: %s", ev.Data), "anthropic sse error event")
		}
	}

	if err := scanner.Err(); err != nil {
		return wuhuerr.Retryable(wuhuerr.Transport, err, "anthropic sse read")
	}

	partial.Timestamp = nowStamp()
	out <- DoneEvent{Final: partial}
	return nil
}

func normalizeAnthropicStop(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}

func anthropicModels() []Model {
	return []Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ProviderID: "anthropic", ContextLength: 200000, MaxOutputTokens: 64000, SupportsTools: true, SupportsVision: true, InputPrice: 3.0, OutputPrice: 15.0},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ProviderID: "anthropic", ContextLength: 200000, MaxOutputTokens: 32000, SupportsTools: true, SupportsVision: true, SupportsReasoning: true, InputPrice: 15.0, OutputPrice: 75.0},
		{ID: "claude-haiku-4-5-20251001", Name: "Claude 4.5 Haiku", ProviderID: "anthropic", ContextLength: 200000, MaxOutputTokens: 8192, SupportsTools: true, SupportsVision: true, InputPrice: 0.8, OutputPrice: 4.0},
	}
}
