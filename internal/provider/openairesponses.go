package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

const openAIDefaultBaseURL = "https://api.openai.com"

// openaiContentPart is one block of a message input/output item.
type openaiContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// openaiInputItem covers every item kind the Responses API's input[]
// array accepts: message, function_call, function_call_output, and
// reasoning (replayed verbatim so the model resumes its chain).
type openaiInputItem struct {
	Type    string              `json:"type"`
	Role    string              `json:"role,omitempty"`
	Content []openaiContentPart `json:"content,omitempty"`

	// function_call / function_call_output
	ID        string `json:"id,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`

	// reasoning
	EncryptedContent string              `json:"encrypted_content,omitempty"`
	Summary          []openaiContentPart `json:"summary,omitempty"`
}

type openaiToolDef struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type openaiRequest struct {
	Model                string            `json:"model"`
	Input                []openaiInputItem `json:"input"`
	Instructions         string            `json:"instructions,omitempty"`
	Tools                []openaiToolDef   `json:"tools,omitempty"`
	Stream               bool              `json:"stream"`
	MaxOutputTokens      int               `json:"max_output_tokens,omitempty"`
	PromptCacheKey       string            `json:"prompt_cache_key,omitempty"`
	PromptCacheRetention string            `json:"prompt_cache_retention,omitempty"`
}

// responsesVariant is the piece of behavior that differs between
// plain OpenAI Responses and the Codex backend: endpoint, extra
// headers, and request-body additions.
type responsesVariant struct {
	endpoint     func() string
	extraHeaders func(req StreamRequest, apiKey string) map[string]string
	mutateBody   func(body *openaiRequest, req StreamRequest)
}

// responsesAdapter implements both OpenAI Responses and Codex against
// the same frame shape, differing only through variant.
type responsesAdapter struct {
	id         string
	apiKey     string
	maxRetries int
	client     *http.Client
	models     []Model
	emit       func(types.CustomPayload)
	variant    responsesVariant
}

func (a *responsesAdapter) ID() string      { return a.id }
func (a *responsesAdapter) Models() []Model { return a.models }

// OpenAIResponsesAdapter talks to POST /v1/responses.
type OpenAIResponsesAdapter struct{ *responsesAdapter }

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	Emit       func(types.CustomPayload)
}

func NewOpenAIResponsesAdapter(cfg OpenAIConfig) *OpenAIResponsesAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	a := newResponsesAdapter("openai", cfg.APIKey, cfg.MaxRetries, cfg.Emit, openAIModels(), responsesVariant{
		endpoint: func() string { return baseURL + "/v1/responses" },
		extraHeaders: func(req StreamRequest, apiKey string) map[string]string {
			return map[string]string{"Authorization": "Bearer " + apiKey}
		},
	})
	return &OpenAIResponsesAdapter{a}
}

func newResponsesAdapter(id, apiKey string, maxRetries int, emit func(types.CustomPayload), models []Model, variant responsesVariant) *responsesAdapter {
	if maxRetries == 0 {
		maxRetries = 3
	}
	if emit == nil {
		emit = func(types.CustomPayload) {}
	}
	return &responsesAdapter{
		id:         id,
		apiKey:     apiKey,
		maxRetries: maxRetries,
		client:     &http.Client{Timeout: 5 * time.Minute},
		models:     models,
		emit:       emit,
		variant:    variant,
	}
}

func (a *responsesAdapter) buildRequest(req StreamRequest) openaiRequest {
	var input []openaiInputItem

	for _, m := range req.Messages {
		switch m.Role {
		case "tool":
			var out bytes.Buffer
			for _, item := range m.Content {
				if tc, ok := item.(types.TextContent); ok {
					out.WriteString(tc.Text)
				}
			}
			input = append(input, openaiInputItem{Type: "function_call_output", CallID: m.ToolCallID, Output: out.String()})
		case "assistant":
			input = append(input, openaiInputItemsForAssistant(m, req.Model)...)
		default:
			parts := make([]openaiContentPart, 0, len(m.Content))
			for _, item := range m.Content {
				if tc, ok := item.(types.TextContent); ok {
					parts = append(parts, openaiContentPart{Type: "input_text", Text: tc.Text})
				}
			}
			input = append(input, openaiInputItem{Type: "message", Role: m.Role, Content: parts})
		}
	}

	tools := make([]openaiToolDef, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, openaiToolDef{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}

	body := openaiRequest{
		Model:           req.Model,
		Input:           input,
		Instructions:    req.SystemPrompt,
		Tools:           tools,
		Stream:          true,
		MaxOutputTokens: req.MaxTokens,
	}
	if a.variant.mutateBody != nil {
		a.variant.mutateBody(&body, req)
	}
	return body
}

// openaiInputItemsForAssistant replays an assistant turn's content as
// input items: text as an output message, reasoning items verbatim,
// tool calls as function_call items. Per spec.md §4.3, a function_call
// item's id is omitted when it was recorded under a different model,
// since the provider rejects foreign item ids.
func openaiInputItemsForAssistant(m Message, currentModel string) []openaiInputItem {
	var items []openaiInputItem
	var textParts []openaiContentPart

	for _, item := range m.Content {
		switch c := item.(type) {
		case types.TextContent:
			textParts = append(textParts, openaiContentPart{Type: "output_text", Text: c.Text})
		case types.ReasoningContent:
			items = append(items, openaiInputItem{
				Type:             "reasoning",
				ID:               c.ID,
				EncryptedContent: c.EncryptedContent,
				Summary:          []openaiContentPart{{Type: "summary_text", Text: c.Summary}},
			})
		case types.ToolCallContent:
			fc := openaiInputItem{Type: "function_call", CallID: c.ID, Name: c.Name, Arguments: string(c.Arguments)}
			if m.Model == currentModel {
				fc.ID = c.ID
			}
			items = append(items, fc)
		}
	}

	if len(textParts) > 0 {
		items = append([]openaiInputItem{{Type: "message", Role: "assistant", Content: textParts}}, items...)
	}
	return items
}

func (a *responsesAdapter) Stream(ctx context.Context, req StreamRequest) (<-chan Event, error) {
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		err := withRetry(ctx, a.maxRetries, a.id+".responses", a.emit, func() error {
			return a.streamOnce(ctx, req, out)
		})
		if err != nil {
			out <- DoneEvent{Final: types.AssistantMessage{Provider: a.id, Model: req.Model, StopReason: "error", ErrorMessage: err.Error(), Timestamp: nowStamp()}}
		}
	}()

	return out, nil
}

type pendingFunctionCall struct {
	callID string
	name   string
	args   bytes.Buffer
}

func (a *responsesAdapter) streamOnce(ctx context.Context, req StreamRequest, out chan<- Event) error {
	body, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return wuhuerr.New(wuhuerr.Decoding, "marshal responses request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.variant.endpoint(), bytes.NewReader(body))
	if err != nil {
		return wuhuerr.Wrap(wuhuerr.Transport, err, "build responses request")
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("accept", "text/event-stream")
	if a.variant.extraHeaders != nil {
		for k, v := range a.variant.extraHeaders(req, a.apiKey) {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := doRequest(a.client, httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	partial := types.AssistantMessage{Provider: a.id, Model: req.Model, Timestamp: nowStamp()}
	out <- StartEvent{Partial: partial}

	calls := make(map[string]*pendingFunctionCall)
	scanner := newSSEScanner(resp.Body)

	for {
		ev, ok := scanner.Next()
		if !ok {
			break
		}
		var frame struct {
			Type  string `json:"type"`
			Delta string `json:"delta"`
			Item  struct {
				Type             string `json:"type"`
				ID               string `json:"id"`
				CallID           string `json:"call_id"`
				Name             string `json:"name"`
				Arguments        string `json:"arguments"`
				EncryptedContent string `json:"encrypted_content"`
			} `json:"item"`
			ItemID   string `json:"item_id"`
			Response struct {
				Status string `json:"status"`
				Usage  struct {
					InputTokens  int `json:"input_tokens"`
					OutputTokens int `json:"output_tokens"`
					TotalTokens  int `json:"total_tokens"`
				} `json:"usage"`
			} `json:"response"`
		}
		if err := json.Unmarshal(ev.Data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "response.output_text.delta":
			partial.Content = append(partial.Content, types.TextContent{Text: frame.Delta})
			out <- TextDeltaEvent{Delta: frame.Delta, Partial: partial}
		case "response.reasoning_summary_text.delta":
			out <- ReasoningDeltaEvent{Delta: frame.Delta, Partial: partial}
		case "response.output_item.added":
			if frame.Item.Type == "function_call" {
				calls[frame.Item.ID] = &pendingFunctionCall{callID: frame.Item.CallID, name: frame.Item.Name}
			}
		case "response.function_call_arguments.delta":
			if pc, ok := calls[frame.ItemID]; ok {
				pc.args.WriteString(frame.Delta)
			}
		case "response.output_item.done":
			switch frame.Item.Type {
			case "function_call":
				if pc, ok := calls[frame.Item.ID]; ok {
					call := types.ToolCallContent{ID: pc.callID, Name: pc.name, Arguments: json.RawMessage(pc.args.String())}
					partial.Content = append(partial.Content, call)
					out <- ToolCallEvent{Call: call, Partial: partial}
				}
			case "reasoning":
				partial.Content = append(partial.Content, types.ReasoningContent{ID: frame.Item.ID, EncryptedContent: frame.Item.EncryptedContent})
			}
		case "response.completed", "response.incomplete", "response.failed":
			out <- UsageEvent{Input: frame.Response.Usage.InputTokens, Output: frame.Response.Usage.OutputTokens, Total: frame.Response.Usage.TotalTokens}
			partial.StopReason = normalizeResponsesStop(frame.Type, len(calls) > 0)
		}
	}

	if err := scanner.Err(); err != nil {
		return wuhuerr.Retryable(wuhuerr.Transport, err, "responses sse read")
	}

	partial.Timestamp = nowStamp()
	out <- DoneEvent{Final: partial}
	return nil
}

func normalizeResponsesStop(frameType string, hasToolCalls bool) string {
	switch frameType {
	case "response.completed":
		if hasToolCalls {
			return "tool_calls"
		}
		return "stop"
	case "response.incomplete":
		return "length"
	default:
		return "error"
	}
}

func openAIModels() []Model {
	return []Model{
		{ID: "gpt-5", Name: "GPT-5", ProviderID: "openai", ContextLength: 272000, MaxOutputTokens: 128000, SupportsTools: true, SupportsVision: true, SupportsReasoning: true, InputPrice: 1.25, OutputPrice: 10.0},
		{ID: "gpt-5-mini", Name: "GPT-5 Mini", ProviderID: "openai", ContextLength: 272000, MaxOutputTokens: 128000, SupportsTools: true, SupportsVision: true, SupportsReasoning: true, InputPrice: 0.25, OutputPrice: 2.0},
		{ID: "gpt-4o", Name: "GPT-4o", ProviderID: "openai", ContextLength: 128000, MaxOutputTokens: 16384, SupportsTools: true, SupportsVision: true, InputPrice: 2.5, OutputPrice: 10.0},
	}
}
