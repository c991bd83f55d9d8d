package session

import (
	"context"

	"github.com/wuhu-dev/wuhu/internal/provider"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// assembled is the output of context assembly: the system prompt and
// message list an Adapter.Stream call needs.
type assembled struct {
	SystemPrompt string
	Messages     []provider.Message
}

// assembleContext walks a session's full transcript and projects it
// into the provider-agnostic message shape, per spec.md §4.5's
// context-assembly rules: collapse anything before the most recent
// compaction into its summary, render display-eligible custom
// messages as synthetic user reminders, and drop any assistant
// tool_call left unresolved by a later execution_stopped marker.
func (a *Actor) assembleContext(ctx context.Context) (assembled, error) {
	entries, err := a.deps.Transcript.Read(ctx, a.id, nil, nil)
	if err != nil {
		return assembled{}, err
	}

	systemPrompt := ""
	var firstKept int64 = 1
	var summary string
	var maxStoppedEntryID int64
	resolved := map[string]bool{}

	for _, e := range entries {
		switch p := e.Payload.(type) {
		case types.Header:
			systemPrompt = p.SystemPrompt
		case types.Compaction:
			firstKept = p.FirstKeptEntry
			summary = p.Summary
		case types.ToolResultMessage:
			resolved[p.ToolCallID] = true
		case types.CustomMessage:
			if p.CustomType == types.CustomTypeExecutionStopped && e.EntryID > maxStoppedEntryID {
				maxStoppedEntryID = e.EntryID
			}
		}
	}

	messages := make([]provider.Message, 0, len(entries))
	if summary != "" {
		messages = append(messages, provider.Message{
			Role:    "user",
			Content: types.ContentList{types.TextContent{Text: summary}},
		})
	}

	for _, e := range entries {
		if e.EntryID < firstKept {
			continue
		}
		switch p := e.Payload.(type) {
		case types.Header, types.SessionSettingsPayload, types.ToolExecution, types.Compaction, types.CustomPayload:
			// not part of the LLM-visible transcript
		case types.UserMessage:
			messages = append(messages, provider.Message{Role: "user", Content: p.Content})
		case types.AssistantMessage:
			content := dropDanglingToolCalls(p.Content, resolved, e.EntryID, maxStoppedEntryID)
			if len(content) == 0 {
				continue
			}
			messages = append(messages, provider.Message{Role: "assistant", Content: content, Model: p.Model})
		case types.ToolResultMessage:
			messages = append(messages, provider.Message{
				Role: "tool", Content: p.Content, ToolCallID: p.ToolCallID, ToolName: p.ToolName,
			})
		case types.CustomMessage:
			if msg, ok := renderCustomMessage(p); ok {
				messages = append(messages, msg)
			}
		}
	}

	return assembled{SystemPrompt: systemPrompt, Messages: messages}, nil
}

// dropDanglingToolCalls removes tool_call content items that have no
// matching tool_result AND were issued before a later
// execution_stopped marker — repair semantics for transcripts where,
// for whatever reason, the synthetic stop tool_results never landed.
func dropDanglingToolCalls(content types.ContentList, resolved map[string]bool, entryID, maxStoppedEntryID int64) types.ContentList {
	laterStop := entryID < maxStoppedEntryID
	if !laterStop {
		return content
	}
	out := make(types.ContentList, 0, len(content))
	for _, item := range content {
		if call, ok := item.(types.ToolCallContent); ok && !resolved[call.ID] {
			continue
		}
		out = append(out, item)
	}
	return out
}

// renderCustomMessage converts a CustomMessage into its synthetic
// user-message projection. All three custom types are prefixed as
// reminders, including async_callback (the system_urgent lane's
// materialization shape), so the model never mistakes out-of-band
// task output for something the human actually typed. Display only
// gates system_reminder/execution_stopped, which exist purely to
// steer the model and can be withheld from context entirely;
// async_callback always reaches context regardless of Display (a UI
// rendering hint, not a context-inclusion one) since it carries the
// actual result of work the model is waiting on.
func renderCustomMessage(p types.CustomMessage) (provider.Message, bool) {
	switch p.CustomType {
	case types.CustomTypeSystemReminder, types.CustomTypeExecutionStopped:
		if !p.Display {
			return provider.Message{}, false
		}
		return provider.Message{Role: "user", Content: prefixSystemReminder(p.Content)}, true
	case types.CustomTypeAsyncCallback:
		return provider.Message{Role: "user", Content: prefixSystemReminder(p.Content)}, true
	default:
		return provider.Message{}, false
	}
}

func prefixSystemReminder(content types.ContentList) types.ContentList {
	out := make(types.ContentList, 0, len(content))
	for _, item := range content {
		if text, ok := item.(types.TextContent); ok {
			text.Text = "system-reminder: " + text.Text
			out = append(out, text)
			continue
		}
		out = append(out, item)
	}
	return out
}

func extractToolCalls(content types.ContentList) []types.ToolCallContent {
	var calls []types.ToolCallContent
	for _, item := range content {
		if call, ok := item.(types.ToolCallContent); ok {
			calls = append(calls, call)
		}
	}
	return calls
}
