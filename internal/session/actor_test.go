package session

import (
	"testing"

	"github.com/wuhu-dev/wuhu/internal/event"
	"github.com/wuhu-dev/wuhu/internal/provider"
	"github.com/wuhu-dev/wuhu/internal/runner"
	"github.com/wuhu-dev/wuhu/internal/tool"
	"github.com/wuhu-dev/wuhu/internal/toolexec"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// TestActor_FullTurnPromptToolCallToIdle exercises one complete turn:
// a user prompt drives a streamed assistant tool call, the tool
// actually runs against a real temp directory, and the actor settles
// back to idle once the call is resolved — without ever touching the
// network or the Go toolchain.
func TestActor_FullTurnPromptToolCallToIdle(t *testing.T) {
	a, ctx := newTestActor(t)

	workDir := t.TempDir()
	a.workDir = workDir
	catalog := tool.DefaultRegistry(workDir)
	a.deps.Tools = toolexec.New(catalog, runner.NewRegistry())
	a.deps.ToolCatalog = catalog
	a.deps.Bus = event.NewBus()

	registry := provider.NewRegistry()
	registry.Register(&fakeAdapter{
		id:     "anthropic",
		models: []provider.Model{{ID: "claude", ProviderID: "anthropic", ContextLength: 200000}},
		events: []provider.Event{
			provider.StartEvent{},
			provider.ToolCallEvent{Call: types.ToolCallContent{ID: "call-1", Name: "ls", Arguments: []byte(`{"path":"."}`)}},
			provider.DoneEvent{Final: types.AssistantMessage{
				Content:    types.ContentList{types.ToolCallContent{ID: "call-1", Name: "ls", Arguments: []byte(`{"path":"."}`)}},
				StopReason: "tool_calls",
			}},
		},
	})
	a.providers = registry

	mustAppend(t, a, ctx, types.Header{SystemPrompt: "be helpful"})
	if _, _, err := a.Prompt(ctx, "alice", types.ContentList{types.TextContent{Text: "list the directory"}}); err != nil {
		t.Fatalf("Prompt: %v", err)
	}

	a.tick(ctx)

	entries, err := a.deps.Transcript.Read(ctx, a.id, nil, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var sawToolResult, sawAssistantToolCall bool
	for _, e := range entries {
		switch p := e.Payload.(type) {
		case types.ToolResultMessage:
			if p.ToolCallID == "call-1" {
				sawToolResult = true
			}
		case types.AssistantMessage:
			for _, item := range p.Content {
				if call, ok := item.(types.ToolCallContent); ok && call.ID == "call-1" {
					sawAssistantToolCall = true
				}
			}
		}
	}
	if !sawAssistantToolCall {
		t.Fatal("expected the assistant message with the tool call to be appended")
	}
	if !sawToolResult {
		t.Fatal("expected a tool_result for call-1 to be appended")
	}

	status, _ := InferStatus(entries)
	if status != types.StatusIdle {
		t.Errorf("expected idle after the tool call resolves, got %q", status)
	}
	if a.currentState() != StateIdle {
		t.Errorf("expected actor state idle, got %q", a.currentState())
	}
}

func TestActor_StopDuringToolBatchSkipsRemainingCalls(t *testing.T) {
	a, ctx := newTestActor(t)
	a.deps.Bus = event.NewBus()

	mustAppend(t, a, ctx, types.Header{})
	assistantEntry := mustAppend(t, a, ctx, types.AssistantMessage{Content: types.ContentList{
		types.ToolCallContent{ID: "call-1", Name: "noop"},
		types.ToolCallContent{ID: "call-2", Name: "noop"},
	}})

	a.mu.Lock()
	a.stopRequested = true
	a.mu.Unlock()

	stopped, err := a.executeToolBatch(ctx, types.Session{ID: a.id}, assistantEntry, []types.ToolCallContent{
		{ID: "call-1", Name: "noop"},
		{ID: "call-2", Name: "noop"},
	})
	if err != nil {
		t.Fatalf("executeToolBatch: %v", err)
	}
	if !stopped {
		t.Fatal("expected executeToolBatch to report stopped")
	}
	if a.currentState() != StateStopped {
		t.Errorf("expected actor state stopped, got %q", a.currentState())
	}

	entries, err := a.deps.Transcript.Read(ctx, a.id, nil, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	results := map[string]types.ToolResultMessage{}
	for _, e := range entries {
		if tr, ok := e.Payload.(types.ToolResultMessage); ok {
			results[tr.ToolCallID] = tr
		}
	}
	for _, id := range []string{"call-1", "call-2"} {
		tr, ok := results[id]
		if !ok {
			t.Fatalf("expected a repaired tool_result for %s, found none", id)
		}
		if !tr.IsError {
			t.Errorf("%s: expected repaired tool_result to be an error", id)
		}
		if text := firstText(tr.Content); text != "Execution stopped by user" {
			t.Errorf("%s: expected repair message %q, got %q", id, "Execution stopped by user", text)
		}
	}
}

// TestActor_SteerPendingSkipsRestOfBatch exercises the other half of
// spec.md §4.5 step 2: once a queued steer message is seen at a call
// boundary, every remaining call in the round gets the distinct
// "Skipped due to queued user message" result rather than the
// "Execution stopped by user" repair a true stop produces.
func TestActor_SteerPendingSkipsRestOfBatch(t *testing.T) {
	a, ctx := newTestActor(t)
	a.deps.Bus = event.NewBus()

	mustAppend(t, a, ctx, types.Header{})
	assistantEntry := mustAppend(t, a, ctx, types.AssistantMessage{Content: types.ContentList{
		types.ToolCallContent{ID: "call-1", Name: "noop"},
		types.ToolCallContent{ID: "call-2", Name: "noop"},
	}})

	enqueue(t, a, types.LaneSteer, types.UserQueuePayload{User: "alice", Content: types.ContentList{types.TextContent{Text: "actually, do this instead"}}})

	calls := []types.ToolCallContent{
		{ID: "call-1", Name: "noop"},
		{ID: "call-2", Name: "noop"},
	}
	if _, err := a.executeToolBatch(ctx, types.Session{ID: a.id}, assistantEntry, calls); err != nil {
		t.Fatalf("executeToolBatch: %v", err)
	}

	entries, err := a.deps.Transcript.Read(ctx, a.id, nil, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	results := map[string]types.ToolResultMessage{}
	var lastPayload any
	for _, e := range entries {
		if tr, ok := e.Payload.(types.ToolResultMessage); ok {
			results[tr.ToolCallID] = tr
		}
		lastPayload = e.Payload
	}
	for _, id := range []string{"call-1", "call-2"} {
		tr, ok := results[id]
		if !ok {
			t.Fatalf("expected a skip tool_result for %s, found none", id)
		}
		if !tr.IsError {
			t.Errorf("%s: expected skip tool_result to be an error", id)
		}
		if text := firstText(tr.Content); text != "Skipped due to queued user message" {
			t.Errorf("%s: expected skip message %q, got %q", id, "Skipped due to queued user message", text)
		}
	}
	if _, ok := lastPayload.(types.UserMessage); !ok {
		t.Fatalf("expected the deferred steer message to materialize last, got %T", lastPayload)
	}
}

func firstText(content types.ContentList) string {
	for _, c := range content {
		if t, ok := c.(types.TextContent); ok {
			return t.Text
		}
	}
	return ""
}
