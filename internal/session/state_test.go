package session

import (
	"testing"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

func entryWith(id int64, payload types.Payload) types.Entry {
	return types.Entry{EntryID: id, Payload: payload}
}

func TestInferStatus_IdleOnEmptyTranscript(t *testing.T) {
	status, pending := InferStatus(nil)
	if status != types.StatusIdle {
		t.Errorf("expected idle, got %q", status)
	}
	if pending != nil {
		t.Errorf("expected no pending ids, got %v", pending)
	}
}

func TestInferStatus_ExecutingOnTrailingUserMessage(t *testing.T) {
	entries := []types.Entry{
		entryWith(1, types.Header{}),
		entryWith(2, types.UserMessage{User: "alice"}),
	}
	status, _ := InferStatus(entries)
	if status != types.StatusExecuting {
		t.Errorf("expected executing, got %q", status)
	}
}

func TestInferStatus_ExecutingOnUnresolvedToolCall(t *testing.T) {
	entries := []types.Entry{
		entryWith(1, types.Header{}),
		entryWith(2, types.UserMessage{User: "alice"}),
		entryWith(3, types.AssistantMessage{Content: types.ContentList{
			types.ToolCallContent{ID: "call-1", Name: "read"},
		}}),
	}
	status, pending := InferStatus(entries)
	if status != types.StatusExecuting {
		t.Errorf("expected executing, got %q", status)
	}
	if len(pending) != 1 || pending[0] != "call-1" {
		t.Errorf("expected pending [call-1], got %v", pending)
	}
}

func TestInferStatus_IdleOnceToolCallResolved(t *testing.T) {
	entries := []types.Entry{
		entryWith(1, types.Header{}),
		entryWith(2, types.UserMessage{User: "alice"}),
		entryWith(3, types.AssistantMessage{Content: types.ContentList{
			types.ToolCallContent{ID: "call-1", Name: "read"},
		}}),
		entryWith(4, types.ToolResultMessage{ToolCallID: "call-1"}),
		entryWith(5, types.AssistantMessage{Content: types.ContentList{
			types.TextContent{Text: "done"},
		}}),
	}
	status, _ := InferStatus(entries)
	if status != types.StatusIdle {
		t.Errorf("expected idle, got %q", status)
	}
}

func TestInferStatus_StoppedOnTrailingExecutionStopped(t *testing.T) {
	entries := []types.Entry{
		entryWith(1, types.Header{}),
		entryWith(2, types.UserMessage{User: "alice"}),
		entryWith(3, types.AssistantMessage{Content: types.ContentList{
			types.ToolCallContent{ID: "call-1", Name: "read"},
		}}),
		entryWith(4, types.CustomMessage{CustomType: types.CustomTypeExecutionStopped, Display: true}),
	}
	status, pending := InferStatus(entries)
	if status != types.StatusStopped {
		t.Errorf("expected stopped, got %q", status)
	}
	if pending != nil {
		t.Errorf("expected no pending ids after stop clears them, got %v", pending)
	}
}

func TestInferStatus_ExecutingResumesAfterStopThenNewPrompt(t *testing.T) {
	entries := []types.Entry{
		entryWith(1, types.Header{}),
		entryWith(2, types.CustomMessage{CustomType: types.CustomTypeExecutionStopped, Display: true}),
		entryWith(3, types.UserMessage{User: "alice"}),
	}
	status, _ := InferStatus(entries)
	if status != types.StatusExecuting {
		t.Errorf("expected executing, got %q", status)
	}
}
