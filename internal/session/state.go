package session

import "github.com/wuhu-dev/wuhu/pkg/types"

// State is the actor's in-memory processing state. It is never
// persisted directly; types.Status is the externally visible
// projection of it (see InferStatus).
type State string

const (
	StateIdle       State = "idle"
	StateDrafting   State = "drafting"
	StateToolBatch  State = "tool_batch"
	StateCompacting State = "compacting"
	StateStopped    State = "stopped"
)

// InferStatus derives a session's execution status from its
// transcript alone, per the "execution-state inference" rules: an
// assistant tool_call left unresolved (and not superseded by a later
// execution_stopped marker) or a trailing user message with no
// assistant reply both mean executing; a trailing execution_stopped
// marker means stopped; anything else means idle.
func InferStatus(entries []types.Entry) (types.Status, []string) {
	pending := map[string]bool{}
	pendingOrder := make([]string, 0, 4)
	trailing := ""

	for _, e := range entries {
		switch p := e.Payload.(type) {
		case types.UserMessage:
			trailing = "user"
		case types.AssistantMessage:
			trailing = "assistant"
			for _, item := range p.Content {
				if call, ok := item.(types.ToolCallContent); ok {
					if !pending[call.ID] {
						pendingOrder = append(pendingOrder, call.ID)
					}
					pending[call.ID] = true
				}
			}
		case types.ToolResultMessage:
			if pending[p.ToolCallID] {
				delete(pending, p.ToolCallID)
			}
		case types.CustomMessage:
			if p.CustomType == types.CustomTypeExecutionStopped {
				trailing = "stopped"
				pending = map[string]bool{}
				pendingOrder = nil
			}
		}
	}

	var ids []string
	for _, id := range pendingOrder {
		if pending[id] {
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		return types.StatusExecuting, ids
	}
	if trailing == "user" {
		return types.StatusExecuting, nil
	}
	if trailing == "stopped" {
		return types.StatusStopped, nil
	}
	return types.StatusIdle, nil
}
