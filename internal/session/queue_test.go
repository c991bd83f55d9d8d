package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/wuhu-dev/wuhu/pkg/types"
)

func enqueue(t *testing.T, a *Actor, lane types.Lane, payload any) types.QueueItem {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	item, err := a.deps.Queue.Enqueue(context.Background(), a.id, lane, data, 1)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return item
}

func TestDrainPreTurn_DrainsInPriorityOrder(t *testing.T) {
	a, ctx := newTestActor(t)
	mustAppend(t, a, ctx, types.Header{})

	enqueue(t, a, types.LaneFollowUp, types.UserQueuePayload{User: "alice", Content: types.ContentList{types.TextContent{Text: "follow up"}}})
	enqueue(t, a, types.LaneSteer, types.UserQueuePayload{User: "alice", Content: types.ContentList{types.TextContent{Text: "steer"}}})
	enqueue(t, a, types.LaneSystemUrgent, types.SystemUrgentPayload{Source: types.SourceAsyncBashCallback, Text: "async done"})

	any, err := a.drainPreTurn(ctx)
	if err != nil {
		t.Fatalf("drainPreTurn: %v", err)
	}
	if !any {
		t.Fatal("expected drainPreTurn to report materialized work")
	}

	entries, err := a.deps.Transcript.Read(ctx, a.id, nil, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 4 { // header + 3 materialized
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	cm, ok := entries[1].Payload.(types.CustomMessage)
	if !ok || cm.CustomType != types.CustomTypeAsyncCallback {
		t.Errorf("expected system_urgent to materialize first, got %+v", entries[1].Payload)
	}
	um1, ok := entries[2].Payload.(types.UserMessage)
	if !ok || um1.Content[0].(types.TextContent).Text != "steer" {
		t.Errorf("expected steer to materialize second, got %+v", entries[2].Payload)
	}
	um2, ok := entries[3].Payload.(types.UserMessage)
	if !ok || um2.Content[0].(types.TextContent).Text != "follow up" {
		t.Errorf("expected follow_up to materialize last, got %+v", entries[3].Payload)
	}
}

func TestSteerDeferred_MaterializesAfterSkipResultsAreAppended(t *testing.T) {
	a, ctx := newTestActor(t)
	mustAppend(t, a, ctx, types.Header{})

	enqueue(t, a, types.LaneSteer, types.UserQueuePayload{User: "alice", Content: types.ContentList{types.TextContent{Text: "steer me"}}})

	pending, err := a.steerPending(ctx)
	if err != nil {
		t.Fatalf("steerPending: %v", err)
	}
	if !pending {
		t.Fatal("expected steer item to be pending")
	}

	// Simulate a round's skip-result append happening before the
	// steer item is materialized.
	mustAppend(t, a, ctx, types.ToolResultMessage{ToolCallID: "call-1", ToolName: "bash"})

	if err := a.drainSteerDeferred(ctx); err != nil {
		t.Fatalf("drainSteerDeferred: %v", err)
	}

	entries, err := a.deps.Transcript.Read(ctx, a.id, nil, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	last := entries[len(entries)-1]
	if _, ok := last.Payload.(types.UserMessage); !ok {
		t.Fatalf("expected the steered message to land last, got %T", last.Payload)
	}
}

func TestDrainPreToolSystemUrgent_IgnoresOtherLanes(t *testing.T) {
	a, ctx := newTestActor(t)
	mustAppend(t, a, ctx, types.Header{})

	enqueue(t, a, types.LaneSteer, types.UserQueuePayload{User: "alice"})
	enqueue(t, a, types.LaneSystemUrgent, types.SystemUrgentPayload{Source: types.SourceOther, Text: "urgent"})

	if err := a.drainPreToolSystemUrgent(ctx); err != nil {
		t.Fatalf("drainPreToolSystemUrgent: %v", err)
	}

	pending, err := a.steerPending(ctx)
	if err != nil {
		t.Fatalf("steerPending: %v", err)
	}
	if !pending {
		t.Fatal("expected steer lane to remain untouched")
	}
}
