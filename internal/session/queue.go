package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wuhu-dev/wuhu/internal/event"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// drainLane materializes every pending item in lane, oldest first,
// returning how many were materialized. Each materialization is
// atomic with its transcript append (storage.QueueStore.Materialize).
func (a *Actor) drainLane(ctx context.Context, lane types.Lane) (int, error) {
	n := 0
	for {
		item, ok, err := a.deps.Queue.DrainCandidate(ctx, a.id, lane)
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		payload, err := lanePayload(lane, item.Payload)
		if err != nil {
			return n, err
		}
		entry, err := a.deps.Queue.Materialize(ctx, a.id, lane, item.ItemID, payload, nil, nowMillis())
		if err != nil {
			return n, err
		}
		a.publishEntry(entry)
		a.publishEvent(laneEventType(lane), item)
		n++
	}
}

func laneEventType(lane types.Lane) event.Type {
	if lane == types.LaneSystemUrgent {
		return event.SystemUrgentQueue
	}
	return event.UserQueue
}

func lanePayload(lane types.Lane, raw json.RawMessage) (types.Payload, error) {
	switch lane {
	case types.LaneSystemUrgent:
		var p types.SystemUrgentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return types.CustomMessage{
			CustomType: types.CustomTypeAsyncCallback,
			Content:    types.ContentList{types.TextContent{Text: p.Text}},
			Details:    p.Data,
			Display:    false,
			Timestamp:  nowMillis(),
		}, nil
	case types.LaneSteer, types.LaneFollowUp:
		var p types.UserQueuePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return types.UserMessage{User: p.User, Content: p.Content, Timestamp: nowMillis()}, nil
	default:
		return nil, fmt.Errorf("session: unknown lane %q", lane)
	}
}

// drainPreTurn runs at the top of the outer loop (spec.md §4.5's
// "loop:" label), draining all three lanes each-until-empty in
// priority order. It is the only checkpoint that drains follow_up.
func (a *Actor) drainPreTurn(ctx context.Context) (bool, error) {
	any := false
	for _, lane := range []types.Lane{types.LaneSystemUrgent, types.LaneSteer, types.LaneFollowUp} {
		n, err := a.drainLane(ctx, lane)
		if err != nil {
			return any, err
		}
		any = any || n > 0
	}
	return any, nil
}

// drainPreToolSystemUrgent runs the system_urgent-only half of the
// pre_tool checkpoint: unlike steer, it is never deferred, since it
// carries no skip-the-round semantics.
func (a *Actor) drainPreToolSystemUrgent(ctx context.Context) error {
	_, err := a.drainLane(ctx, types.LaneSystemUrgent)
	return err
}

// steerPending peeks (without materializing) whether a steer message
// is waiting, used to decide whether the remainder of a tool-call
// round should be skipped.
func (a *Actor) steerPending(ctx context.Context) (bool, error) {
	_, ok, err := a.deps.Queue.DrainCandidate(ctx, a.id, types.LaneSteer)
	return ok, err
}

// drainSteerDeferred materializes every pending steer item, run once
// at the end of a tool-call round so the steered message lands after
// all of that round's skip results (spec.md §4.5 "Queue drain
// policy").
func (a *Actor) drainSteerDeferred(ctx context.Context) error {
	_, err := a.drainLane(ctx, types.LaneSteer)
	return err
}
