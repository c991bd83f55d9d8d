package session

import (
	"context"
	"fmt"

	"github.com/wuhu-dev/wuhu/internal/event"
	"github.com/wuhu-dev/wuhu/internal/provider"
	"github.com/wuhu-dev/wuhu/internal/tool"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// tick is the agent loop's outer "loop:" label (spec.md §4.5): drain
// the three lanes in priority order, derive status from the
// transcript, and either run turns until idle again or return because
// a stop has fully unwound.
func (a *Actor) tick(parent context.Context) {
	a.toolRounds = 0
	for {
		if _, err := a.drainPreTurn(parent); err != nil {
			a.log.Error().Err(err).Msg("drain pre_turn")
			return
		}

		entries, err := a.deps.Transcript.Read(parent, a.id, nil, nil)
		if err != nil {
			a.log.Error().Err(err).Msg("read transcript")
			return
		}

		status, _ := InferStatus(entries)
		if status != types.StatusExecuting {
			a.applyPendingSettings(parent)
			a.setState(StateIdle)
			_ = a.deps.Transcript.UpdateStatus(parent, a.id, status)
			a.publishEvent(event.StatusUpdated, status)
			return
		}

		if err := a.reconcileToolExecutions(parent, entries); err != nil {
			a.log.Error().Err(err).Msg("reconcile tool executions")
			return
		}

		a.setState(StateDrafting)
		_ = a.deps.Transcript.UpdateStatus(parent, a.id, types.StatusExecuting)
		a.publishEvent(event.StatusUpdated, types.StatusExecuting)

		turnCtx, cancel := context.WithCancel(parent)
		a.mu.Lock()
		a.cancel = cancel
		a.mu.Unlock()

		stopped, err := a.runTurnOnce(turnCtx)

		cancel()
		a.mu.Lock()
		a.cancel = nil
		a.mu.Unlock()

		if err != nil {
			a.log.Error().Err(err).Msg("turn failed")
			a.setState(StateIdle)
			return
		}
		if stopped {
			return
		}
	}
}

// runTurnOnce assembles context, compacts if needed, streams one
// assistant response, and dispatches its tool calls if any. It
// returns stopped=true once the stop-finalization sequence has run,
// meaning the actor's state is already Stopped and tick should
// return without looping again.
func (a *Actor) runTurnOnce(ctx context.Context) (stopped bool, err error) {
	if a.isStopRequested() {
		return a.finalizeStop(ctx, nil)
	}

	sess, err := a.deps.Transcript.GetSession(ctx, a.id)
	if err != nil {
		return false, err
	}

	adapter, model, err := a.resolveProviderModel(sess)
	if err != nil {
		return false, err
	}

	assembledCtx, err := a.assembleContext(ctx)
	if err != nil {
		return false, err
	}

	if a.shouldCompact(assembledCtx, model.ContextLength) {
		if err := a.compact(ctx, assembledCtx, adapter, model.ID); err != nil {
			a.log.Error().Err(err).Msg("compaction failed, continuing uncompacted")
		} else if assembledCtx, err = a.assembleContext(ctx); err != nil {
			return false, err
		}
	}

	req := provider.StreamRequest{
		Model:        model.ID,
		SystemPrompt: assembledCtx.SystemPrompt,
		Messages:     assembledCtx.Messages,
		Tools:        a.toolSpecs(),
		SessionID:    a.id,
	}

	events, err := adapter.Stream(ctx, req)
	if err != nil {
		return false, err
	}

	final, partial, streamErr := a.accumulate(ctx, events)
	if a.isStopRequested() || ctx.Err() != nil {
		return a.finalizeStop(ctx, coalescePartial(final, partial))
	}
	if streamErr != nil {
		return false, streamErr
	}
	if final == nil {
		final = coalescePartial(final, partial)
	}
	if final == nil {
		return false, fmt.Errorf("session: provider stream closed without a final or partial message")
	}

	assistant := *final
	assistant.Provider = sess.ProviderID
	assistant.Model = model.ID
	assistantEntry, err := a.deps.Transcript.Append(ctx, a.id, assistant, nil, nowMillis())
	if err != nil {
		return false, err
	}
	a.publishEntry(assistantEntry)

	calls := extractToolCalls(assistant.Content)
	if len(calls) == 0 {
		return false, nil
	}

	a.toolRounds++
	if a.toolRounds > maxToolRounds {
		a.log.Warn().Int("rounds", a.toolRounds).Msg("tool round cap exceeded, forcing stop")
		a.mu.Lock()
		a.stopRequested = true
		a.mu.Unlock()
	}

	return a.executeToolBatch(ctx, sess, assistantEntry, calls)
}

// coalescePartial prefers the stream's DoneEvent-derived final
// message, falling back to the last partial observed before the
// stream was interrupted.
func coalescePartial(final, partial *types.AssistantMessage) *types.AssistantMessage {
	if final != nil {
		return final
	}
	return partial
}

// accumulate drains events, publishing an ephemeral stream_began
// before them, a stream_delta for each text delta and stream_ended
// after them (other provider events are not republished), and
// returns the canonical final message (from
// DoneEvent) plus the best partial observed in case the channel
// closed early without one.
func (a *Actor) accumulate(ctx context.Context, events <-chan provider.Event) (final, partial *types.AssistantMessage, err error) {
	a.publishEvent(event.StreamBegan, nil)
	defer func() {
		a.setPartial(nil)
		a.publishEvent(event.StreamEnded, nil)
	}()

	for ev := range events {
		switch e := ev.(type) {
		case provider.StartEvent:
			p := e.Partial
			partial = &p
			a.setPartial(partial)
		case provider.TextDeltaEvent:
			p := e.Partial
			partial = &p
			a.setPartial(partial)
			a.publishEvent(event.StreamDelta, e.Delta)
		case provider.ReasoningDeltaEvent:
			p := e.Partial
			partial = &p
			a.setPartial(partial)
		case provider.ToolCallEvent:
			p := e.Partial
			partial = &p
			a.setPartial(partial)
		case provider.UsageEvent:
			// accounting only; folded into the DoneEvent's Usage by
			// the adapter, nothing to accumulate here.
		case provider.RetryEvent:
			entry, appendErr := a.deps.Transcript.Append(ctx, a.id, e.Payload, nil, nowMillis())
			if appendErr == nil {
				a.publishEntry(entry)
			}
		case provider.DoneEvent:
			f := e.Final
			final = &f
		}
	}
	return final, partial, nil
}

func (a *Actor) setPartial(p *types.AssistantMessage) {
	a.mu.Lock()
	a.partial = p
	a.mu.Unlock()
}

// toolSpecs projects the local tool catalog into the provider-agnostic
// shape. Runner-bound sessions still advertise this same catalog: the
// tool names a model may call are fixed by the built-in set regardless
// of where execution is routed (spec.md §4.4).
func (a *Actor) toolSpecs() []provider.ToolSpec {
	list := a.deps.ToolCatalog.List()
	specs := make([]provider.ToolSpec, 0, len(list))
	for _, t := range list {
		specs = append(specs, provider.ToolSpec{Name: t.ID(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return specs
}

// resolveProviderModel looks up the adapter/model pair a session is
// currently configured for.
func (a *Actor) resolveProviderModel(sess types.Session) (provider.Adapter, provider.Model, error) {
	adapter, err := a.providers.Get(sess.ProviderID)
	if err != nil {
		return nil, provider.Model{}, err
	}
	model, err := a.providers.GetModel(sess.ProviderID, sess.ModelID)
	if err != nil {
		return nil, provider.Model{}, err
	}
	return adapter, model, nil
}

// executeToolBatch runs one assistant message's tool calls in order.
// A system_urgent drain happens before every call; a steer message is
// only peeked at each call boundary (to decide whether to start
// skipping the remainder of the round) and materialized once, after
// the round's last skip result, so the transcript reads "skip, skip,
// skip, then the steered message" rather than interleaved.
func (a *Actor) executeToolBatch(ctx context.Context, sess types.Session, assistantEntry types.Entry, calls []types.ToolCallContent) (stopped bool, err error) {
	skipping := false
	steerWasPending := false

	for _, call := range calls {
		if a.isStopRequested() || ctx.Err() != nil {
			return a.finalizeStop(ctx, nil)
		}

		if err := a.drainPreToolSystemUrgent(ctx); err != nil {
			return false, err
		}

		if !skipping {
			pending, err := a.steerPending(ctx)
			if err != nil {
				return false, err
			}
			if pending {
				skipping = true
				steerWasPending = true
			}
		}

		if skipping {
			result := tool.TextResult("Skipped due to queued user message", true)
			if err := a.appendToolResult(ctx, call, result); err != nil {
				return false, err
			}
			continue
		}

		if err := a.runSingleToolCall(ctx, sess, call); err != nil {
			return false, err
		}
	}

	if steerWasPending {
		if err := a.drainSteerDeferred(ctx); err != nil {
			return false, err
		}
	}

	return false, nil
}

func (a *Actor) runSingleToolCall(ctx context.Context, sess types.Session, call types.ToolCallContent) error {
	startEntry, err := a.deps.Transcript.Append(ctx, a.id, types.ToolExecution{
		Phase: types.ToolExecutionStart, ToolCallID: call.ID, ToolName: call.Name, Arguments: call.Arguments,
	}, nil, nowMillis())
	if err != nil {
		return err
	}
	a.publishEntry(startEntry)

	toolCtx := tool.Context{
		SessionID:  a.id,
		ToolCallID: call.ID,
		WorkDir:    a.workDir,
		AbortCh:    ctx.Done(),
		OnAsyncComplete: func(taskID string, payload types.SystemUrgentPayload) {
			_ = a.enqueueSystemUrgent(context.Background(), payload)
		},
	}

	result, execErr := a.deps.Tools.Execute(ctx, sess, toolCtx, call.Name, call.Arguments)
	if execErr != nil {
		result = tool.TextResult(fmt.Sprintf("tool %q failed: %v", call.Name, execErr), true)
	}

	endEntry, err := a.deps.Transcript.Append(ctx, a.id, types.ToolExecution{
		Phase: types.ToolExecutionEnd, ToolCallID: call.ID, ToolName: call.Name,
		Result: resultJSON(result), IsError: result.IsError,
	}, nil, nowMillis())
	if err != nil {
		return err
	}
	a.publishEntry(endEntry)

	return a.appendToolResult(ctx, call, result)
}

func (a *Actor) appendToolResult(ctx context.Context, call types.ToolCallContent, result *tool.Result) error {
	entry, err := a.deps.Transcript.Append(ctx, a.id, types.ToolResultMessage{
		ToolCallID: call.ID, ToolName: call.Name, Content: result.Content, Details: result.Details, IsError: result.IsError, Timestamp: nowMillis(),
	}, nil, nowMillis())
	if err != nil {
		return err
	}
	a.publishEntry(entry)
	return nil
}

func resultJSON(r *tool.Result) []byte {
	data, err := types.ContentList(r.Content).MarshalJSON()
	if err != nil {
		return nil
	}
	return data
}

// reconcileToolExecutions materializes the tool_result for any
// tool_execution.end entry whose result was never appended, covering
// a crash between the two writes in runSingleToolCall (spec.md §8
// scenario 6: the process dies after the tool actually ran and its
// end record committed, but before the tool_result landed). It reuses
// the already-recorded result rather than re-running the tool, since
// re-running a tool with side effects on resume would be unsound.
func (a *Actor) reconcileToolExecutions(ctx context.Context, entries []types.Entry) error {
	ends := map[string]types.ToolExecution{}
	resolved := map[string]bool{}

	for _, e := range entries {
		switch p := e.Payload.(type) {
		case types.ToolExecution:
			if p.Phase == types.ToolExecutionEnd {
				ends[p.ToolCallID] = p
			}
		case types.ToolResultMessage:
			resolved[p.ToolCallID] = true
		}
	}

	for id, end := range ends {
		if resolved[id] {
			continue
		}
		var content types.ContentList
		if len(end.Result) > 0 {
			if err := content.UnmarshalJSON(end.Result); err != nil {
				return err
			}
		}
		entry, err := a.deps.Transcript.Append(ctx, a.id, types.ToolResultMessage{
			ToolCallID: id, ToolName: end.ToolName, Content: content, IsError: end.IsError, Timestamp: nowMillis(),
		}, nil, nowMillis())
		if err != nil {
			return err
		}
		a.publishEntry(entry)
	}
	return nil
}

// danglingToolCalls scans the committed transcript for assistant
// tool_calls with no matching tool_result, resetting at the most
// recent execution_stopped marker the same way InferStatus does. It
// mirrors InferStatus's pending-call tracking but also returns each
// call's name, since Repair needs both.
func danglingToolCalls(entries []types.Entry) ([]string, map[string]string) {
	pending := map[string]bool{}
	pendingOrder := make([]string, 0, 4)
	names := map[string]string{}

	for _, e := range entries {
		switch p := e.Payload.(type) {
		case types.AssistantMessage:
			for _, item := range p.Content {
				if call, ok := item.(types.ToolCallContent); ok {
					if !pending[call.ID] {
						pendingOrder = append(pendingOrder, call.ID)
					}
					pending[call.ID] = true
					names[call.ID] = call.Name
				}
			}
		case types.ToolResultMessage:
			delete(pending, p.ToolCallID)
		case types.CustomMessage:
			if p.CustomType == types.CustomTypeExecutionStopped {
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
	return ids, names
}

// finalizeStop runs the four-step stop sequence (spec.md §4.5
// "Stop"): record any partial assistant output, repair dangling tool
// calls, append the execution_stopped marker, and transition to
// Stopped. It always returns stopped=true.
func (a *Actor) finalizeStop(ctx context.Context, partial *types.AssistantMessage) (bool, error) {
	at := nowMillis()

	if partial != nil {
		msg := *partial
		msg.StopReason = "stop"
		msg.ErrorMessage = "Execution stopped by user"
		msg.Timestamp = at
		entry, err := a.deps.Transcript.Append(context.Background(), a.id, msg, nil, at)
		if err != nil {
			return true, err
		}
		a.publishEntry(entry)
	}

	// Dangling tool calls can come from a committed assistant entry
	// (stop arrived after the turn's LLM response landed but before or
	// during tool dispatch) as well as from the partial just appended
	// above, so this always re-reads the transcript rather than only
	// inspecting partial's content.
	entries, err := a.deps.Transcript.Read(context.Background(), a.id, nil, nil)
	if err != nil {
		return true, err
	}
	toolCallIDs, toolNames := danglingToolCalls(entries)

	var stopEntryPtr *types.Entry
	var repairedEntries []types.Entry
	if len(toolCallIDs) > 0 {
		repaired, err := a.deps.Transcript.Repair(context.Background(), a.id, toolCallIDs, toolNames, at)
		if err != nil {
			return true, err
		}
		repairedEntries = repaired
		for _, e := range repaired {
			a.publishEntry(e)
		}
	}

	stopEntry, err := a.deps.Transcript.Append(context.Background(), a.id, types.CustomMessage{
		CustomType: types.CustomTypeExecutionStopped,
		Content:    types.ContentList{types.TextContent{Text: "Execution stopped by user"}},
		Display:    true,
		Timestamp:  at,
	}, nil, at)
	if err != nil {
		return true, err
	}
	a.publishEntry(stopEntry)
	stopEntryPtr = &stopEntry

	a.applyPendingSettings(context.Background())
	_ = a.deps.Transcript.UpdateStatus(context.Background(), a.id, types.StatusStopped)
	a.publishEvent(event.StatusUpdated, types.StatusStopped)

	a.mu.Lock()
	waiters := a.stopWaiters
	a.stopWaiters = nil
	a.stopRequested = false
	a.state = StateStopped
	a.mu.Unlock()

	res := stopResult{StopEntry: stopEntryPtr, Repaired: repairedEntries}
	for _, ch := range waiters {
		ch <- res
	}

	return true, nil
}
