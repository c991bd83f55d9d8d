package tool

import "context"

// Call is one pending tool invocation within a single assistant
// message's round of tool calls.
type Call struct {
	ToolCallID string
	ToolName   string
	Args       []byte
}

// CallOutcome pairs a Call with its outcome. Err is set only for
// executor faults (tool not found, Execute itself returning a Go
// error); a tool-reported failure instead comes back as a non-nil
// Result with IsError set.
type CallOutcome struct {
	Call   Call
	Result *Result
	Err    error
}

// Checkpoint is consulted before each tool call in a round. When it
// returns true, every remaining call in the round is skipped with a
// "Skipped due to queued user message" result instead of executing,
// matching the steer-drain semantics: the in-flight call finishes
// normally but subsequent calls in the same assistant message do not
// start.
type Checkpoint func() bool

// ExecFunc executes a single call against whatever routing a caller
// needs (a local registry, a runner link, or both). It mirrors
// toolexec.Executor.Execute's signature closely enough that callers
// can adapt one to the other with a small closure.
type ExecFunc func(ctx context.Context, call Call) (*Result, error)

// ExecuteRound runs every call in a single assistant message's tool
// round in order, calling checkpoint before each one. Tool calls
// within a round are not independent of the session's queue-drain
// state, so they run sequentially rather than concurrently: a steer
// message queued mid-round must be able to cut the round short after
// the currently running call.
func ExecuteRound(ctx context.Context, reg *Registry, base Context, calls []Call, checkpoint Checkpoint) []CallOutcome {
	return ExecuteRoundWith(ctx, func(ctx context.Context, call Call) (*Result, error) {
		return executeOne(ctx, reg, base, call)
	}, calls, checkpoint)
}

// ExecuteRoundWith is the registry-agnostic form of ExecuteRound, for
// callers (such as a runner-aware tool executor) that route calls
// somewhere other than a local *Registry.
func ExecuteRoundWith(ctx context.Context, exec ExecFunc, calls []Call, checkpoint Checkpoint) []CallOutcome {
	outcomes := make([]CallOutcome, len(calls))
	skipping := false
	for i, call := range calls {
		if !skipping && checkpoint != nil && checkpoint() {
			skipping = true
		}
		if skipping {
			outcomes[i] = CallOutcome{Call: call, Result: TextResult("Skipped due to queued user message", true)}
			continue
		}
		result, err := exec(ctx, call)
		outcomes[i] = CallOutcome{Call: call, Result: result, Err: err}
	}
	return outcomes
}

func executeOne(ctx context.Context, reg *Registry, base Context, call Call) (*Result, error) {
	t, ok := reg.Get(call.ToolName)
	if !ok {
		return TextResult("tool \""+call.ToolName+"\" not found", true), nil
	}

	callCtx := base
	callCtx.ToolCallID = call.ToolCallID

	return t.Execute(ctx, call.Args, &callCtx)
}
