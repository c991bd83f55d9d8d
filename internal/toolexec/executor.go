// Package toolexec routes a single tool call either to the local
// in-process tool registry or, for sessions bound to a named runner,
// over that runner's WebSocket link as a tool_request/tool_response
// round trip.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/wuhu-dev/wuhu/internal/runner"
	"github.com/wuhu-dev/wuhu/internal/tool"
	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// Executor dispatches one tool call according to the owning
// session's environment: local sessions run the tool in-process,
// runner-bound sessions serialize the call over the Runner Registry.
type Executor struct {
	local   *tool.Registry
	runners *runner.Registry
}

func New(local *tool.Registry, runners *runner.Registry) *Executor {
	return &Executor{local: local, runners: runners}
}

// Execute runs a single tool call for sess. A tool-reported failure,
// an unknown tool and a disconnected runner all come back as a
// *tool.Result with IsError set, not as a returned error. An executor
// fault (the tool's Execute or the runner round trip failing) is
// returned as a wuhuerr.ExecutorFault error, which the agent loop
// turns into an is_error tool result.
func (e *Executor) Execute(ctx context.Context, sess types.Session, toolCtx tool.Context, toolName string, args json.RawMessage) (*tool.Result, error) {
	if sess.IsLocal() {
		return e.executeLocal(ctx, toolCtx, toolName, args)
	}
	return e.executeRemote(ctx, sess, toolCtx, toolName, args)
}

func (e *Executor) executeLocal(ctx context.Context, toolCtx tool.Context, toolName string, args json.RawMessage) (*tool.Result, error) {
	t, ok := e.local.Get(toolName)
	if !ok {
		return tool.TextResult(fmt.Sprintf("tool %q not found", toolName), true), nil
	}
	result, err := t.Execute(ctx, args, &toolCtx)
	if err != nil {
		return nil, wuhuerr.Wrap(wuhuerr.ExecutorFault, err, fmt.Sprintf("execute tool %q", toolName))
	}
	return result, nil
}

func (e *Executor) executeRemote(ctx context.Context, sess types.Session, toolCtx tool.Context, toolName string, args json.RawMessage) (*tool.Result, error) {
	link, ok := e.runners.Get(sess.RunnerName)
	if !ok {
		return tool.TextResult(fmt.Sprintf("Runner '%s' is disconnected", sess.RunnerName), true), nil
	}

	req := types.ToolRequest{
		ID:         ulid.Make().String(),
		SessionID:  sess.ID,
		ToolCallID: toolCtx.ToolCallID,
		ToolName:   toolName,
		Args:       args,
	}

	resp, err := link.ToolRequest(ctx, req)
	if err != nil {
		return nil, wuhuerr.Wrap(wuhuerr.ExecutorFault, err, fmt.Sprintf("tool_request %q to runner %q", toolName, sess.RunnerName))
	}

	if resp.IsError {
		return tool.TextResult(resp.ErrorMessage, true), nil
	}

	var content types.ContentList
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &content); err != nil {
			return tool.TextResult(string(resp.Result), false), nil
		}
	}
	return &tool.Result{Content: content}, nil
}
